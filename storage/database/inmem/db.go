// Package inmemdb is a process-local storage engine. It keeps the conditional-update
// semantics of the SQL repositories, so it can back tests and the "memory" storage engine.
package inmemdb

import (
	"sync"

	"github.com/pariksha/lms/core/attempt"
	"github.com/pariksha/lms/core/catalog"
	"github.com/pariksha/lms/core/entitlement"
	"github.com/pariksha/lms/core/payment"
)

type (
	DB struct {
		catalog     *catalogTable
		payment     *paymentTable
		entitlement *entitlementTable
		result      *resultTable
		credential  *credentialTable
	}

	catalogTable struct {
		sync.RWMutex
		courses    map[string]catalog.Course
		tests      map[string]catalog.MockTest
		questions  map[string][]catalog.Question // by test id
		categories map[string]catalog.Category
	}

	paymentTable struct {
		sync.RWMutex
		table map[string]*payment.Record // by transaction id
	}

	entitlementTable struct {
		sync.RWMutex
		seq   int64
		table []*entitlement.Entitlement // insertion order
	}

	resultTable struct {
		sync.RWMutex
		table map[string]*attempt.Result
		order []string // insertion order
	}

	credentialTable struct {
		sync.RWMutex
		table    []*payment.Credential
		activeID string
	}
)

func Open() *DB {
	return &DB{
		catalog: &catalogTable{
			courses:    make(map[string]catalog.Course),
			tests:      make(map[string]catalog.MockTest),
			questions:  make(map[string][]catalog.Question),
			categories: make(map[string]catalog.Category),
		},
		payment:     &paymentTable{table: make(map[string]*payment.Record)},
		entitlement: &entitlementTable{},
		result:      &resultTable{table: make(map[string]*attempt.Result)},
		credential:  &credentialTable{},
	}
}
