package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pariksha/lms/core"
	"github.com/pariksha/lms/core/attempt"
	"github.com/pariksha/lms/core/catalog"
	"github.com/pariksha/lms/core/entitlement"
	"github.com/pariksha/lms/core/payment"
	"github.com/pariksha/lms/storage/database/inmem"
)

// CatalogSeeder is a catalog that can be written to.
type CatalogSeeder interface {
	catalog.Repository
	SaveCourse(catalog.Course) catalog.Course
	SaveTest(catalog.MockTest) catalog.MockTest
	SaveQuestions(testID string, qs ...catalog.Question) []catalog.Question
	SaveCategory(catalog.Category) catalog.Category
}

// Store bundles the in-memory repositories.
type Store struct {
	DB           *inmemdb.DB
	Catalog      CatalogSeeder
	Payments     payment.Repository
	Entitlements entitlement.Repository
	Results      attempt.Repository
	Credentials  payment.CredentialRepository
}

func NewStore() *Store {
	db := inmemdb.Open()
	return &Store{
		DB:           db,
		Catalog:      inmemdb.NewCatalogRepository(db),
		Payments:     inmemdb.NewPaymentRepository(db),
		Entitlements: inmemdb.NewEntitlementRepository(db),
		Results:      inmemdb.NewResultRepository(db),
		Credentials:  inmemdb.NewCredentialRepository(db),
	}
}

func CreateCourse(t *testing.T, s *Store, name string, price float64, months int) catalog.Course {
	t.Helper()
	return s.Catalog.SaveCourse(catalog.Course{
		Name:            name,
		OriginalPrice:   price * 2,
		DiscountedPrice: price,
		DurationMonths:  months,
		IsActive:        true,
	})
}

// CreateTest creates a test whose questions have the given correct options, in order.
func CreateTest(t *testing.T, s *Store, title string, price float64, correct ...int) catalog.MockTest {
	t.Helper()
	test := s.Catalog.SaveTest(catalog.MockTest{
		Title:           title,
		IsPaid:          price > 0,
		Price:           price,
		DurationMinutes: 60,
		IsActive:        true,
	})
	qs := make([]catalog.Question, 0, len(correct))
	for i, c := range correct {
		qs = append(qs, catalog.Question{
			Text: fmt.Sprintf("%s - Q%d", title, i+1),
			Options: []catalog.Option{
				{Number: 0, Answer: "A"}, {Number: 1, Answer: "B"}, {Number: 2, Answer: "C"}, {Number: 3, Answer: "D"},
			},
			CorrectOption: c,
			Position:      i + 1,
			IsActive:      true,
		})
	}
	s.Catalog.SaveQuestions(test.ID, qs...)
	return test
}

func CreateCategory(t *testing.T, s *Store, name string, price float64, tests ...catalog.MockTest) catalog.Category {
	t.Helper()
	ids := make([]string, 0, len(tests))
	for _, test := range tests {
		ids = append(ids, test.ID)
	}
	return s.Catalog.SaveCategory(catalog.Category{Name: name, Price: price, TestIDs: ids, IsActive: true})
}

func CreatePendingPayment(t *testing.T, s *Store, txnID, userID string, kind payment.Kind, targetID string, amount float64) payment.Record {
	t.Helper()
	now := time.Now().UTC()
	rec, err := s.Payments.CreatePayment(context.Background(), payment.Record{
		UserID:        userID,
		Kind:          kind,
		TargetID:      targetID,
		Amount:        amount,
		TransactionID: txnID,
		Status:        payment.StatusPending,
		Gateway:       "fake",
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("CreatePendingPayment() failed: %v", err)
	}
	return rec
}

// Logger records log lines.
type Logger struct {
	mu    sync.Mutex
	Lines []LogLine
}

type LogLine struct {
	Level string
	Msg   string
	Args  []interface{}
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Lines = append(l.Lines, LogLine{Level: level, Msg: msg, Args: args})
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("fatal", msg, args) }

// Has reports whether a line at `level` contains `substr`.
func (l *Logger) Has(level, substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.Lines {
		if line.Level == level && strings.Contains(line.Msg, substr) {
			return true
		}
	}
	return false
}

// Cache is a map-backed core.Cache.
type Cache struct {
	mu      sync.Mutex
	entries map[string][]byte
	Deletes int
}

var _ core.Cache = (*Cache)(nil)

func NewCache() *Cache {
	return &Cache{entries: make(map[string][]byte)}
}

func (c *Cache) Get(_ context.Context, key string, dst interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dst)
}

func (c *Cache) Set(_ context.Context, key string, val interface{}, _ time.Duration) error {
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = data
	return nil
}

func (c *Cache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
		c.Deletes++
	}
	return nil
}

// Events records published events.
type Events struct {
	mu     sync.Mutex
	Events []core.Event
}

var _ core.EventPublisher = (*Events)(nil)

func (e *Events) Publish(_ context.Context, evt core.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Events = append(e.Events, evt)
	return nil
}

func (e *Events) Types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	types := make([]string, 0, len(e.Events))
	for _, evt := range e.Events {
		types = append(types, evt.Type)
	}
	return types
}
