// Package shared wires the dependencies common to the api, worker and admin apps.
package shared

import (
	"context"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/pariksha/lms/core"
	"github.com/pariksha/lms/core/attempt"
	"github.com/pariksha/lms/core/catalog"
	"github.com/pariksha/lms/core/entitlement"
	"github.com/pariksha/lms/core/payment"
	cachesvc "github.com/pariksha/lms/services/cache"
	eventsvc "github.com/pariksha/lms/services/events"
	gatewaysvc "github.com/pariksha/lms/services/gateway"
	"github.com/pariksha/lms/services/idgen"
	"github.com/pariksha/lms/services/jobs"
	logsvc "github.com/pariksha/lms/services/logger"
	"github.com/pariksha/lms/storage/database"
	inmemdb "github.com/pariksha/lms/storage/database/inmem"
	sqlxrepos "github.com/pariksha/lms/storage/database/sqlx"
)

const (
	EngineMemory   = "memory"
	EnginePostgres = "postgres"
)

// Stores holds the repositories of the configured storage engine.
type Stores struct {
	DB *sqlx.DB // nil with the memory engine

	Catalog      catalog.Repository
	Payments     payment.Repository
	Entitlements entitlement.Repository
	Results      attempt.Repository
	Credentials  payment.CredentialRepository

	closers []func() error
}

func (s *Stores) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func NewLogger(prefix string, conf *core.Config) *logsvc.RollbarLogger {
	return logsvc.NewRollbarLogger(
		log.New(os.Stdout, prefix+" : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
}

// OpenStores opens the storage engine. With postgres, the database is created first,
// then migrated up when `migrate` is set.
func OpenStores(ctx context.Context, conf *core.Config, migrate bool) (*Stores, error) {
	switch conf.Storage.Engine {
	case EngineMemory:
		db := inmemdb.Open()
		return &Stores{
			Catalog:      inmemdb.NewCatalogRepository(db),
			Payments:     inmemdb.NewPaymentRepository(db),
			Entitlements: inmemdb.NewEntitlementRepository(db),
			Results:      inmemdb.NewResultRepository(db),
			Credentials:  inmemdb.NewCredentialRepository(db),
		}, nil

	case EnginePostgres:
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}
		db, err := database.Open(ctx, conf)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err = database.Migrate(db.DB, "up"); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return &Stores{
			DB:           db,
			Catalog:      sqlxrepos.NewCatalogRepository(db),
			Payments:     sqlxrepos.NewPaymentRepository(db),
			Entitlements: sqlxrepos.NewEntitlementRepository(db),
			Results:      sqlxrepos.NewResultRepository(db),
			Credentials:  sqlxrepos.NewCredentialRepository(db),
			closers:      []func() error{db.Close},
		}, nil
	}
	return nil, errors.Errorf("unknown storage engine %q", conf.Storage.Engine)
}

// Services are the core services built on top of Stores.
type Services struct {
	Payments    *payment.Service
	Attempts    *attempt.Service
	Credentials *payment.CredentialService
	Cache       core.Cache
	Events      core.EventPublisher

	closers []func() error
}

func (s *Services) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewServices builds the core services and the optional infrastructure they use:
// the redis cache, the kafka publisher and the status check scheduler.
func NewServices(ctx context.Context, conf *core.Config, stores *Stores, logger core.Logger) (*Services, error) {
	svcs := new(Services)

	if conf.Cache.Enabled {
		rdb, err := cachesvc.Connect(ctx, conf.Redis)
		if err != nil {
			return nil, err
		}
		svcs.Cache = cachesvc.NewRedisCache(rdb)
		svcs.closers = append(svcs.closers, rdb.Close)
	}

	if conf.Kafka.Enabled {
		producer, err := eventsvc.NewSyncProducer(conf.Kafka, logger)
		if err != nil {
			_ = svcs.Close()
			return nil, err
		}
		publisher := eventsvc.NewKafkaPublisher(producer, conf.Kafka.TopicPrefix)
		svcs.Events = publisher
		svcs.closers = append(svcs.closers, publisher.Close)
	}

	var scheduler payment.StatusCheckScheduler
	if conf.Jobs.Enabled {
		client := jobs.NewClient(conf.Redis)
		scheduler = client
		svcs.closers = append(svcs.closers, client.Close)
	}

	ids, err := idgen.NewSnowflake(conf.SnowflakeNode)
	if err != nil {
		_ = svcs.Close()
		return nil, err
	}

	svcs.Payments = payment.NewService(payment.Options{
		Repo:             stores.Payments,
		Entitlements:     stores.Entitlements,
		Catalog:          stores.Catalog,
		Gateway:          gatewaysvc.NewPhonePe(conf.Gateway, stores.Credentials, nil, logger),
		IDs:              ids,
		Logger:           logger,
		Scheduler:        scheduler,
		Cache:            svcs.Cache,
		Events:           svcs.Events,
		GatewayTimeout:   conf.Gateway.Timeout,
		StatusCheckDelay: conf.Gateway.StatusCheckDelay,
		PollInterval:     conf.Gateway.PollInterval,
	})
	svcs.Attempts = attempt.NewService(attempt.Options{
		Repo:         stores.Results,
		Entitlements: stores.Entitlements,
		Catalog:      stores.Catalog,
		Logger:       logger,
		Cache:        svcs.Cache,
		Events:       svcs.Events,
	})
	svcs.Credentials = payment.NewCredentialService(stores.Credentials, logger)
	return svcs, nil
}
