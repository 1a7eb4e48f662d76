package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pariksha/lms/apps/shared"
	"github.com/pariksha/lms/core"
	"github.com/pariksha/lms/services/jobs"
)

func main() {
	conf := core.NewConfig()

	logger := shared.NewLogger("WORKER", conf)
	defer logger.Close()

	ctx := context.Background()

	stores, err := shared.OpenStores(ctx, conf, true)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logger.Error("closing storage", err)
		}
	}()

	svcs, err := shared.NewServices(ctx, conf, stores, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up services: %v", err), err)
	}
	defer func() {
		if err := svcs.Close(); err != nil {
			logger.Error("closing services", err)
		}
	}()

	worker := jobs.NewWorker(conf, &jobs.Handlers{
		Payments:     svcs.Payments,
		Entitlements: stores.Entitlements,
		Logger:       logger,
		StaleAfter:   conf.Jobs.StaleAfter,
	})
	if err = worker.Schedule(conf.Jobs); err != nil {
		logger.Fatal(fmt.Sprintf("scheduling periodic jobs: %v", err), err)
	}
	if err = worker.Start(); err != nil {
		logger.Fatal(fmt.Sprintf("starting worker: %v", err), err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	sig := <-shutdown
	logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
	worker.Shutdown()
}
