package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pariksha/lms/apps/shared"
	"github.com/pariksha/lms/core"
)

func main() {
	conf := core.NewConfig()
	logger := shared.NewLogger("ADMIN", conf)

	ctx := context.Background()
	stores, err := shared.OpenStores(ctx, conf, false)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}

	svcs, err := shared.NewServices(ctx, conf, stores, logger)
	if err != nil {
		_ = stores.Close()
		logger.Fatal(fmt.Sprintf("setting up services: %v", err), err)
	}

	validate, _ := shared.NewValidator()
	cli := commandLine{
		conf:         conf,
		payments:     svcs.Payments,
		entitlements: stores.Entitlements,
		credentials:  svcs.Credentials,
		validate:     validate,
		now:          func() time.Time { return time.Now().UTC() },
	}
	if stores.DB != nil {
		cli.db = stores.DB.DB
	}

	err = cli.run(os.Args[1:], os.Stdout)
	_ = svcs.Close()
	_ = stores.Close()
	logger.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		os.Exit(1)
	}
}
