package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/pariksha/lms/apps/api/echo"
	"github.com/pariksha/lms/apps/shared"
	"github.com/pariksha/lms/core"
	"github.com/pariksha/lms/core/entitlement"
	"github.com/pariksha/lms/core/payment"
	"github.com/pariksha/lms/testutil"
)

type env struct {
	cli     *commandLine
	store   *testutil.Store
	gateway *testutil.Gateway
}

func setup(t *testing.T) *env {
	t.Helper()
	conf := &core.Config{
		AppName:   "Pariksha",
		SecretKey: "secret",
		Server:    core.ServerConfig{JWTExpirationDelta: time.Hour},
		Jobs:      core.JobsConfig{StaleAfter: 30 * time.Minute},
	}
	store := testutil.NewStore()
	gateway := testutil.NewGateway()
	logger := &testutil.Logger{}
	validate, _ := shared.NewValidator()

	return &env{
		store:   store,
		gateway: gateway,
		cli: &commandLine{
			conf: conf,
			db:   new(sql.DB),
			payments: payment.NewService(payment.Options{
				Repo:         store.Payments,
				Entitlements: store.Entitlements,
				Catalog:      store.Catalog,
				Gateway:      gateway,
				IDs:          &testutil.IDs{},
				Logger:       logger,
				// every pending payment is stale
				Now: func() time.Time { return time.Now().UTC().Add(time.Hour) },
			}),
			entitlements: store.Entitlements,
			credentials:  payment.NewCredentialService(store.Credentials, logger),
			validate:     validate,
			now:          func() time.Time { return time.Now().UTC() },
		},
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantOut    string
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := cli.run(tt.args, &out)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Contains(t, err.Error(), tt.wantErrStr)
				}
			default:
				assert.NoError(t, err)
			}
			if tt.wantOut != "" {
				assert.Contains(t, out.String(), tt.wantOut)
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	e := setup(t)

	gooseRunFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	runCLITests(t, e.cli, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErrStr: "requires at least 1 arg(s)"},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
	})

	e.cli.db = nil
	runCLITests(t, e.cli, []cliTest{
		{name: "memory engine", args: []string{"migrate", "up"}, wantErr: errNoDatabase},
	})
}

func Test_commandLine_token(t *testing.T) {
	e := setup(t)

	tests := []struct {
		name      string
		args      []string
		wantErr   bool
		wantAdmin bool
		wantUname string
	}{
		{name: "no user", args: []string{"token"}, wantErr: true},
		{name: "student", args: []string{"token", "u1"}, wantUname: "u1"},
		{name: "admin", args: []string{"token", "u2", "--admin", "--username", "root"}, wantAdmin: true, wantUname: "root"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := e.cli.run(tt.args, &out)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			claims := new(echoapi.Claims)
			_, err = jwt.ParseWithClaims(strings.TrimSpace(out.String()), claims, func(*jwt.Token) (interface{}, error) {
				return []byte("secret"), nil
			})
			require.NoError(t, err)
			assert.Equal(t, tt.args[1], claims.Subject)
			assert.Equal(t, tt.wantUname, claims.Username)
			assert.Equal(t, tt.wantAdmin, claims.IsAdmin)
		})
	}
}

func Test_commandLine_credentials(t *testing.T) {
	e := setup(t)
	salt := "s3cr3t-salt"
	readPasswordFunc = func(int) ([]byte, error) { return []byte(salt), nil }
	base := []string{"credentials", "add", "--merchant-id", "M1", "--base-url", "https://api.test/pg"}

	runCLITests(t, e.cli, []cliTest{
		{name: "missing merchant", args: []string{"credentials", "add", "--base-url", "https://api.test/pg"}, wantErrStr: "merchant_id"},
		{name: "bad env", args: append(base, "--env", "staging"), wantErrStr: "env"},
		{name: "inactive", args: base, wantOut: `"is_active": false`},
		{name: "active", args: append(base, "--activate", "--env", "prod"), wantOut: `"is_active": true`},
		{name: "activate unknown", args: []string{"credentials", "activate", "nope"}, wantErrStr: `credential "nope" not found`},
	})

	salt = "  "
	runCLITests(t, e.cli, []cliTest{
		{name: "blank salt", args: base, wantErr: errEmptySalt},
	})

	var out bytes.Buffer
	require.NoError(t, e.cli.run([]string{"credentials", "list"}, &out))
	assert.NotContains(t, out.String(), "s3cr3t-salt")
	var creds []payment.Credential
	require.NoError(t, json.Unmarshal(out.Bytes(), &creds))
	require.Len(t, creds, 2)

	active, err := e.store.Credentials.ActiveCredential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PROD", active.Env)
	assert.Equal(t, "s3cr3t-salt", active.SaltKey)
}

func Test_commandLine_reconcile(t *testing.T) {
	e := setup(t)
	test := testutil.CreateTest(t, e.store, "Mock", 49, 0)
	for _, txn := range []string{"T1", "T2", "T3"} {
		testutil.CreatePendingPayment(t, e.store, txn, "u1", payment.KindTest, test.ID, 49)
	}
	e.gateway.Statuses["T1"] = payment.OutcomeSuccess
	e.gateway.Statuses["T2"] = payment.OutcomeFailed

	runCLITests(t, e.cli, []cliTest{
		{name: "one transaction", args: []string{"reconcile", "T1"}, wantOut: `"status": "success"`},
		{name: "unknown transaction", args: []string{"reconcile", "T404"}, wantErrStr: `payment "T404" not found`},
		{name: "stale sweep", args: []string{"reconcile"}, wantOut: "1 stale payment(s) settled"},
	})

	ents, err := e.store.Entitlements.QueryUserEntitlements(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, ents, 1)
}

func Test_commandLine_expire(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()
	for _, at := range []time.Time{now.AddDate(-1, 0, 0), now} {
		_, err := e.store.Entitlements.CreateEntitlement(ctx, entitlement.NewCourseEntitlement("u1", "c1", "T", 1, at))
		require.NoError(t, err)
	}

	runCLITests(t, e.cli, []cliTest{
		{name: "first run", args: []string{"expire"}, wantOut: "1 course entitlement(s) expired"},
		{name: "nothing left", args: []string{"expire"}, wantOut: "0 course entitlement(s) expired"},
	})
}
