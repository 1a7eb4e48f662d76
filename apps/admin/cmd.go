package main

import (
	"database/sql"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	echoapi "github.com/pariksha/lms/apps/api/echo"
	"github.com/pariksha/lms/core"
	"github.com/pariksha/lms/core/payment"
	"github.com/pariksha/lms/services/jobs"
	"github.com/pariksha/lms/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	gooseRunFunc     = database.Migrate  // mockable

	errNoDatabase = errors.New("migrations need the postgres storage engine")
	errEmptySalt  = errors.New("salt key cannot be empty")
)

const staleBatchSize = 100

type commandLine struct {
	conf         *core.Config
	db           *sql.DB // nil with the memory engine
	payments     jobs.Reconciler
	entitlements jobs.Expirer
	credentials  *payment.CredentialService
	validate     *validator.Validate
	now          func() time.Time
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         cli.conf.AppName + " administration",
		Version:       cli.conf.Build,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		cli.migrateCmd(),
		cli.tokenCmd(),
		cli.credentialsCmd(),
		cli.reconcileCmd(),
		cli.expireCmd(),
	)
	return root
}

// run executes the command line `args` (without the program name).
func (cli *commandLine) run(args []string, out io.Writer) error {
	root := cli.rootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	return root.Execute()
}

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose migration command (up, up-by-one, up-to, down, down-to, redo, reset, status, version)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cli.db == nil {
				return errNoDatabase
			}
			return gooseRunFunc(cli.db, args[0], args[1:]...)
		},
	}
}

func (cli *commandLine) tokenCmd() *cobra.Command {
	var username string
	var isAdmin bool
	cmd := &cobra.Command{
		Use:   "token USER_ID",
		Short: "Issue an API token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := core.CleanString(args[0])
			if username == "" {
				username = userID
			}
			token, err := echoapi.GenerateToken(echoapi.NewClaims(cli.conf, userID, username, isAdmin), cli.conf.SecretKey)
			if err != nil {
				return err
			}
			cmd.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username put in the token (defaults to the user id)")
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "grant admin rights")
	return cmd
}

func (cli *commandLine) credentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the payment gateway credentials",
	}

	var nc payment.NewCredential
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a credential version; the salt key is prompted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Print("Enter salt key:")
			salt, err := readPasswordFunc(int(os.Stdin.Fd()))
			cmd.Println()
			if err != nil {
				return errors.Wrap(err, "reading salt key")
			}
			if strings.TrimSpace(string(salt)) == "" {
				return errEmptySalt
			}
			nc.SaltKey = string(salt)
			nc.Env = strings.ToUpper(nc.Env)
			if err = nc.Validate(cli.validate); err != nil {
				return err
			}

			cred, err := cli.credentials.Create(cmd.Context(), nc)
			if err != nil {
				return err
			}
			return printJSON(cmd, cred)
		},
	}
	add.Flags().StringVar(&nc.Env, "env", "UAT", "UAT or PROD")
	add.Flags().StringVar(&nc.MerchantID, "merchant-id", "", "gateway merchant id")
	add.Flags().IntVar(&nc.SaltIndex, "salt-index", 1, "index of the salt key")
	add.Flags().StringVar(&nc.BaseURL, "base-url", "", "gateway API base URL")
	add.Flags().BoolVar(&nc.Activate, "activate", false, "make it the active credential")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the credential versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			creds, err := cli.credentials.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, creds)
		},
	}

	activate := &cobra.Command{
		Use:   "activate ID",
		Short: "Make a credential version the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cred, err := cli.credentials.Activate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, cred)
		},
	}

	cmd.AddCommand(add, list, activate)
	return cmd
}

func (cli *commandLine) reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [TRANSACTION_ID]",
		Short: "Poll the gateway for one pending payment, or for every stale one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				rec, err := cli.payments.ReconcileStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, rec)
			}
			n, err := cli.payments.ReconcileStale(cmd.Context(), cli.conf.Jobs.StaleAfter, staleBatchSize)
			if err != nil {
				return err
			}
			cmd.Printf("%d stale payment(s) settled\n", n)
			return nil
		},
	}
}

func (cli *commandLine) expireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire",
		Short: "Flag lapsed course entitlements as expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := cli.entitlements.ExpireLapsed(cmd.Context(), cli.now())
			if err != nil {
				return err
			}
			cmd.Printf("%d course entitlement(s) expired\n", n)
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
