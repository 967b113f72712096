package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/robalyx/decelerator/internal/database/service"
	"github.com/robalyx/decelerator/internal/database/types"
	"github.com/robalyx/decelerator/internal/fediverse"
	"github.com/robalyx/decelerator/internal/setup"
	"github.com/robalyx/decelerator/internal/setup/telemetry"
	"github.com/robalyx/decelerator/pkg/utils"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// AccountLogDir specifies where account command log files are stored.
const AccountLogDir = "logs/account_logs"

// TokenEnv is read when --token is not given.
const TokenEnv = "DECELERATOR_TOKEN"

var ErrMissingFlag = errors.New("missing required flag")

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	domainFlag := &cli.StringFlag{
		Name:  "domain",
		Usage: "Domain of the remote server",
	}

	app := &cli.Command{
		Name:  "account",
		Usage: "Manage the local accounts whose boosts are reconciled",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Verify an access token and register its account",
				Flags: []cli.Flag{
					domainFlag,
					&cli.StringFlag{
						Name:  "software",
						Usage: "Server software (mastodon or misskey)",
						Value: "mastodon",
					},
					&cli.StringFlag{
						Name:  "token",
						Usage: "Access token of the account (defaults to $" + TokenEnv + ")",
					},
				},
				Action: withApp(addAccount),
			},
			{
				Name:   "list",
				Usage:  "List registered accounts",
				Flags:  []cli.Flag{domainFlag},
				Action: withApp(listAccounts),
			},
			{
				Name:  "revoke",
				Usage: "Stop reconciling an account",
				Flags: []cli.Flag{
					domainFlag,
					&cli.StringFlag{
						Name:  "id",
						Usage: "Account id on the remote server",
					},
				},
				Action: withApp(revokeAccount),
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

// withApp initializes the application around an account command.
func withApp(fn func(ctx context.Context, app *setup.App, c *cli.Command) error) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		app, err := setup.InitializeApp(ctx, telemetry.ServiceCLI, AccountLogDir, setup.Options{})
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer app.Cleanup(ctx)

		return fn(ctx, app, c)
	}
}

func required(c *cli.Command, names ...string) error {
	for _, name := range names {
		if c.String(name) == "" {
			return fmt.Errorf("%w: --%s", ErrMissingFlag, name)
		}
	}

	return nil
}

func addAccount(ctx context.Context, app *setup.App, c *cli.Command) error {
	token := c.String("token")
	if token == "" {
		token = os.Getenv(TokenEnv)
	}

	if err := required(c, "domain"); err != nil {
		return err
	}

	if token == "" {
		return fmt.Errorf("%w: --token", ErrMissingFlag)
	}

	software, err := types.ParseSoftware(c.String("software"))
	if err != nil {
		return err
	}

	cred := fediverse.Credential{
		Domain:   c.String("domain"),
		Software: software,
		Token:    token,
	}

	client, err := app.Providers.NewClient(cred)
	if err != nil {
		return err
	}

	// Identify the token owner before storing anything
	opts := utils.GetVerifyRetryOptions()
	opts.Permanent = fediverse.IsPermanent

	owner, err := utils.WithRetry(ctx, func() (fediverse.Account, error) {
		return client.VerifyCredentials(ctx)
	}, opts)
	if err != nil {
		return fmt.Errorf("failed to verify credentials: %w", err)
	}

	account, err := app.DB.Service().Account().Register(ctx, service.RegisterInput{
		Domain:    cred.Domain,
		Software:  software,
		AccountID: owner.ID,
		Username:  owner.Username,
		Token:     cred.Token,
	})
	if err != nil {
		return err
	}

	app.Logger.Info("Registered account",
		zap.String("domain", account.Domain),
		zap.String("accountID", account.AccountID),
		zap.String("username", account.Username))

	fmt.Printf("Registered @%s@%s (id %s)\n", account.Username, account.Domain, account.AccountID)

	return nil
}

func listAccounts(ctx context.Context, app *setup.App, c *cli.Command) error {
	servers, err := app.DB.Model().Server().List(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DOMAIN\tSOFTWARE\tID\tUSERNAME\tSTATUS\tADDED")

	for _, server := range servers {
		if domain := c.String("domain"); domain != "" && server.Domain != domain {
			continue
		}

		accounts, err := app.DB.Model().Account().List(ctx, server.Domain)
		if err != nil {
			return err
		}

		for _, a := range accounts {
			status := "authorized"
			if !a.Authorized() {
				status = "revoked " + a.UnauthorizedAt.Format(time.DateOnly)
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				a.Domain, server.Software, a.AccountID, a.Username, status, a.CreatedAt.Format(time.DateOnly))
		}
	}

	return w.Flush()
}

func revokeAccount(ctx context.Context, app *setup.App, c *cli.Command) error {
	if err := required(c, "domain", "id"); err != nil {
		return err
	}

	if err := app.DB.Service().Account().Revoke(ctx, c.String("domain"), c.String("id")); err != nil {
		return err
	}

	app.Logger.Info("Revoked account",
		zap.String("domain", c.String("domain")),
		zap.String("accountID", c.String("id")))

	return nil
}
