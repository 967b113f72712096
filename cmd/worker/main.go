package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/robalyx/decelerator/internal/database/types"
	"github.com/robalyx/decelerator/internal/delivery"
	"github.com/robalyx/decelerator/internal/durable/redisstore"
	"github.com/robalyx/decelerator/internal/fediverse"
	"github.com/robalyx/decelerator/internal/progress"
	"github.com/robalyx/decelerator/internal/redis"
	"github.com/robalyx/decelerator/internal/setup"
	"github.com/robalyx/decelerator/internal/setup/telemetry"
	"github.com/robalyx/decelerator/internal/worker/core"
	"github.com/robalyx/decelerator/internal/worker/daemon"
	"github.com/robalyx/decelerator/internal/worker/reaction"
	feedsync "github.com/robalyx/decelerator/internal/worker/sync"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const (
	// WorkerLogDir specifies where worker log files are stored.
	WorkerLogDir = "logs/worker_logs"

	// DaemonWorker runs one orchestrator per remote domain.
	DaemonWorker = "daemon"

	// SyncWorker runs a single discovery pass for one account.
	SyncWorker = "sync"

	// StatusCommand lists worker heartbeats.
	StatusCommand = "status"
)

var (
	ErrNoDomains      = errors.New("no registered servers to reconcile")
	ErrMissingAccount = errors.New("--domain and --id are required")
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "worker",
		Usage: "Start the decelerator worker",
		Commands: []*cli.Command{
			{
				Name:  DaemonWorker,
				Usage: "Reconcile boost reactions for registered servers",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "domain",
						Aliases: []string{"d"},
						Usage:   "Domain to reconcile (repeatable, defaults to every registered server)",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return runDaemons(ctx, c.StringSlice("domain"))
				},
			},
			{
				Name:  SyncWorker,
				Usage: "Sync the notifications and posts of one account once",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "domain", Usage: "Domain of the account"},
					&cli.StringFlag{Name: "id", Usage: "Account id on the remote server"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return runSync(ctx, c.String("domain"), c.String("id"))
				},
			},
			{
				Name:  StatusCommand,
				Usage: "Show the status of running workers",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return showStatus(ctx)
				},
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

// runDaemons starts a supervised daemon for each domain and waits until interrupted.
func runDaemons(ctx context.Context, domains []string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := setup.InitializeApp(ctx, telemetry.ServiceWorker, WorkerLogDir, setup.Options{WorkerType: DaemonWorker})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.Background())

	servers, err := selectServers(ctx, app, domains)
	if err != nil {
		return err
	}

	checkpointClient, err := app.RedisManager.GetClient(redis.CheckpointDBIndex)
	if err != nil {
		return err
	}

	deliveryClient, err := app.RedisManager.GetClient(redis.DeliveryDBIndex)
	if err != nil {
		return err
	}

	cfg := app.Config.Worker
	hub := delivery.NewHub(deliveryClient, app.Logger)
	store := redisstore.New(checkpointClient)

	// Initialize progress bars
	bars := make([]*progress.Bar, len(servers))
	for i, server := range servers {
		bars[i] = progress.NewBar(100, 25, server.Domain)
	}

	if app.Config.Common.Debug.ShowProgress {
		renderer := progress.NewRenderer(bars)
		go renderer.Render(ctx)
		defer renderer.Stop()
	}

	var wg sync.WaitGroup

	for i, server := range servers {
		logger := app.LogManager.GetWorkerLogger(DaemonWorker + "_" + server.Domain)

		syncer := feedsync.New(app.DB, app.Providers, cfg.Sync, app.Providers.PageSize(), logger)
		resolver := reaction.NewResolver(app.DB, syncer, app.Providers, cfg.Reaction, cfg.Tasks, logger)
		resolver.OnResolved(hub.OnResolved)

		reporter := core.NewStatusReporter(app.StatusClient, DaemonWorker, server.Domain, logger)
		reporter.Start(ctx)

		d := daemon.New(server.Domain, daemon.Options{
			DB:       app.DB,
			Syncer:   syncer,
			Resolver: resolver,
			Buffer:   hub,
			Config:   cfg,
			Reporter: reporter,
			Bar:      bars[i],
		}, logger)

		supervisor := daemon.NewSupervisor(d, store, logger)
		input := daemon.Input{Domain: server.Domain, Software: server.Software}

		wg.Add(1)

		go func() {
			defer wg.Done()
			defer reporter.Stop()

			if err := supervisor.Run(ctx, input); err != nil {
				logger.Error("Daemon stopped", zap.Error(err))
				reporter.SetHealthy(false)
			}
		}()
	}

	log.Printf("Started %d daemons", len(servers))
	wg.Wait()
	log.Println("All daemons have finished. Exiting.")

	return nil
}

// selectServers returns the registered servers matching domains, or all of them.
func selectServers(ctx context.Context, app *setup.App, domains []string) ([]*types.Server, error) {
	servers, err := app.DB.Model().Server().List(ctx)
	if err != nil {
		return nil, err
	}

	if len(domains) > 0 {
		for _, domain := range domains {
			if !slices.ContainsFunc(servers, func(s *types.Server) bool { return s.Domain == domain }) {
				return nil, fmt.Errorf("%w: %s", types.ErrServerNotFound, domain)
			}
		}

		servers = slices.DeleteFunc(servers, func(s *types.Server) bool {
			return !slices.Contains(domains, s.Domain)
		})
	}

	if len(servers) == 0 {
		return nil, ErrNoDomains
	}

	return servers, nil
}

// runSync brings one account's notifications and posts up to date.
func runSync(ctx context.Context, domain, accountID string) error {
	if domain == "" || accountID == "" {
		return ErrMissingAccount
	}

	app, err := setup.InitializeApp(ctx, telemetry.ServiceWorker, WorkerLogDir, setup.Options{WorkerType: SyncWorker})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(ctx)

	server, err := app.DB.Model().Server().Get(ctx, domain)
	if err != nil {
		return err
	}

	account, err := app.DB.Model().Account().Get(ctx, domain, accountID)
	if err != nil {
		return err
	}

	cred, err := app.DB.Service().Account().Unseal(server, account)
	if err != nil {
		return err
	}

	syncer := feedsync.New(app.DB, app.Providers, app.Config.Worker.Sync, app.Providers.PageSize(), app.Logger)
	fcred := fediverse.Credential{Domain: cred.Domain, Software: cred.Software, Token: cred.Token}

	notifications, err := syncer.SyncAccountNotifications(ctx, fcred, cred.AccountID)
	if err != nil {
		return fmt.Errorf("failed to sync notifications: %w", err)
	}

	posts, err := syncer.SyncAccountPosts(ctx, fcred, cred.AccountID)
	if err != nil {
		return fmt.Errorf("failed to sync posts: %w", err)
	}

	fmt.Printf("Notifications: %d pages, %d fetched, %d new\n",
		notifications.Pages, notifications.Fetched, notifications.Inserted)
	fmt.Printf("Posts: %d pages, %d fetched, %d new\n", posts.Pages, posts.Fetched, posts.Inserted)

	if notifications.RateLimited || posts.RateLimited {
		fmt.Printf("Stopped early by the remote rate limit, retry after %s\n",
			max(notifications.RetryAfter, posts.RetryAfter))
	}

	return nil
}

// showStatus prints the latest heartbeat of every worker.
func showStatus(ctx context.Context) error {
	app, err := setup.InitializeApp(ctx, telemetry.ServiceCLI, WorkerLogDir, setup.Options{SkipMigrationCheck: true})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(ctx)

	statuses, err := core.NewMonitor(app.StatusClient, app.Logger).GetAllStatuses(ctx)
	if err != nil {
		return err
	}

	now := time.Now()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DOMAIN\tWORKER\tTASK\tPROGRESS\tQUEUE\tRESOLVED\tHEALTH\tLAST SEEN")

	for _, s := range statuses {
		health := "healthy"

		switch {
		case s.Stale(now):
			health = "stale"
		case !s.IsHealthy:
			health = "unhealthy"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%d\t%d\t%s\t%s ago\n",
			s.Domain, s.WorkerID, s.CurrentTask, s.Progress, s.QueueLength, s.Resolved,
			health, now.Sub(s.LastSeen).Truncate(time.Second))
	}

	return w.Flush()
}
