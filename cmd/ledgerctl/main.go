// Command ledgerctl runs one-off ledger operations: migrations, chart
// activation, period close, reports, cost backfill and job triggers.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/DocMeNN/DocMeNN-sub000/cmd/ledgerctl/cli"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/accounts"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/journals"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/reports"
	"github.com/DocMeNN/DocMeNN-sub000/internal/app"
	closing "github.com/DocMeNN/DocMeNN-sub000/internal/close"
	"github.com/DocMeNN/DocMeNN-sub000/internal/integration"
	"github.com/DocMeNN/DocMeNN-sub000/internal/inventory"
	"github.com/DocMeNN/DocMeNN-sub000/internal/platform/cache"
	"github.com/DocMeNN/DocMeNN-sub000/internal/platform/db"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
	"github.com/DocMeNN/DocMeNN-sub000/internal/stockcontrol"
	"github.com/DocMeNN/DocMeNN-sub000/internal/store"
	"github.com/DocMeNN/DocMeNN-sub000/jobs"
)

const usage = `usage: ledgerctl <command> [flags]

commands:
  migrate                          apply pending schema migrations
  chart seed --name NAME           create a chart with the standard accounts
  chart activate --chart ID        switch the active chart of accounts
  close-period --start --end       close a date range into retained earnings
  trial-balance --chart ID         print the trial balance
  integrity [--chart ID]           check trial balance and balance sheet
  backfill-cost [--mode apply]     list or fill batches without a unit cost
  jobs trigger NAME | jobs stats   manage background jobs
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "ledgerctl: config: %v\n", err)
		return 1
	}
	logger := app.NewLogger(cfg)

	switch args[0] {
	case "migrate":
		if err := db.RunMigrations(cfg.PGDSN); err != nil {
			fmt.Fprintf(stderr, "migrate: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, "migrations applied")
		return 0
	case "jobs":
		return runJobs(ctx, cfg, args[1:], stdout, stderr)
	}

	deps, err := connect(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "ledgerctl: %v\n", err)
		return 1
	}
	defer deps.close()

	switch args[0] {
	case "chart":
		if len(args) < 2 {
			fmt.Fprint(stderr, usage)
			return 2
		}
		if args[1] == "seed" {
			fs := flag.NewFlagSet("chart seed", flag.ContinueOnError)
			fs.SetOutput(stderr)
			name := fs.String("name", "", "chart name")
			activate := fs.Bool("activate", false, "make the new chart active")
			actor := fs.Int64("actor", 0, "acting user id")
			if err := fs.Parse(args[2:]); err != nil {
				return 2
			}
			return cli.SeedChartCommand(ctx, deps.accounting(), *name, *activate, *actor, cli.Output{Stdout: stdout, Stderr: stderr})
		}
		if args[1] != "activate" {
			fmt.Fprint(stderr, usage)
			return 2
		}
		fs := flag.NewFlagSet("chart activate", flag.ContinueOnError)
		fs.SetOutput(stderr)
		chartID := fs.Int64("chart", 0, "chart id")
		actor := fs.Int64("actor", 0, "acting user id")
		if err := fs.Parse(args[2:]); err != nil {
			return 2
		}
		return cli.ActivateChartCommand(ctx, deps.accounting(), *chartID, *actor, cli.Output{Stdout: stdout, Stderr: stderr})
	case "close-period":
		fs := flag.NewFlagSet("close-period", flag.ContinueOnError)
		fs.SetOutput(stderr)
		opts := cli.CloseOptions{Output: cli.Output{Stdout: stdout, Stderr: stderr}}
		fs.Int64Var(&opts.ChartID, "chart", 0, "chart id (default active chart)")
		fs.StringVar(&opts.Start, "start", "", "first day, YYYY-MM-DD")
		fs.StringVar(&opts.End, "end", "", "last day, YYYY-MM-DD")
		fs.StringVar(&opts.RetainedEarnings, "retained-earnings", "", "account code overriding RETAINED_EARNINGS")
		fs.Int64Var(&opts.ActorID, "actor", 0, "acting user id")
		fs.BoolVar(&opts.JSON, "json", false, "print JSON")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		return cli.CloseCommand(ctx, deps.closer(), opts)
	case "trial-balance":
		fs := flag.NewFlagSet("trial-balance", flag.ContinueOnError)
		fs.SetOutput(stderr)
		opts := cli.TrialBalanceOptions{Output: cli.Output{Stdout: stdout, Stderr: stderr}}
		fs.Int64Var(&opts.ChartID, "chart", 0, "chart id")
		fs.StringVar(&opts.AsOf, "as-of", "", "as-of day, YYYY-MM-DD (default today)")
		fs.BoolVar(&opts.JSON, "json", false, "print JSON")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		return cli.TrialBalanceCommand(ctx, deps.reports, opts, time.Now().UTC())
	case "integrity":
		fs := flag.NewFlagSet("integrity", flag.ContinueOnError)
		fs.SetOutput(stderr)
		chartID := fs.Int64("chart", 0, "chart id (default every chart)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		job := jobs.NewGLIntegrityJob(deps.reports, accounts.NewStore(deps.pool), logger, nil)
		violations, err := job.Run(ctx, *chartID, time.Now().UTC())
		if err != nil {
			fmt.Fprintf(stderr, "integrity: %v\n", err)
			return 1
		}
		for _, v := range violations {
			fmt.Fprintf(stdout, "chart %d %s: %s\n", v.ChartID, v.Check, v.Detail)
		}
		if len(violations) > 0 {
			return 2
		}
		fmt.Fprintln(stdout, "ledger consistent")
		return 0
	case "backfill-cost":
		fs := flag.NewFlagSet("backfill-cost", flag.ContinueOnError)
		fs.SetOutput(stderr)
		opts := cli.BackfillOptions{Stdout: stdout, Stderr: stderr}
		mode := fs.String("mode", string(cli.BackfillModeDry), "dry or apply")
		fs.StringVar(&opts.Source, "source", "", "CSV of batch_id,unit_cost (- for stdin)")
		fs.BoolVar(&opts.JSONOutput, "json", false, "print JSON")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		opts.Mode = cli.BackfillMode(*mode)
		costs, err := cli.NewCostCLI(deps.stockControl())
		if err != nil {
			fmt.Fprintf(stderr, "backfill-cost: %v\n", err)
			return 1
		}
		return costs.BackfillCommand(ctx, opts)
	}
	fmt.Fprint(stderr, usage)
	return 2
}

func runJobs(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintf(stderr, "jobs: %v\n", err)
		return 1
	}
	defer func() { _ = jobsCLI.Close() }()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			fmt.Fprintln(stderr, "jobs trigger: task name required")
			return 2
		}
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
		return 0
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "jobs stats: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
		return 0
	}
	fmt.Fprint(stderr, usage)
	return 2
}

type deps struct {
	cfg      *app.Config
	logger   *slog.Logger
	pool     *pgxpool.Pool
	redis    *redis.Client
	runner   store.Runner
	registry *accounts.Registry
	engine   *journals.Engine
	poster   *integration.Poster
	audit    *shared.AuditLogger
	reports  *reports.Service
}

func connect(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*deps, error) {
	pool, err := db.New(ctx, cfg.PGDSN, 4)
	if err != nil {
		return nil, err
	}
	// Redis only carries chart invalidations here; without it activation
	// still commits and other processes pick it up on restart.
	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Warn("redis unavailable, chart cache invalidation stays local", slog.Any("error", err))
	}
	registry := accounts.NewRegistry(redisClient, logger)
	engine := journals.NewEngine(nil)
	return &deps{
		cfg:      cfg,
		logger:   logger,
		pool:     pool,
		redis:    redisClient,
		runner:   store.NewPG(pool),
		registry: registry,
		engine:   engine,
		poster:   integration.NewPoster(registry, engine, logger),
		audit:    shared.NewAuditLogger(pool, logger),
		reports:  reports.NewService(reports.NewStore(pool)),
	}, nil
}

func (d *deps) close() {
	if d.redis != nil {
		_ = d.redis.Close()
	}
	d.pool.Close()
}

func (d *deps) accounting() *accounting.Service {
	return accounting.NewService(d.runner, d.registry, d.engine, d.audit, d.logger)
}

func (d *deps) closer() *closing.Service {
	return closing.NewService(d.runner, d.poster, d.audit, d.logger)
}

func (d *deps) stockControl() *stockcontrol.Service {
	stock := inventory.NewEngine(inventory.Options{StoreScoped: d.cfg.Capabilities().StoreScopedStock}, nil)
	return stockcontrol.NewService(d.runner, stock, d.poster, d.logger)
}
