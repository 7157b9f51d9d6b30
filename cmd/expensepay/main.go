package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/expensepay/cmd/expensepay/cli"
	"github.com/odyssey-erp/expensepay/internal/app"
	"github.com/odyssey-erp/expensepay/internal/correction"
	"github.com/odyssey-erp/expensepay/internal/expenses"
	"github.com/odyssey-erp/expensepay/internal/observability"
	"github.com/odyssey-erp/expensepay/internal/platform/cache"
	"github.com/odyssey-erp/expensepay/internal/platform/db"
	"github.com/odyssey-erp/expensepay/internal/reconcile"
	"github.com/odyssey-erp/expensepay/internal/shared"
	"github.com/odyssey-erp/expensepay/jobs"
)

const usage = `usage: expensepay <command> [flags]

commands:
  serve     run the HTTP API (default)
  migrate   apply schema migrations (-direction up|down|version, -steps N)
  jobs      stats | trigger -job TYPE [-run NAME] [-entry NAME]
  token     issue -subject ID -roles R1,R2 | hash -key KEY
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	command, args := subAction(os.Args[1:], "serve")

	var code int
	switch command {
	case "serve":
		code = serve(ctx, cfg, logger)
	case "migrate":
		code = runMigrate(cfg, logger, args)
	case "jobs":
		code = runJobs(ctx, cfg, args)
	case "token":
		code = runToken(cfg, logger, args)
	case "help":
		fmt.Fprint(os.Stdout, usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		code = 2
	}
	stop()
	os.Exit(code)
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() { _ = jobClient.Close() }()
	inspector := asynq.NewInspector(redisOpts)
	defer func() { _ = inspector.Close() }()

	auth, err := app.NewAuthenticator(cfg, logger)
	if err != nil {
		logger.Error("init authenticator", slog.Any("error", err))
		return 1
	}

	services := app.NewServices(app.ServiceDeps{
		Pool:     pool,
		Redis:    redisClient,
		Config:   cfg,
		Logger:   logger,
		Enqueuer: jobClient,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:  logger,
		Config:  cfg,
		Metrics: observability.NewMetrics(),
		Auth:    auth,
		Pingers: map[string]app.Pinger{
			"postgres": pool,
			"redis":    app.PingFunc(cache.Pinger(redisClient)),
		},
		ExpensesHandler:   expenses.NewHandler(logger, services.Expenses),
		ReconcileHandler:  reconcile.NewHandler(logger, services.Scanner, jobClient),
		CorrectionHandler: correction.NewHandler(logger, services.Corrector),
		JobHandler:        jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("http server", slog.Any("error", err))
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown server", slog.Any("error", err))
		return 1
	}
	logger.Info("server stopped")
	return 0
}

func runMigrate(cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	direction := fs.String("direction", "up", "up, down or version")
	steps := fs.Int("steps", 0, "number of migrations to roll back with -direction down")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	migrator, err := db.NewMigrator(cfg.PGDSN, logger)
	if err != nil {
		logger.Error("init migrator", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			logger.Warn("close migrator", slog.Any("error", err))
		}
	}()
	return cli.MigrateCommand(migrator, cli.MigrateOptions{Direction: *direction, Steps: *steps})
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	action, args := subAction(args, "stats")
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	job := fs.String("job", "", "task type to trigger, e.g. "+jobs.TaskGLSync)
	run := fs.String("run", "", "cost center update tracking document")
	entry := fs.String("entry", "", "Expenses Entry for a single-document update")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	c := cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() { _ = c.Close() }()
	ctx = shared.ContextWithActor(ctx, shared.Actor{ID: "cli", Method: "cli"})
	return c.JobsCommand(ctx, cli.JobsOptions{
		Action:     action,
		Trigger:    cli.TriggerParams{Job: *job, Run: *run, Entry: *entry},
		JSONOutput: *asJSON,
	})
}

func runToken(cfg *app.Config, logger *slog.Logger, args []string) int {
	action, args := subAction(args, "issue")
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "", "user id carried by the token")
	roles := fs.String("roles", "", "comma separated roles")
	key := fs.String("key", "", "service API key to hash")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	auth, err := app.NewAuthenticator(cfg, logger)
	if err != nil {
		logger.Error("init authenticator", slog.Any("error", err))
		return 1
	}
	return cli.TokenCommand(auth, cli.TokenOptions{
		Action:  action,
		Subject: *subject,
		Roles:   cli.SplitList(*roles),
		APIKey:  *key,
	})
}

// subAction splits a leading positional action such as "trigger" from the
// flags that follow it.
func subAction(args []string, fallback string) (string, []string) {
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		return args[0], args[1:]
	}
	return fallback, args
}
