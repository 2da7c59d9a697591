package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/identity-sync/internal/api/http"
	"github.com/spec-kit/identity-sync/internal/api/http/handlers"
	"github.com/spec-kit/identity-sync/internal/auth"
	"github.com/spec-kit/identity-sync/internal/config"
	"github.com/spec-kit/identity-sync/internal/events"
	"github.com/spec-kit/identity-sync/internal/gws"
	"github.com/spec-kit/identity-sync/internal/observability"
	"github.com/spec-kit/identity-sync/internal/persistence"
	"github.com/spec-kit/identity-sync/internal/repository"
	"github.com/spec-kit/identity-sync/internal/scheduler"
	"github.com/spec-kit/identity-sync/internal/scim"
	"github.com/spec-kit/identity-sync/internal/service"
	syncengine "github.com/spec-kit/identity-sync/internal/sync"
	"github.com/spec-kit/identity-sync/internal/worker"
)

func main() {
	root := &cobra.Command{
		Use:          "idsync",
		Short:        "Reconciles directory group membership and enrollment state into an identity system",
		SilenceUsage: true,
	}

	var dryRun bool
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one reconciliation pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), dryRun)
		},
	}
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "log decisions without mutating either system")

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Run the admin API with optional scheduled passes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate configuration, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Printf("configuration ok: %d tracked groups, enrollment group %s\n",
				len(cfg.Sync.Groups), cfg.Sync.EnrollmentGroupEmail)
			return nil
		},
	}

	var tokenName, tokenRole string
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin API bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tokens := auth.NewTokenManager(cfg.Server.AuthSecret, cfg.Server.TokenTTLMinutes)
			token, expiresAt, err := tokens.GenerateToken(tokenName, tokenRole)
			if err != nil {
				return err
			}
			fmt.Printf("%s\nexpires: %s\n", token, expiresAt.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}
	tokenCmd.Flags().StringVar(&tokenName, "name", "operator", "token subject")
	tokenCmd.Flags().StringVar(&tokenRole, "role", auth.RoleAdmin, "token role")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load()
			if err != nil {
				fmt.Println("dev")
				return
			}
			fmt.Println(cfg.App.Version)
		},
	}

	root.AddCommand(runCmd, serverCmd, validateCmd, tokenCmd, versionCmd)

	ctx, cancel := signalContext()
	defer cancel()
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// runtime bundles the shared dependencies behind both run modes.
type runtime struct {
	cfg         *config.Config
	logger      *zap.Logger
	postgres    *persistence.Postgres
	redis       *persistence.Redis
	passes      repository.PassRepository
	metrics     *observability.Metrics
	syncService *service.SyncService
}

func (r *runtime) close() {
	r.redis.Close()
	r.postgres.Close()
	_ = r.logger.Sync()
}

func buildRuntime(ctx context.Context, dryRun bool) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if dryRun {
		cfg.Sync.DryRun = true
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Postgres.RunMigrations && pg.PoolHandle() != nil {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			pg.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)

	source, err := gws.NewClient(ctx, cfg.Source, cfg.Sync, logger)
	if err != nil {
		redis.Close()
		pg.Close()
		return nil, fmt.Errorf("create source client: %w", err)
	}
	target := scim.NewClient(cfg.Target, cfg.Sync, logger)

	var passes repository.PassRepository
	if pg.PoolHandle() != nil {
		passes = repository.NewPassRepository(pg.PoolHandle())
	}

	dispatcher := events.NewInMemoryDispatcher()
	worker.NewAuditWorker(passes, logger).Register(dispatcher)

	exec := syncengine.NewExecutor(cfg.Sync.DryRun, logger)
	engine, err := syncengine.NewEngine(source, target, exec, syncengine.Options{
		Groups:               cfg.Sync.Groups,
		GroupPrefix:          cfg.Target.GroupPrefix,
		EnrollmentGroupEmail: cfg.Sync.EnrollmentGroupEmail,
		EnrollmentGroupName:  cfg.Sync.EnrollmentGroupName,
		ManagedIDPattern:     cfg.Sync.ManagedIDPattern,
	}, logger, dispatcher)
	if err != nil {
		redis.Close()
		pg.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}

	metrics := observability.NewMetrics()
	syncService := service.NewSyncService(engine, metrics, passes, redis, logger)

	return &runtime{
		cfg:         cfg,
		logger:      logger,
		postgres:    pg,
		redis:       redis,
		passes:      passes,
		metrics:     metrics,
		syncService: syncService,
	}, nil
}

func runOnce(ctx context.Context, dryRun bool) error {
	rt, err := buildRuntime(ctx, dryRun)
	if err != nil {
		return err
	}
	defer rt.close()

	res, err := rt.syncService.RunPass(ctx)
	if err != nil {
		rt.logger.Error("pass failed", zap.Error(err))
		return err
	}
	if len(res.Errors) > 0 {
		rt.logger.Warn("pass completed with errors", zap.Int("errors", len(res.Errors)))
	}
	return nil
}

func runServer(ctx context.Context) error {
	rt, err := buildRuntime(ctx, false)
	if err != nil {
		return err
	}
	defer rt.close()

	cfg := rt.cfg
	logger := rt.logger

	sched := scheduler.New(cfg.Server.Schedule, func(passCtx context.Context) error {
		_, err := rt.syncService.RunPass(passCtx)
		return err
	}, logger)
	if cfg.Server.ScheduleEnabled {
		if err := sched.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}
	defer sched.Stop()

	tokens := auth.NewTokenManager(cfg.Server.AuthSecret, cfg.Server.TokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, rt.metrics, cfg.Server.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, rt.postgres, rt.redis),
		Sync:           handlers.NewSyncHandler(rt.syncService, rt.passes),
		Metrics:        handlers.NewMetricsHandler(rt.metrics),
		Scheduler:      handlers.NewSchedulerHandler(sched),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.Server.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()
	logger.Info("admin api listening", zap.String("addr", cfg.Server.Addr()))

	<-ctx.Done()
	logger.Info("shutting down")
	return app.Shutdown()
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("received %s", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
