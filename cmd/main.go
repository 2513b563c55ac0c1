package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"
	"golang.org/x/sync/errgroup"

	"confdesk/cmd/buildCFG"
	"confdesk/internal/api/api"
	rabbitReader "confdesk/internal/consumerWorker"
	"confdesk/internal/gateway"
	"confdesk/internal/identifier"
	"confdesk/internal/ledger"
	"confdesk/internal/mailer"
	"confdesk/internal/payment"
	"confdesk/internal/rabbit"
	"confdesk/internal/registration"
	"confdesk/internal/repo"
	"confdesk/internal/service"
	"confdesk/internal/telemetry"
)

func main() {
	zlog.Init()
	log := zlog.Logger

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env")
	}

	cfg := config.New()
	if err := cfg.Load("config.yaml", "", "'"); err != nil {
		log.Fatal().Msgf("failed to load configuration: %v", err)
	}
	serverCfg := buildCFG.BuildServerConfig(cfg, &log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, buildCFG.BuildTelemetryConfig(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}

	masterDSN, slaveDSNs, poolOptions, err := buildCFG.BuildDBConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build DB config")
	}
	db, err := dbpg.New(masterDSN, slaveDSNs, poolOptions)
	if err != nil {
		log.Fatal().Msgf("failed to connect to DB: %v", err)
	}
	if err := db.Master.Ping(); err != nil {
		log.Fatal().Msgf("DB ping failed: %v", err)
	}
	log.Info().Msg("Database connected successfully")

	repository, err := repo.NewRepository(db, &log)
	if err != nil {
		log.Fatal().Msgf("failed to initialize repository: %v", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal().Err(err).Msg("cannot get working directory")
	}
	migrationPath := filepath.Join(cwd, "migrations/postgres")
	if err := repository.MigrateUp(migrationPath); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Msg("Migrations applied successfully")

	rabbitCfg, err := buildCFG.BuildRabbitConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load RabbitMQ config")
	}
	rmq, err := rabbit.NewRabbit(rabbitCfg)
	if err != nil {
		log.Fatal().Msgf("Failed to connect to RabbitMQ: %v", err)
	}
	defer rmq.Close()

	gatewayCfg, err := buildCFG.BuildGatewayConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load gateway config")
	}
	gw, err := gateway.New(gatewayCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build payment gateway")
	}

	authCfg, err := buildCFG.BuildAuthConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load auth config")
	}

	quotas := ledger.New(repository, &log)
	allocator := identifier.NewAllocator()
	records := registration.NewRecords(repository, quotas, allocator, &log)

	orchestrator := payment.New(buildCFG.BuildPaymentConfig(cfg, gatewayCfg), payment.Deps{
		Store:     repository,
		Gateway:   gw,
		Resolver:  records,
		Notifier:  mailer.New(buildCFG.BuildMailerConfig(cfg), &log),
		Scheduler: rabbit.NewScheduler(rmq),
		Log:       &log,
	})
	core := registration.NewService(repository, records, orchestrator, quotas, allocator, nil, &log)

	reader := rabbitReader.NewReader(rmq, orchestrator, buildCFG.BuildReconcileConfig(cfg))
	reader.Start(ctx)

	app := api.NewRouters(&api.Routers{
		Service:   service.NewService(core, orchestrator, &log),
		JWTSecret: authCfg.JWTSecret,
		JWTIssuer: authCfg.Issuer,
	})
	srv := &http.Server{Addr: ":" + serverCfg.Port, Handler: app}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Msgf("Starting server on %s", serverCfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Initiating shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
	}

	reader.Stop()
	orchestrator.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		log.Warn().Err(err).Msg("failed to flush traces")
	}

	if cfg.GetBool("database.migrate_down_on_exit") {
		log.Info().Msg("Rolling back migrations...")
		if err := repository.MigrateDown(migrationPath); err != nil {
			log.Error().Err(err).Msg("failed to rollback migrations")
		}
	}
	log.Info().Msg("Shutdown complete")
}
