package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ogurasousui/site-access/assets"
	"github.com/ogurasousui/site-access/internal/adapters/grpc/handler"
	"github.com/ogurasousui/site-access/internal/adapters/grpc/wire"
	"github.com/ogurasousui/site-access/internal/adapters/repository/memory"
	"github.com/ogurasousui/site-access/internal/adapters/repository/postgres"
	"github.com/ogurasousui/site-access/internal/core/access"
	"github.com/ogurasousui/site-access/internal/core/admission"
	"github.com/ogurasousui/site-access/internal/core/directory"
	"github.com/ogurasousui/site-access/internal/core/identity"
	"github.com/ogurasousui/site-access/internal/core/ledger"
	"github.com/ogurasousui/site-access/internal/core/occupancy"
	"github.com/ogurasousui/site-access/internal/platform/auth"
	"github.com/ogurasousui/site-access/internal/platform/config"
	pg "github.com/ogurasousui/site-access/internal/platform/db/postgres"
	"github.com/ogurasousui/site-access/internal/platform/db/migration"
	"github.com/ogurasousui/site-access/internal/platform/logging"
	"github.com/ogurasousui/site-access/internal/platform/metrics"
	"github.com/ogurasousui/site-access/internal/platform/server"
	"google.golang.org/grpc"
)

// activityStore は台帳の永続化先が満たす操作の集合です。
type activityStore interface {
	ledger.Repository
	occupancy.Counter
	admission.VendorLocker
}

type storage struct {
	directory  directory.Repository
	activities activityStore
	tx         ledger.TransactionManager
	pinger     server.Pinger
	close      func()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "assets/local.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging, os.Stdout)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	slog.SetDefault(logger)

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.close()

	collectors := metrics.New()
	calculator := occupancy.NewCalculator(store.activities)
	accessSvc := access.NewService(
		identity.NewResolver(store.directory, store.activities, nil, store.tx, cfg.Ledger.Location),
		admission.NewService(store.directory, store.activities, calculator, store.activities, store.tx, admission.Config{
			Observer:            collectors,
			Timeout:             cfg.Admission.Timeout,
			EnforceAllowedDates: cfg.Admission.EnforceAllowedDates,
			Location:            cfg.Ledger.Location,
		}),
		ledger.NewService(store.activities, nil, store.tx, cfg.Ledger.Location),
		calculator,
		store.directory,
		collectors,
	)

	srv := server.New(server.Config{
		ListenAddr:     cfg.Server.ListenAddr,
		HTTPListenAddr: cfg.Server.HTTPListenAddr,
		Logger:         logger,
		HTTPHandler:    server.NewOpsRouter(logger, store.pinger, collectors.Handler()),
	}, func(r grpc.ServiceRegistrar) {
		wire.RegisterAccessServer(r, handler.NewAccessGrpcHandler(accessSvc))
	}, grpc.ChainUnaryInterceptor(
		server.AuthUnaryInterceptor(auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)),
		server.LoggingUnaryInterceptor(logger),
	))

	logger.Info("site access server starting",
		slog.String("storage", cfg.Storage.Driver),
		slog.String("timezone", cfg.Ledger.Timezone),
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		store := memory.NewStore()
		if cfg.Storage.SeedFile != "" {
			f, err := os.Open(cfg.Storage.SeedFile)
			if err != nil {
				return nil, fmt.Errorf("open seed file: %w", err)
			}
			defer f.Close()
			if err := store.LoadSeed(f); err != nil {
				return nil, fmt.Errorf("load seed file %s: %w", cfg.Storage.SeedFile, err)
			}
			logger.Info("memory storage seeded", slog.String("file", cfg.Storage.SeedFile))
		}
		logger.Warn("memory storage does not serialize admissions across processes; run a single server instance")
		return &storage{directory: store, activities: store, close: func() {}}, nil

	default:
		if cfg.Database.AutoMigrate {
			if err := migration.Run(assets.Migrations, "migrations", cfg.Database.DSN(), migration.ActionUp); err != nil {
				return nil, err
			}
			logger.Info("database migrations applied")
		}

		pool, err := pg.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("initialize database pool: %w", err)
		}
		return &storage{
			directory:  postgres.NewDirectoryRepository(pool),
			activities: postgres.NewActivityRepository(pool),
			tx:         pg.NewTransactionManager(pool),
			pinger:     pool,
			close:      pool.Close,
		}, nil
	}
}
