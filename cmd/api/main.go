package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/daoledger/daoledger/internal/config"
	"github.com/daoledger/daoledger/internal/engine"
	"github.com/daoledger/daoledger/internal/infra"
	"github.com/daoledger/daoledger/internal/journal"
	"github.com/daoledger/daoledger/internal/logging"
	"github.com/daoledger/daoledger/internal/metrics"
	"github.com/daoledger/daoledger/internal/notification"
	"github.com/daoledger/daoledger/internal/routes"
	"github.com/daoledger/daoledger/internal/server"
	"github.com/daoledger/daoledger/internal/settlement"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.ForService(logging.New(cfg.LogLevel), cfg.AppName, cfg.AppEnv)

	genesis := config.DefaultGenesis()
	if cfg.GenesisFile != "" {
		genesis, err = config.LoadGenesis(cfg.GenesisFile)
		if err != nil {
			logger.Error("load genesis", "error", err)
			os.Exit(1)
		}
	}

	ctx := context.Background()

	var db *pgxpool.Pool
	var store journal.Journal = journal.NewMemory()
	if cfg.DatabaseURL != "" {
		var pg *journal.Postgres
		db, pg, err = infra.OpenJournal(ctx, cfg)
		if err != nil {
			logger.Error("open journal", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store = pg
	} else {
		logger.Warn("DATABASE_URL not set; journal is in-memory and state is lost on exit")
	}

	notifier := notification.Multi{notification.NewLoggerNotifier(logger)}
	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
		notifier = append(notifier, infra.EventPublisher(cache, cfg))
	}

	receivers := settlement.NewDirectory()
	for _, r := range genesis.Receivers {
		receivers.Register(r.Account, settlement.NewHTTPReceiver(r.Account, r.URL, cfg.ReceiverTimeout, settlement.DefaultBreakerConfig))
		logger.Info("receiver registered", slog.String("account", r.Account), slog.String("url", r.URL))
	}

	m := metrics.New()
	eng := engine.New(engine.Options{
		Genesis:         genesis,
		Journal:         store,
		Notifier:        notifier,
		Receivers:       receivers,
		Metrics:         m,
		Logger:          logger,
		Workers:         cfg.SettlementWorkers,
		ReceiverTimeout: cfg.ReceiverTimeout,
	})
	if err := eng.Start(ctx); err != nil {
		logger.Error("start engine", "error", err)
		os.Exit(1)
	}
	defer eng.Stop()

	srv, err := server.New(routes.Deps{
		Cfg:       cfg,
		Engine:    eng,
		DB:        db,
		Cache:     cache,
		Metrics:   m,
		Logger:    logger,
		AccessLog: cfg.IsDevelopment(),
	})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly", "pending_transfers", eng.PendingTransfers())
}
