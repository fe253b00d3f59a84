// Command server runs the COMITIA core: the role transition engine, the
// election lifecycle engine, the audit outbox relay and the HTTP API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	auditpostgres "comitia/internal/audit/store/postgres"
	"comitia/internal/audit/publisher"
	"comitia/internal/audit/relay"
	"comitia/internal/election/cache"
	electionhandler "comitia/internal/election/handler"
	electionmetrics "comitia/internal/election/metrics"
	electionservice "comitia/internal/election/service"
	candidatestore "comitia/internal/election/store/candidate"
	electionstore "comitia/internal/election/store/election"
	resultstore "comitia/internal/election/store/result"
	transport "comitia/internal/http"
	identityhandler "comitia/internal/identity/handler"
	identitymetrics "comitia/internal/identity/metrics"
	identityservice "comitia/internal/identity/service"
	applicationstore "comitia/internal/identity/store/application"
	profilestore "comitia/internal/identity/store/profile"
	userstore "comitia/internal/identity/store/user"
	"comitia/internal/platform/config"
	"comitia/internal/platform/httpserver"
	"comitia/internal/platform/logger"
	"comitia/internal/platform/postgres"
	"comitia/internal/platform/redisconn"
	"comitia/internal/token"
	"comitia/pkg/platform/tx"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	issuer, err := token.NewIssuer([]byte(cfg.TokenSecret), cfg.TokenLifetime)
	if err != nil {
		return err
	}

	auditStore := auditpostgres.New(db)
	auditPub := publisher.New(auditStore,
		publisher.WithLogger(log),
		publisher.WithMetrics(publisher.NewMetrics()),
	)

	runner := tx.NewSQLRunner(db)
	users := userstore.NewPostgres(db)

	identitySvc := identityservice.New(
		users,
		applicationstore.NewPostgres(db),
		profilestore.NewPostgres(db),
		runner,
		identityservice.WithLogger(log),
		identityservice.WithAuditPublisher(auditPub),
		identityservice.WithMetrics(identitymetrics.New()),
	)

	electionOpts := []electionservice.Option{
		electionservice.WithLogger(log),
		electionservice.WithAuditPublisher(auditPub),
		electionservice.WithMetrics(electionmetrics.New()),
	}
	if cfg.RedisAddr != "" {
		rdb, err := redisconn.Open(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return err
		}
		defer rdb.Close()
		electionOpts = append(electionOpts, electionservice.WithBallotCache(cache.New(rdb)))
	}
	electionSvc := electionservice.New(
		electionstore.NewPostgres(db),
		candidatestore.NewPostgres(db),
		resultstore.NewPostgres(db),
		users,
		runner,
		electionOpts...,
	)

	router := transport.NewRouter(transport.RouterDeps{
		Identity:    identityhandler.New(identitySvc, log),
		Elections:   electionhandler.New(electionSvc, log),
		Auth:        transport.NewAuthHandler(issuer, users, log),
		TokenIssuer: issuer,
		Users:       users,
		Logger:      log,
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpserver.New(cfg.HTTPAddr, router, log).Run(ctx)
	})

	if len(cfg.KafkaBrokers) > 0 {
		auditRelay, err := relay.New(auditStore, cfg.KafkaBrokers, cfg.AuditTopic,
			relay.WithLogger(log),
			relay.WithPollInterval(cfg.RelayInterval),
		)
		if err != nil {
			return err
		}
		g.Go(func() error {
			defer auditRelay.Close()
			err := auditRelay.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		log.Info("audit relay started", "topic", cfg.AuditTopic, "interval", cfg.RelayInterval.String())
	} else {
		log.Warn("no kafka brokers configured, audit events stay in the outbox")
	}

	log.Info("comitia core started", "addr", cfg.HTTPAddr, "started_at", time.Now().UTC().Format(time.RFC3339))
	return g.Wait()
}
