// Command server runs the attendance verification engine: reputation,
// soulbound tickets, and the privacy proof layer behind one HTTP surface.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"zkattend/internal/audit"
	pgaudit "zkattend/internal/audit/store/postgres"
	"zkattend/internal/behavior"
	"zkattend/internal/commitment"
	privacyhandler "zkattend/internal/commitment/handler"
	"zkattend/internal/jwttoken"
	"zkattend/internal/platform/config"
	"zkattend/internal/platform/httpserver"
	"zkattend/internal/platform/kafka"
	"zkattend/internal/platform/logger"
	"zkattend/internal/platform/metrics"
	"zkattend/internal/platform/redis"
	"zkattend/internal/privacy"
	reputationhandler "zkattend/internal/reputation/handler"
	reputationmodels "zkattend/internal/reputation/models"
	reputationservice "zkattend/internal/reputation/service"
	reputationstore "zkattend/internal/reputation/store"
	tickethandler "zkattend/internal/ticket/handler"
	ticketservice "zkattend/internal/ticket/service"
	ticketstore "zkattend/internal/ticket/store"
	httptransport "zkattend/internal/transport/http"
)

func main() {
	log := logger.New()
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger := commitment.NewLedger(log)
	m := metrics.New()

	// Nullifier set: Redis when configured so replicas share one replay
	// guard, in-memory otherwise.
	var nullifiers commitment.NullifierStore = commitment.NewInMemoryNullifierStore()
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		nullifiers = commitment.NewRedisNullifierStore(redisClient.Client)
		log.Info("nullifier set backed by redis")
	}

	prover := commitment.NewProver(ledger, nullifiers, log)

	// Audit pipeline: postgres archive and kafka anchoring when configured,
	// in-memory otherwise so Emit always has a sink.
	var sinks []audit.Store
	if cfg.AuditDSN != "" {
		archive, err := pgaudit.Open(cfg.AuditDSN)
		if err != nil {
			log.Error("audit archive connection failed", "error", err)
			os.Exit(1)
		}
		defer func() { _ = archive.Close() }()
		sinks = append(sinks, archive)
	}
	producer, err := kafka.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Error("kafka producer init failed", "error", err)
		os.Exit(1)
	}
	if producer != nil {
		defer producer.Close()
		sinks = append(sinks, audit.NewKafkaSink(producer))
	}
	if len(sinks) == 0 {
		sinks = append(sinks, audit.NewInMemoryStore())
	}
	publisher := audit.NewPublisher(sinks...)

	scoreNoise, err := privacy.NewLaplace(cfg.ScoreEpsilon)
	if err != nil {
		log.Error("invalid score epsilon", "error", err)
		os.Exit(1)
	}
	statsNoise, err := privacy.SplitBudget(cfg.StatsEpsilon, reputationmodels.NumStates)
	if err != nil {
		log.Error("invalid stats epsilon", "error", err)
		os.Exit(1)
	}
	eventNoise, err := privacy.NewLaplace(1.0)
	if err != nil {
		log.Error("invalid event stats epsilon", "error", err)
		os.Exit(1)
	}

	reputationSvc, err := reputationservice.New(
		reputationstore.NewInMemory(),
		behavior.New(cfg.MarkovOrder),
		ledger,
		scoreNoise,
		statsNoise,
		cfg.StatsEpsilon,
		m,
		publisher,
		log,
	)
	if err != nil {
		log.Error("reputation service init failed", "error", err)
		os.Exit(1)
	}

	ticketSvc, err := ticketservice.New(
		ticketstore.NewInMemory(),
		ticketstore.NewInMemoryRecords(),
		nil,
		ledger,
		nullifiers,
		prover,
		eventNoise,
		m,
		publisher,
		log,
	)
	if err != nil {
		log.Error("ticket service init failed", "error", err)
		os.Exit(1)
	}

	jwtService := jwttoken.NewService(cfg.JWTSigningKey, "zkattend", "zkattend")

	router := httptransport.NewRouter(log, jwtService,
		reputationhandler.New(reputationSvc, log),
		tickethandler.New(ticketSvc, log),
		privacyhandler.New(prover, log),
	)
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
