package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"attune/internal/boundary/abstraction"
	"attune/internal/boundary/anonymize"
	"attune/internal/boundary/isolation"
	"attune/internal/boundary/match"
	"attune/internal/boundary/metrics"
	"attune/internal/boundary/terms"
	"attune/internal/couples"
	"attune/internal/guides"
	"attune/internal/jwttoken"
	"attune/internal/merge"
	"attune/internal/platform/config"
	"attune/internal/platform/httpserver"
	"attune/internal/platform/logger"
	platformredis "attune/internal/platform/redis"
	"attune/internal/research"
	"attune/internal/transport/http/router"
	audit "attune/pkg/platform/audit"
	"attune/pkg/platform/audit/publishers/compliance"
	"attune/pkg/platform/audit/publishers/stream"
	auditmemory "attune/pkg/platform/audit/store/memory"
	auditpg "attune/pkg/platform/audit/store/postgres"
	auditworker "attune/pkg/platform/audit/worker"
)

const asyncAuditBuffer = 1024

// main wires the dependency graph and keeps the lifecycle small. Business
// logic lives in the internal services.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores. Without a database the service runs on in-memory stores, which
	// is only acceptable for local development.
	var auditStore audit.Store
	var linkStore couples.Store
	if cfg.Postgres.URL != "" {
		db, err := sql.Open("postgres", cfg.Postgres.URL)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		if err := db.PingContext(ctx); err != nil {
			log.Error("ping postgres", "error", err)
			os.Exit(1)
		}
		auditStore = auditpg.New(db)

		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			log.Error("open pgx pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		linkStore = couples.NewPostgresStore(pool)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		auditStore = auditmemory.NewInMemoryStore()
		linkStore = couples.NewInMemoryStore()
	}

	// Async audit pipeline: security and ops events drain through a channel
	// worker; compliance events go through the fail-closed publisher instead.
	asyncAudit := make(chan audit.Event, asyncAuditBuffer)
	workerOpts := []auditworker.Option{auditworker.WithLogger(log)}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := stream.New(cfg.Kafka.Brokers, cfg.Kafka.Topic, stream.WithLogger(log))
		if err != nil {
			log.Error("create audit stream publisher", "error", err)
			os.Exit(1)
		}
		defer func() { _ = publisher.Close() }()
		workerOpts = append(workerOpts, auditworker.WithStream(publisher))
	}
	worker := auditworker.NewWorker(auditStore, asyncAudit, workerOpts...)

	auditor := compliance.New(auditStore,
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics()),
	)

	// Boundary filters share one compiled terms artifact and one metrics
	// collector.
	tables := terms.Default()
	boundaryMetrics := metrics.New()
	log.Info("boundary tables loaded", "version", tables.Version)

	isolator := isolation.New(tables,
		isolation.WithMetrics(boundaryMetrics),
		isolation.WithLogger(log),
	)
	anonymizerOpts := []anonymize.Option{
		anonymize.WithMetrics(boundaryMetrics),
		anonymize.WithLogger(log),
	}
	if !cfg.StrictAnonymization {
		anonymizerOpts = append(anonymizerOpts, anonymize.WithPermissiveMode())
	}
	anonymizer := anonymize.New(tables, anonymizerOpts...)

	// Services.
	linkService := couples.NewService(linkStore, auditor, couples.WithLogger(log))

	mergeOpts := []merge.Option{
		merge.WithLogger(log),
		merge.WithSecuritySink(asyncAudit),
	}
	if !cfg.StrictIsolation {
		mergeOpts = append(mergeOpts, merge.WithPermissiveIsolation())
	}
	mergeService := merge.NewService(linkService, isolator, match.New(tables), tables, auditor, mergeOpts...)

	guideService := guides.NewService(
		abstraction.New(tables, abstraction.WithMetrics(boundaryMetrics), abstraction.WithLogger(log)),
		guides.WithAuditSink(asyncAudit),
		guides.WithLogger(log),
	)

	researchOpts := []research.Option{
		research.WithAuditSink(asyncAudit),
		research.WithLogger(log),
	}
	if cache, err := platformredis.New(cfg.Redis); err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	} else if cache != nil {
		defer func() { _ = cache.Close() }()
		researchOpts = append(researchOpts, research.WithCache(cache.Client, config.ResearchCacheTTL))
	}
	researchService := research.NewService(
		anonymize.NewBuilder(anonymizer, log),
		noopSearch{log: log},
		researchOpts...,
	)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "attune", "attune-api")

	handler := router.New(router.Deps{
		Logger:   log,
		JWT:      router.NewJWTValidator(jwtService),
		Merge:    merge.NewHandler(mergeService, log),
		Couples:  couples.NewHandler(linkService, log),
		Guides:   guides.NewHandler(guideService, log),
		Research: research.NewHandler(researchService, log),
	})
	srv := httpserver.New(cfg.Addr, handler)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("starting attune", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// noopSearch stands in until an external literature backend is wired. It
// returns no findings, so lookups succeed with empty result sets.
type noopSearch struct {
	log *slog.Logger
}

func (n noopSearch) Search(_ context.Context, query string) ([]research.Finding, error) {
	n.log.Debug("research search backend not configured", "query_len", len(query))
	return nil, nil
}
