package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/mohammad-safakhou/credence/config"
	"github.com/mohammad-safakhou/credence/internal/agent"
	"github.com/mohammad-safakhou/credence/internal/credibility"
	"github.com/mohammad-safakhou/credence/internal/job"
	"github.com/mohammad-safakhou/credence/internal/pipeline"
	"github.com/mohammad-safakhou/credence/internal/runtime"
	"github.com/mohammad-safakhou/credence/internal/store"
	"github.com/mohammad-safakhou/credence/tools/web_fetch"
	"github.com/mohammad-safakhou/credence/tools/web_search"
	"github.com/redis/go-redis/v9"
)

// app holds the long-lived collaborators shared by every subcommand.
type app struct {
	cfg       *config.Config
	telemetry *runtime.Telemetry
	jobs      *job.MemoryStore
	resolver  *credibility.Resolver
	orch      *pipeline.Orchestrator
	mirror    *job.RedisMirror
	reports   *store.Store

	closers []func()
}

func newLogger(w io.Writer, component string) *log.Logger {
	return log.New(w, "["+component+"] ", log.LstdFlags)
}

// buildApp connects every backend named in cfg. Optional backends that are
// disabled are skipped; enabled ones that cannot be reached are fatal.
func buildApp(ctx context.Context, cfg *config.Config, logOut io.Writer, extra ...job.StoreOption) (*app, error) {
	a := &app{cfg: cfg}
	debug := cfg.General.Debug || strings.EqualFold(cfg.General.LogLevel, "debug")

	tel, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, runtime.TelemetryOptions{ServiceName: "credence", ServiceVersion: version})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.telemetry = tel
	a.closers = append(a.closers, func() { _ = tel.Shutdown(context.Background()) })

	var rdb *redis.Client
	if cfg.Storage.Redis.Enabled {
		rc := cfg.Storage.Redis
		rdb = redis.NewClient(&redis.Options{
			Addr:        rc.Addr(),
			Password:    rc.Password,
			DB:          rc.DB,
			DialTimeout: rc.Timeout,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
	}

	var db *sql.DB
	var sink pipeline.ReportSink
	if cfg.Storage.Postgres.Enabled {
		st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		db = st.DB
		sink = st
		a.reports = st
		a.closers = append(a.closers, func() { _ = st.Close() })
	}

	// Credibility: curated static table, then the Postgres table; Redis
	// shares deep lookup results between processes.
	sources := []credibility.Source{credibility.NewStaticSource(cfg.Credibility)}
	resolverOpts := []credibility.ResolverOption{credibility.WithResolverLogger(newLogger(logOut, "CREDIBILITY"))}
	if db != nil {
		pg := &credibility.PostgresSource{DB: db}
		if err := pg.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("credibility schema: %w", err)
		}
		if cfg.Credibility.DeepLookup {
			resolverOpts = append(resolverOpts, credibility.WithDeepLookup(pg))
		} else {
			sources = append(sources, pg)
		}
	}
	if rdb != nil {
		resolverOpts = append(resolverOpts, credibility.WithCache(&credibility.RedisCache{
			Client: rdb,
			Prefix: cfg.Credibility.CacheKeyPrefix,
			TTL:    cfg.Credibility.CacheTTL,
		}))
	}
	a.resolver = credibility.NewResolver(sources, resolverOpts...)

	storeOpts := []job.StoreOption{job.WithLogger(newLogger(logOut, "JOB"), debug)}
	if rdb != nil {
		rc := cfg.Storage.Redis
		a.mirror = job.NewRedisMirror(rdb, rc.ProgressStream, rc.StreamMaxLen, newLogger(logOut, "MIRROR"))
		storeOpts = append(storeOpts, job.WithObserver(a.mirror))
	}
	a.jobs = job.NewMemoryStore(append(storeOpts, extra...)...)

	provider, err := agent.NewProvider(cfg.LLM)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	ac := cfg.Agents.Normalize()
	runner := agent.NewRunner(provider, agent.RunnerOptions{
		Routing:          cfg.LLM.Routing,
		Timeout:          ac.AgentTimeout,
		Temperature:      ac.Temperature,
		BreakerThreshold: ac.BreakerThreshold,
		BreakerCooldown:  ac.BreakerCooldown,
		Logger:           newLogger(logOut, "AGENT"),
		Meter:            tel.Meter,
	})

	searcher, err := web_search.NewWebSearcher(cfg.Sources.WebSearch)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("web search: %w", err)
	}
	ws := cfg.Sources.WebSearch.Normalize()
	fanout := web_search.NewFanout(searcher, ws.RequestsPerSecond, cfg.Pipeline.Normalize().SearchConcurrency, newLogger(logOut, "SEARCH"))

	fetcher, err := web_fetch.NewWebFetcher(cfg.Scraper)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("web fetch: %w", err)
	}
	scraper := web_fetch.NewScraper(fetcher, cfg.Scraper.Normalize().Concurrency, newLogger(logOut, "SCRAPER"))

	a.orch = pipeline.Build(cfg, pipeline.Collaborators{
		Runner:     runner,
		Lookup:     a.resolver,
		Searcher:   fanout,
		Scraper:    scraper,
		Tracker:    a.jobs,
		Sink:       sink,
		Logger:     newLogger(logOut, "PIPELINE"),
		Meter:      tel.Meter,
		BiasModels: ac.BiasModels,
	})
	return a, nil
}

// startMirror publishes mirrored progress until ctx ends.
func (a *app) startMirror(ctx context.Context) {
	if a.mirror != nil {
		go a.mirror.Run(ctx)
	}
}

// Close releases backends in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if v := os.Getenv("CREDENCE_HTTP_ADDR"); v != "" {
		cfg.Server.Address = v
	}
	return cfg, nil
}
