package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohammad-safakhou/credence/internal/job"
	"github.com/mohammad-safakhou/credence/internal/server"
	"github.com/mohammad-safakhou/credence/internal/store"
	"github.com/spf13/cobra"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the analysis workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}
			sc := cfg.Server.Normalize()
			logger := newLogger(os.Stderr, "SERVE")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()
			a.startMirror(ctx)

			sup := job.NewSupervisor(a.jobs, job.SupervisorOptions{
				Workers:   cfg.Agents.Normalize().MaxConcurrentJobs,
				Backlog:   sc.JobBacklog,
				Retention: sc.JobRetention,
				Logger:    newLogger(os.Stderr, "SUPERVISOR"),
				Meter:     a.telemetry.Meter,
			})
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := sup.Shutdown(shutdownCtx); err != nil {
					logger.Printf("supervisor shutdown: %v", err)
				}
			}()

			if port := cfg.Telemetry.MetricsPort; cfg.Telemetry.Enabled && port > 0 {
				go func() {
					if err := a.telemetry.ServeMetrics(ctx, port); err != nil {
						logger.Printf("metrics: %v", err)
					}
				}()
			}
			if a.reports != nil && cfg.Storage.Postgres.ReportRetention > 0 {
				go pruneReports(ctx, a.reports, cfg.Storage.Postgres.ReportRetention, logger)
			}

			e := server.New(server.Options{
				Store:     a.jobs,
				Submitter: sup,
				Analyzer:  a.orch,
				Lookup:    a.resolver,
				Metrics:   a.telemetry.Handler(),
				KeepAlive: sc.StreamKeepAlive,
				Logger:    newLogger(os.Stderr, "HTTP"),
			})
			return server.Run(ctx, e, sc.Address, logger)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.address)")
	return serve
}

func pruneReports(ctx context.Context, st *store.Store, retention time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := st.PruneReportsBefore(ctx, now.Add(-retention))
			if err != nil {
				logger.Printf("prune reports: %v", err)
				continue
			}
			if n > 0 {
				logger.Printf("pruned %d audit reports", n)
			}
		}
	}
}
