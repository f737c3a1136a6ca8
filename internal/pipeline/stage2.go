package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"time"

	"github.com/mohammad-safakhou/credence/internal/job"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

// Stage2Result holds per-mode reports and errors. A mode appears in exactly
// one of the two maps.
type Stage2Result struct {
	Reports          map[Mode]any    `json:"mode_reports"`
	Errors           map[Mode]string `json:"mode_errors"`
	ExecutionSeconds float64         `json:"execution_time_seconds"`
}

// Executor runs the selected modes concurrently. A failing mode never
// cancels its siblings.
type Executor struct {
	modes    map[Mode]ModeRunner
	logger   *log.Logger
	tracer   trace.Tracer
	runs     otelmetric.Int64Counter
	failures otelmetric.Int64Counter
}

func NewExecutor(modes map[Mode]ModeRunner, logger *log.Logger, meter otelmetric.Meter) *Executor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("pipeline")
	}
	e := &Executor{modes: modes, logger: logger, tracer: otel.Tracer("credence/internal/pipeline")}
	e.runs, _ = meter.Int64Counter("credence_mode_runs_total")
	e.failures, _ = meter.Int64Counter("credence_mode_failures_total")
	return e
}

type modeOutcome struct {
	mode   Mode
	report any
	err    error
}

// Run launches one goroutine per selected mode and waits for all of them.
// It returns job.ErrCancelled if any mode observed cancellation, and the
// context error if ctx ended.
func (e *Executor) Run(ctx context.Context, in ModeInput, selected []Mode) (Stage2Result, error) {
	ctx, span := e.tracer.Start(ctx, "pipeline.stage2", trace.WithAttributes(attribute.Int("modes", len(selected))))
	defer span.End()
	p := in.Progress
	p.Stage("mode_execution", "Running selected analysis modes...")
	p.Say("Executing %d modes in parallel: %s", len(selected), joinModes(selected))

	start := time.Now()
	outcomes := make(chan modeOutcome, len(selected))
	var wg sync.WaitGroup
	for _, m := range selected {
		wg.Add(1)
		go func(m Mode) {
			defer wg.Done()
			report, err := e.runMode(ctx, m, in)
			outcomes <- modeOutcome{mode: m, report: report, err: err}
		}(m)
	}
	wg.Wait()
	close(outcomes)

	res := Stage2Result{Reports: map[Mode]any{}, Errors: map[Mode]string{}}
	var stop error
	for o := range outcomes {
		switch {
		case errors.Is(o.err, job.ErrCancelled):
			stop = job.ErrCancelled
		case o.err != nil && ctx.Err() != nil && errors.Is(o.err, ctx.Err()):
			if stop == nil {
				stop = ctx.Err()
			}
		case o.err != nil:
			res.Errors[o.mode] = o.err.Error()
			e.failures.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("mode", string(o.mode))))
			e.logger.Printf("[STAGE2] job=%s mode %s failed: %v", p.JobID(), o.mode, o.err)
			p.Say("%s failed: %v", o.mode, o.err)
		default:
			res.Reports[o.mode] = o.report
			p.Say("%s complete", o.mode)
		}
	}
	elapsed := time.Since(start).Seconds()
	res.ExecutionSeconds = math.Round(elapsed*100) / 100
	if stop != nil {
		span.SetStatus(codes.Error, stop.Error())
		return res, stop
	}
	e.logger.Printf("[STAGE2] job=%s complete in %.1fs: %d succeeded, %d failed", p.JobID(), elapsed, len(res.Reports), len(res.Errors))
	return res, nil
}

func (e *Executor) runMode(ctx context.Context, m Mode, in ModeInput) (report any, err error) {
	ctx, span := e.tracer.Start(ctx, "pipeline.mode."+string(m))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mode %s panicked: %v", m, r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	e.runs.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("mode", string(m))))
	if err := in.Progress.Check(ctx); err != nil {
		return nil, err
	}
	runner, ok := e.modes[m]
	if !ok {
		return nil, fmt.Errorf("unknown mode: %s", m)
	}
	report, err = runner.Run(ctx, in)
	if err == nil && report == nil {
		err = fmt.Errorf("mode %s returned no report", m)
	}
	return report, err
}
