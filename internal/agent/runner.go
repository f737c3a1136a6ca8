package agent

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/mohammad-safakhou/credence/config"
	"github.com/mohammad-safakhou/credence/internal/resilience"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

// Roles select a model through the routing table.
const (
	RoleClassification = "classification"
	RoleExtraction     = "extraction"
	RoleAnalysis       = "analysis"
	RoleVerification   = "verification"
	RoleSynthesis      = "synthesis"
)

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Routing          config.LLMRoutingConfig
	Timeout          time.Duration
	Temperature      float64
	BreakerThreshold int
	BreakerCooldown  time.Duration
	Logger           *log.Logger
	Meter            otelmetric.Meter
}

// Runner executes agent calls: timeout, per-model circuit breaker, tracing,
// metrics and start/duration/outcome logging.
type Runner struct {
	provider    Provider
	routing     config.LLMRoutingConfig
	timeout     time.Duration
	temperature float64
	logger      *log.Logger
	tracer      trace.Tracer

	breakerOpts resilience.BreakerOpts
	mu          sync.Mutex
	breakers    map[string]*resilience.Breaker

	calls     otelmetric.Int64Counter
	fallbacks otelmetric.Int64Counter
	latency   otelmetric.Float64Histogram
}

func NewRunner(p Provider, opts RunnerOptions) *Runner {
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	meter := opts.Meter
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("agent")
	}
	r := &Runner{
		provider:    p,
		routing:     opts.Routing,
		timeout:     opts.Timeout,
		temperature: opts.Temperature,
		logger:      logger,
		tracer:      otel.Tracer("credence/internal/agent"),
		breakers:    make(map[string]*resilience.Breaker),
		breakerOpts: resilience.BreakerOpts{
			FailThreshold: opts.BreakerThreshold,
			Cooldown:      opts.BreakerCooldown,
			IsFailure: func(err error) bool {
				// Unparseable output is the model's fault, not the backend's.
				return err != nil && !errors.Is(err, context.Canceled) && !IsKind(err, KindOutput)
			},
		},
	}
	r.calls, _ = meter.Int64Counter("credence_agent_calls_total")
	r.fallbacks, _ = meter.Int64Counter("credence_agent_fallbacks_total")
	r.latency, _ = meter.Float64Histogram("credence_agent_latency_seconds")
	return r
}

// Call is the common shape of a single-shot agent step.
type Call struct {
	Agent     string
	Role      string
	Model     string // overrides Role when set
	System    string
	Prompt    string
	MaxTokens int
	// Temperature overrides the runner default when non-nil.
	Temperature *float64
}

// Run executes c and decodes the JSON response into out. Errors are *Error.
func (r *Runner) Run(ctx context.Context, c Call, out any) error {
	model := c.Model
	if model == "" {
		model = r.routing.Model(c.Role)
	}
	temp := r.temperature
	if c.Temperature != nil {
		temp = *c.Temperature
	}
	ctx, span := r.tracer.Start(ctx, "agent."+c.Agent, trace.WithAttributes(
		attribute.String("agent", c.Agent),
		attribute.String("model", model),
	))
	defer span.End()

	start := time.Now()
	r.logger.Printf("%s: start model=%s", c.Agent, model)

	err := r.breaker(model).Call(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		resp, err := r.provider.Generate(callCtx, Request{
			Agent:       c.Agent,
			Model:       model,
			System:      c.System,
			Prompt:      c.Prompt,
			Temperature: temp,
			MaxTokens:   c.MaxTokens,
			JSON:        true,
		})
		if err != nil {
			if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				return newError(c.Agent, KindTimeout, err)
			}
			return newError(c.Agent, KindBackend, err)
		}
		if err := decodeJSON(resp.Text, out); err != nil {
			return newError(c.Agent, KindOutput, err)
		}
		return nil
	})

	elapsed := time.Since(start)
	outcome := "ok"
	if err != nil {
		err = classify(c.Agent, err)
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	attrs := otelmetric.WithAttributes(attribute.String("agent", c.Agent), attribute.String("outcome", outcome))
	r.calls.Add(ctx, 1, attrs)
	r.latency.Record(ctx, elapsed.Seconds(), attrs)
	if err != nil {
		r.logger.Printf("%s: error after %s: %v", c.Agent, elapsed.Round(time.Millisecond), err)
		return err
	}
	r.logger.Printf("%s: ok in %s", c.Agent, elapsed.Round(time.Millisecond))
	return nil
}

// Fallback records that an agent substituted its degraded record for err.
func (r *Runner) Fallback(ctx context.Context, agent string, err error) {
	r.fallbacks.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("agent", agent)))
	r.logger.Printf("%s: fallback: %v", agent, err)
}

func (r *Runner) breaker(model string) *resilience.Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[model]
	if !ok {
		b = resilience.NewBreaker(r.breakerOpts)
		r.breakers[model] = b
	}
	return b
}

// BreakerState reports the breaker state for a model key.
func (r *Runner) BreakerState(model string) resilience.State {
	return r.breaker(model).State()
}

func float(v float64) *float64 { return &v }
