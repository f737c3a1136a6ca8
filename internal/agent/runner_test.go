package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mohammad-safakhou/credence/config"
	"github.com/mohammad-safakhou/credence/internal/resilience"
)

func TestRunnerDecodesAndRoutes(t *testing.T) {
	stub := newStub().reply("a", `{"value": "ok"}`)
	r := testRunner(t, stub)
	var out struct {
		Value string `json:"value"`
	}
	if err := r.Run(context.Background(), Call{Agent: "a", Role: RoleAnalysis, Prompt: "p"}, &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Value != "ok" {
		t.Fatalf("unexpected output %+v", out)
	}
	req := stub.requests[0]
	if req.Model != "analysis-model" || !req.JSON || req.Temperature != 0 {
		t.Fatalf("unexpected request %+v", req)
	}
	if err := r.Run(context.Background(), Call{Agent: "a", Role: RoleSynthesis}, &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stub.requests[1].Model != "test-model" {
		t.Fatalf("expected fallback routing, got %s", stub.requests[1].Model)
	}
}

func TestRunnerErrorKinds(t *testing.T) {
	stub := newStub().
		reply("garbage", "I cannot answer that").
		on("backend", func(Request) (string, error) { return "", errors.New("502 bad gateway") })
	r := testRunner(t, stub)
	var out map[string]any

	err := r.Run(context.Background(), Call{Agent: "garbage"}, &out)
	var ae *Error
	if !errors.As(err, &ae) || ae.Kind != KindOutput || ae.Agent != "garbage" {
		t.Fatalf("expected output error, got %v", err)
	}
	if err := r.Run(context.Background(), Call{Agent: "backend"}, &out); !IsKind(err, KindBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestRunnerTimeout(t *testing.T) {
	slow := ProviderFunc(func(ctx context.Context, req Request) (Response, error) {
		<-ctx.Done()
		return Response{}, ctx.Err()
	})
	r := NewRunner(slow, RunnerOptions{Routing: config.LLMRoutingConfig{Fallback: "m"}, Timeout: 20 * time.Millisecond})
	var out map[string]any
	if err := r.Run(context.Background(), Call{Agent: "slow"}, &out); !IsKind(err, KindTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestRunnerBreakerOpensOnBackendFailures(t *testing.T) {
	stub := newStub().
		on("down", func(Request) (string, error) { return "", errors.New("connection refused") }).
		reply("bad", "not json")
	r := NewRunner(stub, RunnerOptions{
		Routing:          config.LLMRoutingConfig{Fallback: "m"},
		BreakerThreshold: 2,
		BreakerCooldown:  time.Hour,
	})
	var out map[string]any
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = r.Run(ctx, Call{Agent: "bad"}, &out)
	}
	if r.BreakerState("m") != resilience.StateClosed {
		t.Fatal("malformed output must not trip the breaker")
	}
	_ = r.Run(ctx, Call{Agent: "down"}, &out)
	_ = r.Run(ctx, Call{Agent: "down"}, &out)
	if r.BreakerState("m") != resilience.StateOpen {
		t.Fatalf("expected open breaker, got %s", r.BreakerState("m"))
	}
	before := stub.calls("down")
	err := r.Run(ctx, Call{Agent: "down"}, &out)
	if !errors.Is(err, resilience.ErrCircuitOpen) || !IsKind(err, KindBackend) {
		t.Fatalf("expected circuit open backend error, got %v", err)
	}
	if stub.calls("down") != before {
		t.Fatal("open breaker must not reach the provider")
	}
}
