package guardrail

import (
	"context"
	"sync"
	"testing"

	"github.com/cerberusgate/cerberusgate/internal/domain/governance"
	"github.com/cerberusgate/cerberusgate/pkg/mcp"
)

// fakeRateLimitStore is an in-memory, test-only RateLimitStore with no
// window expiry: it simply counts calls per key, enough to exercise the
// guardrail's check-and-increment contract.
type fakeRateLimitStore struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeRateLimitStore() *fakeRateLimitStore {
	return &fakeRateLimitStore{counts: make(map[string]int)}
}

func (f *fakeRateLimitStore) CheckAndIncrement(ctx context.Context, key string, limit int, windowSeconds int) (bool, int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[key] >= limit {
		return false, f.counts[key], windowSeconds, nil
	}
	f.counts[key]++
	return true, f.counts[key], 0, nil
}

func (f *fakeRateLimitStore) CurrentCount(ctx context.Context, key string, windowSeconds int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[key], nil
}

func (f *fakeRateLimitStore) Reset(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.counts, key)
	return nil
}

var _ governance.RateLimitStore = (*fakeRateLimitStore)(nil)

func TestRateLimitGuardrail_AllowsUnderLimit(t *testing.T) {
	store := newFakeRateLimitStore()
	g, err := NewRateLimit(RateLimitPerMinuteType, secondsPerMinute, store)(map[string]interface{}{"limit": 2})
	if err != nil {
		t.Fatalf("construct: %v", err)
	}

	evalCtx := EvalContext{Direction: mcp.ClientToServer, Agent: governance.AgentContext{AgentID: "agent-1"}}
	msg := toolCallMessage(t, "search")

	for i := 0; i < 2; i++ {
		outcome, err := g.Evaluate(context.Background(), msg, evalCtx)
		if err != nil {
			t.Fatalf("evaluate %d: %v", i, err)
		}
		if outcome.Kind != OutcomeAllow {
			t.Fatalf("call %d: expected Allow, got %v", i, outcome.Kind)
		}
	}
}

func TestRateLimitGuardrail_BlocksOverLimit(t *testing.T) {
	store := newFakeRateLimitStore()
	g, err := NewRateLimit(RateLimitPerMinuteType, secondsPerMinute, store)(map[string]interface{}{"limit": 1})
	if err != nil {
		t.Fatalf("construct: %v", err)
	}

	evalCtx := EvalContext{Direction: mcp.ClientToServer, Agent: governance.AgentContext{AgentID: "agent-1"}}
	msg := toolCallMessage(t, "search")

	if outcome, err := g.Evaluate(context.Background(), msg, evalCtx); err != nil || outcome.Kind != OutcomeAllow {
		t.Fatalf("first call: expected Allow, got %v (err=%v)", outcome.Kind, err)
	}

	outcome, err := g.Evaluate(context.Background(), msg, evalCtx)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if outcome.Kind != OutcomeBlock {
		t.Fatalf("second call: expected Block, got %v", outcome.Kind)
	}
}

func TestRateLimitGuardrail_PerToolOverride(t *testing.T) {
	store := newFakeRateLimitStore()
	g, err := NewRateLimit(RateLimitPerMinuteType, secondsPerMinute, store)(map[string]interface{}{
		"limit":           10,
		"per_tool_limits": map[string]interface{}{"search": 1},
	})
	if err != nil {
		t.Fatalf("construct: %v", err)
	}

	evalCtx := EvalContext{Direction: mcp.ClientToServer, Agent: governance.AgentContext{AgentID: "agent-1"}}
	msg := toolCallMessage(t, "search")

	if outcome, err := g.Evaluate(context.Background(), msg, evalCtx); err != nil || outcome.Kind != OutcomeAllow {
		t.Fatalf("first call: expected Allow, got %v (err=%v)", outcome.Kind, err)
	}
	outcome, err := g.Evaluate(context.Background(), msg, evalCtx)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if outcome.Kind != OutcomeBlock {
		t.Fatalf("second call: expected Block under per-tool override of 1, got %v", outcome.Kind)
	}
}

func TestRateLimitGuardrail_PerToolOverrideObjectForm(t *testing.T) {
	store := newFakeRateLimitStore()
	g, err := NewRateLimit(RateLimitPerMinuteType, secondsPerMinute, store)(map[string]interface{}{
		"limit":           10,
		"per_tool_limits": map[string]interface{}{"search": map[string]interface{}{"limit": 1}},
	})
	if err != nil {
		t.Fatalf("construct: %v", err)
	}

	evalCtx := EvalContext{Direction: mcp.ClientToServer, Agent: governance.AgentContext{AgentID: "agent-1"}}
	msg := toolCallMessage(t, "search")

	if outcome, err := g.Evaluate(context.Background(), msg, evalCtx); err != nil || outcome.Kind != OutcomeAllow {
		t.Fatalf("first call: expected Allow, got %v (err=%v)", outcome.Kind, err)
	}
	outcome, err := g.Evaluate(context.Background(), msg, evalCtx)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if outcome.Kind != OutcomeBlock {
		t.Fatalf("second call: expected Block under object-form per-tool override of 1, got %v", outcome.Kind)
	}
}

func TestRateLimitGuardrail_SkipsResponseDirection(t *testing.T) {
	store := newFakeRateLimitStore()
	g, err := NewRateLimit(RateLimitPerMinuteType, secondsPerMinute, store)(map[string]interface{}{"limit": 0})
	if err != nil {
		t.Fatalf("construct: %v", err)
	}

	msg := resultMessage(t, "ok")
	outcome, err := g.Evaluate(context.Background(), msg, EvalContext{Direction: mcp.ServerToClient})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if outcome.Kind != OutcomeAllow {
		t.Fatalf("expected Allow (rate limit is request-only), got %v", outcome.Kind)
	}
}
