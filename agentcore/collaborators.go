package agentcore

import "context"

// Event is the observability event format: {name, agent, payload, timestamp}.
type Event struct {
	Name      string
	Agent     string
	Payload   map[string]any
	Timestamp int64
}

// EventBus is the optional in-process event sink an AgentContext carries.
type EventBus interface {
	Publish(event Event)
}

// RateLimiter is the optional sliding-window call/token limiter an
// AgentContext carries. Check must atomically record usage on success.
type RateLimiter interface {
	Check(ctx context.Context, agent, model string, tokens int, tenant string) error
}

// ReliabilityManager composes retry-with-backoff and per-key circuit
// breaking around a fallible operation.
type ReliabilityManager interface {
	Execute(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// PolicyEngine authorizes a tool invocation for an organization before the
// executor dispatches it.
type PolicyEngine interface {
	Authorize(ctx context.Context, orgID, toolName string, inputs map[string]any) error
}

// ReplayStore records and replays step outputs keyed by an arbitrary string,
// enabling deterministic test replay.
type ReplayStore interface {
	Get(key string) (any, bool)
	Record(key string, value any)
}
