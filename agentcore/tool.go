package agentcore

import "context"

// ToolFunc is the callable body of a Tool. It always receives the caller's
// context; the executor calls it synchronously on the calling goroutine, with
// no separate worker pool.
type ToolFunc func(ctx context.Context, inputs map[string]any) (any, error)

// Tool is a named, callable unit the executor can dispatch from a plan step.
type Tool struct {
	Name        string
	Description string
	Func        ToolFunc
}

// Call invokes the tool's function.
func (t Tool) Call(ctx context.Context, inputs map[string]any) (any, error) {
	return t.Func(ctx, inputs)
}
