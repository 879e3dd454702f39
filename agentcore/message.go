// Package agentcore defines the message and per-agent context primitives
// shared by the planner, executor, and runtime: an immutable Message, a
// mutable AgentContext holding bounded history buffers and optional
// collaborators, and the small Plan/StepResult/Tool shapes that flow
// between them.
package agentcore

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a Message.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// Message is immutable once emitted; callers must not mutate Metadata after
// a Message has been appended to a context's history.
type Message struct {
	ID       string
	Role     Role
	Content  string
	Metadata map[string]any
}

// NewMessage constructs a Message with a fresh ID. metadata may be nil.
func NewMessage(role Role, content string, metadata map[string]any) Message {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Message{
		ID:       uuid.NewString(),
		Role:     role,
		Content:  content,
		Metadata: metadata,
	}
}

// Metadata type discriminators stamped by the planner/executor.
const (
	MetaTypePlan          = "plan"
	MetaTypeExecutionStep = "execution_step"
	MetaTypeExecution     = "execution"
)
