// Package orchestrator coordinates multiple agents: a registry of agent
// states, inter-agent message routing, a shared context visible to every
// registered agent, consensus voting, and hierarchical task cancellation.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/agentsdk/agentsdk/agent/telemetry"
	"github.com/google/uuid"
)

// MessageType classifies an inter-agent Message.
type MessageType string

const (
	MessageTypeRequest           MessageType = "request"
	MessageTypeResponse          MessageType = "response"
	MessageTypeBroadcast         MessageType = "broadcast"
	MessageTypeConsensusProposal MessageType = "consensus_proposal"
	MessageTypeConsensusVote     MessageType = "consensus_vote"
	MessageTypeContextUpdate     MessageType = "context_update"
	MessageTypeError             MessageType = "error"
	MessageTypeCancel            MessageType = "cancel"
)

// AgentRole describes an agent's part in the system.
type AgentRole string

const (
	AgentRoleWorker      AgentRole = "worker"
	AgentRoleCoordinator AgentRole = "coordinator"
	AgentRoleArbiter     AgentRole = "arbiter"
	AgentRoleObserver    AgentRole = "observer"
)

// ConsensusAlgorithm selects how ConsensusVote.Result tallies votes.
type ConsensusAlgorithm string

const (
	ConsensusMajority  ConsensusAlgorithm = "majority"
	ConsensusUnanimous ConsensusAlgorithm = "unanimous"
	ConsensusWeighted  ConsensusAlgorithm = "weighted"
	ConsensusQuorum    ConsensusAlgorithm = "quorum"
)

// TaskStatus is a hierarchical task's lifecycle state.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusError     TaskStatus = "error"
	TaskStatusCanceled  TaskStatus = "canceled"
)

func shortID() string { return uuid.New().String()[:8] }

// TaskNode is one node in the orchestrator's task hierarchy.
type TaskNode struct {
	TaskID         string
	ParentID       string
	AssignedAgents []string
	Status         TaskStatus
	Children       map[string]struct{}
}

// Message is routed between agents by a MessageRouter.
type Message struct {
	MessageID   string
	SenderID    string
	Recipients  []string
	MessageType MessageType
	Content     map[string]any
	Timestamp   time.Time
	Priority    int
}

// NewRequestMessage constructs a request Message from senderID to recipients.
func NewRequestMessage(senderID string, recipients []string, content map[string]any) Message {
	return Message{
		MessageID:   shortID(),
		SenderID:    senderID,
		Recipients:  recipients,
		MessageType: MessageTypeRequest,
		Content:     content,
		Timestamp:   time.Now(),
	}
}

// NewResponseMessage constructs a response Message from senderID to a single
// recipient.
func NewResponseMessage(senderID, recipientID string, content map[string]any, priority int) Message {
	return Message{
		MessageID:   shortID(),
		SenderID:    senderID,
		Recipients:  []string{recipientID},
		MessageType: MessageTypeResponse,
		Content:     content,
		Timestamp:   time.Now(),
		Priority:    priority,
	}
}

// AccessLogEntry records one SharedContext.SetData/GetData call.
type AccessLogEntry struct {
	Action    string
	Key       string
	AgentID   string
	Timestamp time.Time
}

// SharedContext holds state visible to every agent in the system, recording
// every read/write in an access log for later audit.
type SharedContext struct {
	ContextID  string
	GlobalGoal string
	CreatedAt  time.Time

	mu         sync.Mutex
	sharedData map[string]any
	updatedAt  time.Time
	accessLog  []AccessLogEntry
}

func newSharedContext(globalGoal string) *SharedContext {
	now := time.Now()
	return &SharedContext{
		ContextID:  shortID(),
		GlobalGoal: globalGoal,
		CreatedAt:  now,
		sharedData: make(map[string]any),
		updatedAt:  now,
	}
}

// SetData stores value under key, attributing the write to agentID.
func (c *SharedContext) SetData(key string, value any, agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sharedData[key] = value
	c.updatedAt = time.Now()
	c.accessLog = append(c.accessLog, AccessLogEntry{Action: "set", Key: key, AgentID: agentID, Timestamp: c.updatedAt})
}

// GetData returns the value stored under key, attributing the read to
// agentID. The second return value is false if key has never been set.
func (c *SharedContext) GetData(key string, agentID string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessLog = append(c.accessLog, AccessLogEntry{Action: "get", Key: key, AgentID: agentID, Timestamp: time.Now()})
	value, ok := c.sharedData[key]
	return value, ok
}

// UpdatedAt returns the time SharedContext's data was last written.
func (c *SharedContext) UpdatedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updatedAt
}

// AccessLog returns a copy of every SetData/GetData call recorded so far.
func (c *SharedContext) AccessLog() []AccessLogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AccessLogEntry, len(c.accessLog))
	copy(out, c.accessLog)
	return out
}

// AgentState tracks one registered agent's role, activity, and health.
type AgentState struct {
	AgentID          string
	Name             string
	Role             AgentRole
	Status           string
	CurrentTask      string
	LastHeartbeat    time.Time
	PerformanceScore float64
	MessageCount     int
	ErrorCount       int
}

func newAgentState(agentID, name string, role AgentRole) *AgentState {
	return &AgentState{
		AgentID:          agentID,
		Name:             name,
		Role:             role,
		Status:           "idle",
		LastHeartbeat:    time.Now(),
		PerformanceScore: 1.0,
	}
}

// Snapshot returns a value copy of the agent state, safe to hand to callers
// outside the orchestrator's lock.
func (a *AgentState) Snapshot() AgentState { return *a }

// MessageRouter delivers messages to per-agent queues and records every
// message ever sent.
type MessageRouter struct {
	mu      sync.Mutex
	queues  map[string][]Message
	history []Message
}

// NewMessageRouter constructs an empty MessageRouter.
func NewMessageRouter() *MessageRouter {
	return &MessageRouter{queues: make(map[string][]Message)}
}

// RegisterAgent ensures agentID has a message queue, even if it never
// receives anything.
func (r *MessageRouter) RegisterAgent(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.queues[agentID]; !ok {
		r.queues[agentID] = nil
	}
}

// SendMessage appends msg to history and to each recipient's queue.
// Recipients with no registered queue are silently dropped, matching the
// reference router's best-effort delivery.
func (r *MessageRouter) SendMessage(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, msg)
	for _, recipient := range msg.Recipients {
		if _, ok := r.queues[recipient]; ok {
			r.queues[recipient] = append(r.queues[recipient], msg)
		}
	}
}

// GetMessages drains and returns every message queued for agentID.
func (r *MessageRouter) GetMessages(agentID string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	messages := r.queues[agentID]
	r.queues[agentID] = nil
	return messages
}

// BroadcastMessage sends content to every recipient, optionally excluding
// senderID from the recipient list.
func (r *MessageRouter) BroadcastMessage(senderID string, recipients []string, content map[string]any, excludeSender bool) {
	actual := recipients
	if excludeSender {
		filtered := make([]string, 0, len(recipients))
		for _, id := range recipients {
			if id != senderID {
				filtered = append(filtered, id)
			}
		}
		actual = filtered
	}

	r.mu.Lock()
	messageID := "broadcast_" + itoa(len(r.history))
	r.mu.Unlock()

	r.SendMessage(Message{
		MessageID:   messageID,
		SenderID:    senderID,
		Recipients:  actual,
		MessageType: MessageTypeBroadcast,
		Content:     content,
		Timestamp:   time.Now(),
	})
}

// HistorySize returns the number of messages ever routed.
func (r *MessageRouter) HistorySize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}

// ConsensusVote tracks votes cast toward one proposal and tallies them per
// the configured ConsensusAlgorithm.
type ConsensusVote struct {
	ProposalID string
	Algorithm  ConsensusAlgorithm

	mu      sync.Mutex
	votes   map[string]bool
	weights map[string]float64
}

func newConsensusVote(proposalID string, algorithm ConsensusAlgorithm) *ConsensusVote {
	return &ConsensusVote{
		ProposalID: proposalID,
		Algorithm:  algorithm,
		votes:      make(map[string]bool),
		weights:    make(map[string]float64),
	}
}

// CastVote records agentID's vote and weight (used by ConsensusWeighted and
// ConsensusQuorum; ignored by the others).
func (v *ConsensusVote) CastVote(agentID string, vote bool, weight float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.votes[agentID] = vote
	v.weights[agentID] = weight
}

// Result tallies the recorded votes per v.Algorithm. It returns false
// without evaluating the algorithm if fewer than minParticipants have
// voted.
func (v *ConsensusVote) Result(minParticipants int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.votes) < minParticipants {
		return false
	}

	switch v.Algorithm {
	case ConsensusMajority:
		yes := 0
		for _, ok := range v.votes {
			if ok {
				yes++
			}
		}
		return float64(yes) > float64(len(v.votes))/2

	case ConsensusUnanimous:
		for _, ok := range v.votes {
			if !ok {
				return false
			}
		}
		return true

	case ConsensusWeighted:
		var yesWeight, totalWeight float64
		for agentID, ok := range v.votes {
			w := v.weights[agentID]
			totalWeight += w
			if ok {
				yesWeight += w
			}
		}
		return yesWeight > totalWeight/2

	case ConsensusQuorum:
		maxWeight := 0.0
		for _, w := range v.weights {
			if w > maxWeight {
				maxWeight = w
			}
		}
		if maxWeight == 0 {
			maxWeight = 1
		}
		participation := float64(len(v.votes)) / maxWeight
		yes := 0
		for _, ok := range v.votes {
			if ok {
				yes++
			}
		}
		return participation >= 0.5 && float64(yes) > float64(len(v.votes))/2
	}

	return false
}

// Tally summarizes the vote counts, independent of the configured
// algorithm's pass/fail result.
func (v *ConsensusVote) Tally() (total, yes, no int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	total = len(v.votes)
	for _, ok := range v.votes {
		if ok {
			yes++
		} else {
			no++
		}
	}
	return total, yes, no
}

// MultiAgentOrchestrator coordinates agent registration, shared context,
// message routing, consensus proposals, and hierarchical task cancellation
// for a single multi-agent system.
type MultiAgentOrchestrator struct {
	SystemID  string
	CreatedAt time.Time

	logger telemetry.Logger

	mu              sync.RWMutex
	agents          map[string]*AgentState
	router          *MessageRouter
	sharedContext   *SharedContext
	activeConsensus map[string]*ConsensusVote
	tasks           map[string]*TaskNode
}

// Option configures a MultiAgentOrchestrator.
type Option func(*MultiAgentOrchestrator)

// WithLogger overrides the orchestrator's logger. Default is a no-op logger.
func WithLogger(logger telemetry.Logger) Option {
	return func(o *MultiAgentOrchestrator) { o.logger = logger }
}

// New constructs a MultiAgentOrchestrator identified by systemID.
func New(systemID string, opts ...Option) *MultiAgentOrchestrator {
	o := &MultiAgentOrchestrator{
		SystemID:        systemID,
		CreatedAt:       time.Now(),
		logger:          telemetry.NewNoopLogger(),
		agents:          make(map[string]*AgentState),
		router:          NewMessageRouter(),
		activeConsensus: make(map[string]*ConsensusVote),
		tasks:           make(map[string]*TaskNode),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RegisterAgent adds agentID to the system and its router, returning its
// initial state.
func (o *MultiAgentOrchestrator) RegisterAgent(ctx context.Context, agentID, name string, role AgentRole) *AgentState {
	o.mu.Lock()
	defer o.mu.Unlock()
	state := newAgentState(agentID, name, role)
	o.agents[agentID] = state
	o.router.RegisterAgent(agentID)
	o.logger.Info(ctx, "registered agent", "agent_id", agentID, "name", name)
	return state
}

// CreateSharedContext creates (replacing any existing one) the single
// SharedContext visible to every agent in the system.
func (o *MultiAgentOrchestrator) CreateSharedContext(ctx context.Context, globalGoal string) *SharedContext {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sharedContext = newSharedContext(globalGoal)
	o.logger.Info(ctx, "created shared context", "context_id", o.sharedContext.ContextID)
	return o.sharedContext
}

// SharedContext returns the system's current shared context, or nil if none
// has been created.
func (o *MultiAgentOrchestrator) SharedContext() *SharedContext {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.sharedContext
}

// CreateTask registers a task in the hierarchy, linking it under parentID's
// children when parentID is non-empty and already registered.
func (o *MultiAgentOrchestrator) CreateTask(taskID string, assignedAgents []string, parentID string) *TaskNode {
	o.mu.Lock()
	defer o.mu.Unlock()
	node := &TaskNode{
		TaskID:         taskID,
		ParentID:       parentID,
		AssignedAgents: assignedAgents,
		Status:         TaskStatusPending,
		Children:       make(map[string]struct{}),
	}
	o.tasks[taskID] = node
	if parentID != "" {
		if parent, ok := o.tasks[parentID]; ok {
			parent.Children[taskID] = struct{}{}
		}
	}
	return node
}

// SetTaskStatus updates taskID's status if it exists.
func (o *MultiAgentOrchestrator) SetTaskStatus(taskID string, status TaskStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if node, ok := o.tasks[taskID]; ok {
		node.Status = status
	}
}

// CancelTask marks taskID canceled, notifies its assigned agents, and
// recursively cancels every descendant task.
func (o *MultiAgentOrchestrator) CancelTask(ctx context.Context, taskID, reason string) {
	o.mu.Lock()
	node, ok := o.tasks[taskID]
	if !ok {
		o.mu.Unlock()
		return
	}
	node.Status = TaskStatusCanceled
	assigned := append([]string(nil), node.AssignedAgents...)
	children := make([]string, 0, len(node.Children))
	for childID := range node.Children {
		children = append(children, childID)
	}
	o.mu.Unlock()

	if len(assigned) > 0 {
		o.SendMessage(ctx, "system", assigned, MessageTypeCancel, map[string]any{"task_id": taskID, "reason": reason})
	}
	for _, childID := range children {
		o.CancelTask(ctx, childID, reason)
	}
}

// Task returns the registered task node for taskID, if any.
func (o *MultiAgentOrchestrator) Task(taskID string) (*TaskNode, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	node, ok := o.tasks[taskID]
	return node, ok
}

// SendMessage routes a message from senderID to recipients and, if senderID
// is a registered agent, increments its message count.
func (o *MultiAgentOrchestrator) SendMessage(ctx context.Context, senderID string, recipients []string, messageType MessageType, content map[string]any) {
	msg := Message{
		MessageID:   shortID(),
		SenderID:    senderID,
		Recipients:  recipients,
		MessageType: messageType,
		Content:     content,
		Timestamp:   time.Now(),
	}

	o.mu.Lock()
	o.router.SendMessage(msg)
	if state, ok := o.agents[senderID]; ok {
		state.MessageCount++
	}
	o.mu.Unlock()
}

// Router exposes the orchestrator's MessageRouter for direct GetMessages
// polling by agents.
func (o *MultiAgentOrchestrator) Router() *MessageRouter {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.router
}

// ProposeConsensus registers a new consensus vote under proposalID and
// notifies affectedAgents of the proposal.
func (o *MultiAgentOrchestrator) ProposeConsensus(ctx context.Context, proposalID string, algorithm ConsensusAlgorithm, affectedAgents []string) *ConsensusVote {
	vote := newConsensusVote(proposalID, algorithm)

	o.mu.Lock()
	o.activeConsensus[proposalID] = vote
	o.mu.Unlock()

	o.SendMessage(ctx, "system", affectedAgents, MessageTypeConsensusProposal, map[string]any{
		"proposal_id": proposalID,
		"algorithm":   string(algorithm),
	})
	o.logger.Info(ctx, "proposed consensus", "proposal_id", proposalID)
	return vote
}

// Consensus returns the active ConsensusVote for proposalID, if any.
func (o *MultiAgentOrchestrator) Consensus(proposalID string) (*ConsensusVote, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	vote, ok := o.activeConsensus[proposalID]
	return vote, ok
}

// AgentStatus reports every registered agent's current state.
type AgentStatus struct {
	TotalAgents int
	Agents      map[string]AgentState
}

// GetAgentStatus returns a snapshot of every registered agent.
func (o *MultiAgentOrchestrator) GetAgentStatus() AgentStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	agents := make(map[string]AgentState, len(o.agents))
	for id, state := range o.agents {
		agents[id] = state.Snapshot()
	}
	return AgentStatus{TotalAgents: len(o.agents), Agents: agents}
}

// SystemStatus summarizes the orchestrator's overall health.
type SystemStatus struct {
	SystemID           string
	UptimeSeconds      float64
	TotalAgents        int
	WorkingAgents      int
	IdleAgents         int
	FailedAgents       int
	MessageHistorySize int
	SharedContextID    string
	ActiveConsensus    int
}

// GetSystemStatus returns an aggregate view of the orchestrator's state.
func (o *MultiAgentOrchestrator) GetSystemStatus() SystemStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	status := SystemStatus{
		SystemID:           o.SystemID,
		UptimeSeconds:      time.Since(o.CreatedAt).Seconds(),
		TotalAgents:        len(o.agents),
		MessageHistorySize: o.router.HistorySize(),
		ActiveConsensus:    len(o.activeConsensus),
	}
	for _, state := range o.agents {
		switch state.Status {
		case "working":
			status.WorkingAgents++
		case "idle":
			status.IdleAgents++
		case "error":
			status.FailedAgents++
		}
	}
	if o.sharedContext != nil {
		status.SharedContextID = o.sharedContext.ContextID
	}
	return status
}
