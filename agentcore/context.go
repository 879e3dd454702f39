package agentcore

import "sync"

// Default bounds applied when a Context is built without explicit
// WithMaxShortTerm/WithMaxLongTerm options.
const (
	DefaultMaxShortTerm = 1000
	DefaultMaxLongTerm  = 1000
)

// Context is per-agent mutable state: bounded message history, the agent's
// tool map, its active model selection, and the optional collaborators
// (event bus, rate limiter, reliability manager, policy engine, replay
// store) the source system keeps in an open config bag. Collaborators that
// are always potentially present are promoted to typed fields here; Config
// remains for genuinely dynamic, ad hoc values.
type Context struct {
	mu sync.Mutex

	ShortTerm []Message
	LongTerm  []Message

	MaxShortTerm int
	MaxLongTerm  int

	Tools       map[string]Tool
	ModelConfig ModelConfig

	Events      EventBus
	RateLimiter RateLimiter
	Reliability ReliabilityManager
	Policy      PolicyEngine
	Replay      ReplayStore
	ReplayMode  bool

	OrgID string

	SessionID string
	RunID     string

	Config map[string]any
}

// Option configures a Context at construction time.
type Option func(*Context)

// WithTools seeds the context's tool map.
func WithTools(tools map[string]Tool) Option {
	return func(c *Context) { c.Tools = tools }
}

// WithModelConfig sets the active model selection.
func WithModelConfig(cfg ModelConfig) Option {
	return func(c *Context) { c.ModelConfig = cfg }
}

// WithEvents attaches an event bus.
func WithEvents(bus EventBus) Option {
	return func(c *Context) { c.Events = bus }
}

// WithRateLimiter attaches a rate limiter.
func WithRateLimiter(rl RateLimiter) Option {
	return func(c *Context) { c.RateLimiter = rl }
}

// WithReliability attaches a reliability manager.
func WithReliability(rm ReliabilityManager) Option {
	return func(c *Context) { c.Reliability = rm }
}

// WithPolicy attaches a policy engine.
func WithPolicy(pe PolicyEngine) Option {
	return func(c *Context) { c.Policy = pe }
}

// WithReplay attaches a replay store and enables replay mode.
func WithReplay(store ReplayStore) Option {
	return func(c *Context) {
		c.Replay = store
		c.ReplayMode = store != nil
	}
}

// WithOrgID sets the multi-tenancy organization ID.
func WithOrgID(orgID string) Option {
	return func(c *Context) { c.OrgID = orgID }
}

// WithMaxShortTerm overrides the short-term history bound.
func WithMaxShortTerm(n int) Option {
	return func(c *Context) { c.MaxShortTerm = n }
}

// WithMaxLongTerm overrides the long-term history bound.
func WithMaxLongTerm(n int) Option {
	return func(c *Context) { c.MaxLongTerm = n }
}

// WithConfig seeds the open config bag for ad hoc collaborators.
func WithConfig(config map[string]any) Option {
	return func(c *Context) { c.Config = config }
}

// NewContext builds a Context with default bounds, applying opts in order.
func NewContext(opts ...Option) *Context {
	c := &Context{
		MaxShortTerm: DefaultMaxShortTerm,
		MaxLongTerm:  DefaultMaxLongTerm,
		Tools:        map[string]Tool{},
		Config:       map[string]any{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Tools == nil {
		c.Tools = map[string]Tool{}
	}
	if c.Config == nil {
		c.Config = map[string]any{}
	}
	return c
}

// AddShortTermMessage appends m to short-term history. Once the bound is
// exceeded, the oldest short-term message moves to long-term history; once
// that bound is exceeded, the oldest long-term message is dropped. Total.
func (c *Context) AddShortTermMessage(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ShortTerm = append(c.ShortTerm, m)
	for len(c.ShortTerm) > c.MaxShortTerm {
		evicted := c.ShortTerm[0]
		c.ShortTerm = c.ShortTerm[1:]
		c.LongTerm = append(c.LongTerm, evicted)
	}
	for len(c.LongTerm) > c.MaxLongTerm {
		c.LongTerm = c.LongTerm[1:]
	}
}

// ApplyRunMetadata stamps m.Metadata["session_id"]/["run_id"] from the
// context's current run, iff not already present.
func (c *Context) ApplyRunMetadata(m *Message) {
	c.mu.Lock()
	sessionID, runID := c.SessionID, c.RunID
	c.mu.Unlock()

	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
	if _, ok := m.Metadata["session_id"]; !ok {
		m.Metadata["session_id"] = sessionID
	}
	if _, ok := m.Metadata["run_id"]; !ok {
		m.Metadata["run_id"] = runID
	}
}

// SetRunContext updates the context's session and run IDs.
func (c *Context) SetRunContext(sessionID, runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SessionID = sessionID
	c.RunID = runID
}
