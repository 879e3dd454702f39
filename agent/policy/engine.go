// Package policy enforces a per-organization bundle of tool deny-lists and
// network-egress deny-lists before the executor dispatches a tool call.
package policy

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Bundle is a per-organization policy: a tool deny-list plus a set of
// denied egress domains for network-egress tools.
type Bundle struct {
	ToolDeny        []string
	EgressDenyHosts []string
}

// Denial reports why a tool call was refused.
type Denial struct {
	Message string
}

func (e *Denial) Error() string { return e.Message }

// Engine authorizes tool calls against a set of per-organization Bundles.
type Engine struct {
	bundles map[string]Bundle
	// EgressTools names tools recognized as network-egress capable; their
	// "url" input is checked against the organization's egress deny-list.
	EgressTools map[string]bool
}

// New constructs an Engine with the given per-organization bundles. egressTools
// names the tools treated as network-egress capable (e.g. "http.fetch").
func New(bundles map[string]Bundle, egressTools []string) *Engine {
	e := &Engine{bundles: bundles, EgressTools: make(map[string]bool, len(egressTools))}
	for _, name := range egressTools {
		e.EgressTools[name] = true
	}
	return e
}

// Authorize checks (orgID, toolName, inputs) against the organization's
// policy bundle. A zero-value (missing) bundle for orgID permits everything.
func (e *Engine) Authorize(ctx context.Context, orgID, toolName string, inputs map[string]any) error {
	bundle, ok := e.bundles[orgID]
	if !ok {
		return nil
	}

	for _, denied := range bundle.ToolDeny {
		if denied == toolName {
			return &Denial{Message: fmt.Sprintf("Policy denied tool '%s'", toolName)}
		}
	}

	if e.EgressTools[toolName] {
		if rawURL, ok := inputs["url"].(string); ok {
			host := hostOf(rawURL)
			for _, deniedHost := range bundle.EgressDenyHosts {
				if strings.EqualFold(host, deniedHost) {
					return &Denial{Message: fmt.Sprintf("Policy denied egress to %s", host)}
				}
			}
		}
	}

	return nil
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if parsed.Host != "" {
		return parsed.Hostname()
	}
	return rawURL
}
