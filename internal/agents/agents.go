// Package agents holds the specialised task handlers the coordinator
// delegates to.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"event-coordinator/internal/domain"
)

// Agent types the coordinator may assign work to. Only the first five have
// handlers; the others are accepted as assignments and stay pending.
const (
	ResourcePlanning        = "resource_planning"
	Financial               = "financial"
	StakeholderManagement   = "stakeholder_management"
	MarketingCommunications = "marketing_communications"
	ProjectManagement       = "project_management"
	Analytics               = "analytics"
	ComplianceSecurity      = "compliance_security"
)

// Known lists every agent type a delegation plan may name.
var Known = []string{
	ResourcePlanning,
	Financial,
	StakeholderManagement,
	MarketingCommunications,
	ProjectManagement,
	Analytics,
	ComplianceSecurity,
}

// IsKnown reports whether agentType is one of Known.
func IsKnown(agentType string) bool {
	for _, k := range Known {
		if k == agentType {
			return true
		}
	}
	return false
}

// HandlerError is a failure the handler reports instead of raising.
type HandlerError struct {
	ErrorMessage string    `json:"error_message"`
	ErrorType    string    `json:"error_type"`
	Timestamp    time.Time `json:"timestamp"`
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrorType, e.ErrorMessage)
}

// Result is a handler's answer. Fields carries the structured sub-results
// keyed by name, e.g. "resource_plan".
type Result struct {
	Response string
	Error    *HandlerError
	Fields   map[string]json.RawMessage
}

// Handler runs one delegated task. A returned error means the handler could
// not run at all; a Result with Error set means it ran and reported failure.
type Handler interface {
	Run(ctx context.Context, task string, details domain.EventDetails, reqs domain.Requirements, extra map[string]any) (Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, task string, details domain.EventDetails, reqs domain.Requirements, extra map[string]any) (Result, error)

func (f HandlerFunc) Run(ctx context.Context, task string, details domain.EventDetails, reqs domain.Requirements, extra map[string]any) (Result, error) {
	return f(ctx, task, details, reqs, extra)
}

// Registry maps agent types to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register installs h for agentType, replacing any previous handler.
func (r *Registry) Register(agentType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[agentType] = h
}

func (r *Registry) Lookup(agentType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[agentType]
	return h, ok
}

// Types returns the registered agent types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
