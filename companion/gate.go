// Package companion is the trust boundary between AI-driven rule
// authoring and the rule store. Every companion request passes through
// the gate, which evaluates the permission policy, writes an audit log
// line, and answers over NATS request/reply.
package companion

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/forge/errors"
	"github.com/c360/forge/health"
	"github.com/c360/forge/metric"
	"github.com/c360/forge/policy"
	"github.com/c360/forge/types"
)

// GateSubject answers companion permission checks over request/reply.
const GateSubject = "forge.companion.gate"

// Request is a companion's permission check.
type Request struct {
	UserID     string            `json:"user_id"`
	TrustLevel policy.TrustLevel `json:"trust_level"`
	ActionType types.ActionType  `json:"action_type"`
	Intent     policy.Intent     `json:"intent"`
}

// Response carries the policy decision back to the companion.
type Response struct {
	Decision policy.Decision `json:"decision"`
	Error    string          `json:"error,omitempty"`
}

// replyTransport is the transport slice the gate answers on.
type replyTransport interface {
	SubscribeReply(ctx context.Context, subject string, handler func(context.Context, []byte) []byte) error
}

// Gate evaluates companion permission requests.
type Gate struct {
	transport replyTransport
	logger    *slog.Logger

	decisions *prometheus.CounterVec

	started     atomic.Bool
	startTime   time.Time
	checksTotal atomic.Int64
}

// NewGate creates a companion gate. A nil registry disables metrics.
func NewGate(transport replyTransport, registry *metric.Registry, logger *slog.Logger) (*Gate, error) {
	if transport == nil {
		return nil, errors.WrapInvalid(nil, "companion", "NewGate", "transport cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gate{
		transport: transport,
		logger:    logger.With("component", "companion"),
	}

	if registry != nil {
		g.decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "companion",
			Name:      "decisions_total",
			Help:      "Total companion gate decisions by intent and outcome",
		}, []string{"intent", "outcome"})
		registry.MustRegister(g.decisions)
	}

	return g, nil
}

// Start answers permission checks on the gate subject.
func (g *Gate) Start(ctx context.Context) error {
	if !g.started.CompareAndSwap(false, true) {
		return errors.ErrAlreadyStarted
	}
	g.startTime = time.Now().UTC()

	if err := g.transport.SubscribeReply(ctx, GateSubject, g.handleRequest); err != nil {
		return errors.WrapTransient(err, "companion", "Start", "subscribe to gate subject")
	}

	g.logger.Info("companion gate started", "subject", GateSubject)
	return nil
}

// Stop marks the gate stopped.
func (g *Gate) Stop(context.Context) error {
	if !g.started.CompareAndSwap(true, false) {
		return errors.ErrNotStarted
	}
	g.logger.Info("companion gate stopped", "checks", g.checksTotal.Load())
	return nil
}

// Check evaluates a request directly, bypassing the transport. The HTTP
// surface and in-process callers use this path.
func (g *Gate) Check(req *Request) Response {
	g.checksTotal.Add(1)

	if req == nil || !req.Intent.Valid() {
		decision := policy.Decision{Reason: "unknown intent"}
		g.record("invalid", false)
		return Response{Decision: decision, Error: "unknown intent"}
	}

	decision := policy.Evaluate(req.TrustLevel, req.ActionType, req.Intent)
	g.record(req.Intent.String(), decision.Allowed)

	// Every decision is audit-logged, allowed or not.
	g.logger.Info("companion gate decision",
		"user_id", req.UserID,
		"trust_level", int(req.TrustLevel),
		"action_type", req.ActionType,
		"intent", req.Intent,
		"allowed", decision.Allowed,
		"risk", decision.Risk,
		"requires_approval", decision.RequiresApproval,
		"reason", decision.Reason)

	return Response{Decision: decision}
}

// handleRequest is the request/reply handler on the gate subject.
func (g *Gate) handleRequest(_ context.Context, data []byte) []byte {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		g.record("invalid", false)
		g.logger.Warn("malformed gate request", "error", err)
		resp, _ := json.Marshal(Response{Error: "malformed request"})
		return resp
	}

	resp, err := json.Marshal(g.Check(&req))
	if err != nil {
		g.logger.Warn("marshal gate response", "error", err)
		return []byte(`{"error":"internal"}`)
	}
	return resp
}

func (g *Gate) record(intent string, allowed bool) {
	if g.decisions == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	g.decisions.WithLabelValues(intent, outcome).Inc()
}

// Health reports the gate's current state.
func (g *Gate) Health() health.Status {
	if !g.started.Load() {
		return health.NewUnhealthy("companion", "not started")
	}
	return health.NewHealthy("companion", "").WithMetrics(&health.Metrics{
		Uptime:          time.Since(g.startTime),
		EventsProcessed: g.checksTotal.Load(),
	})
}
