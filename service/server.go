// Package service exposes the HTTP surface: health, metrics, webhook
// event ingestion, rule management, and the live activity feed.
package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/c360/forge/errors"
	"github.com/c360/forge/health"
	"github.com/c360/forge/metric"
	"github.com/c360/forge/scheduler"
	"github.com/c360/forge/types"
)

// WebhookSubject is where ingested webhook events are published.
const WebhookSubject = scheduler.EventSubjectPrefix + ".webhook"

// Config tunes the HTTP server.
type Config struct {
	Addr            string        `json:"addr"`
	ReadTimeout     time.Duration `json:"readTimeout"`
	WriteTimeout    time.Duration `json:"writeTimeout"`
	ShutdownTimeout time.Duration `json:"shutdownTimeout"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// ruleStore is the slice of the rule store the API exposes.
type ruleStore interface {
	Create(ctx context.Context, rule *types.ForgeRule) error
	Get(ctx context.Context, id string) (*types.ForgeRule, error)
	Update(ctx context.Context, rule *types.ForgeRule) error
	Toggle(ctx context.Context, id string, enabled bool) (*types.ForgeRule, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*types.ForgeRule, error)
}

// publisher is the transport slice webhook ingestion publishes on.
type publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Server is the Forge HTTP surface.
type Server struct {
	config    Config
	rules     ruleStore
	transport publisher
	monitor   *health.Monitor
	registry  *metric.Registry
	hub       *Hub
	logger    *slog.Logger

	httpServer *http.Server
	started    atomic.Bool
}

// NewServer wires the HTTP surface. The metrics registry may be nil, in
// which case /metrics serves 404.
func NewServer(config Config, rules ruleStore, transport publisher, monitor *health.Monitor, registry *metric.Registry, logger *slog.Logger) (*Server, error) {
	if rules == nil {
		return nil, errors.WrapInvalid(nil, "service", "NewServer", "rule store cannot be nil")
	}
	if transport == nil {
		return nil, errors.WrapInvalid(nil, "service", "NewServer", "transport cannot be nil")
	}
	if monitor == nil {
		monitor = health.NewMonitor()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:    config,
		rules:     rules,
		transport: transport,
		monitor:   monitor,
		registry:  registry,
		hub:       NewHub(logger),
		logger:    logger.With("component", "service"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if registry != nil {
		mux.Handle("GET /metrics", registry.Handler())
	}
	mux.HandleFunc("POST /api/v1/events/webhook", s.handleWebhook)
	mux.HandleFunc("GET /api/v1/rules", s.handleListRules)
	mux.HandleFunc("POST /api/v1/rules", s.handleCreateRule)
	mux.HandleFunc("GET /api/v1/rules/{id}", s.handleGetRule)
	mux.HandleFunc("PUT /api/v1/rules/{id}", s.handleUpdateRule)
	mux.HandleFunc("DELETE /api/v1/rules/{id}", s.handleDeleteRule)
	mux.HandleFunc("POST /api/v1/rules/{id}/toggle", s.handleToggleRule)
	mux.Handle("GET /ws/activity", s.hub)

	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s, nil
}

// Hub returns the activity hub, for wiring the dispatcher's executed
// hook.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the routed handler, used by tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins serving in a background goroutine.
func (s *Server) Start(context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.ErrAlreadyStarted
	}

	go func() {
		s.logger.Info("http server listening", "addr", s.config.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "error", err)
			s.monitor.Update("service", health.NewUnhealthy("service", "listener failed"))
		}
	}()
	return nil
}

// Stop gracefully shuts the server down and disconnects the activity
// feed.
func (s *Server) Stop(ctx context.Context) error {
	if !s.started.CompareAndSwap(true, false) {
		return errors.ErrNotStarted
	}

	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.WrapTransient(err, "service", "Stop", "shutdown http server")
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := s.monitor.System("forge")

	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// webhookRequest is the ingestion envelope. A body without the payload
// field is treated as the payload itself.
type webhookRequest struct {
	UserID    string          `json:"user_id"`
	DedupeKey string          `json:"dedupe_key"`
	Payload   types.ConfigMap `json:"payload"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	var raw types.ConfigMap
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if _, ok := raw["payload"]; ok {
		data, _ := json.Marshal(raw)
		if err := json.Unmarshal(data, &req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed envelope")
			return
		}
	} else {
		req.Payload = raw
	}

	event := &types.ForgeEvent{
		Type:      types.TriggerWebhook,
		Payload:   req.Payload,
		At:        time.Now().UTC(),
		DedupeKey: req.DedupeKey,
		UserID:    req.UserID,
	}

	data, err := json.Marshal(event)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode event")
		return
	}
	if err := s.transport.Publish(r.Context(), WebhookSubject, data); err != nil {
		s.logger.Warn("webhook publish failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "event bus unavailable")
		return
	}

	writeJSON(w, http.StatusAccepted, event)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.rules.List(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule types.ForgeRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if err := s.rules.Create(r.Context(), &rule); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &rule)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.rules.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var rule types.ForgeRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	rule.ID = r.PathValue("id")
	if err := s.rules.Update(r.Context(), &rule); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.rules.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleRule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	rule, err := s.rules.Toggle(r.Context(), r.PathValue("id"), body.Enabled)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// writeStoreError maps store errors to HTTP status codes.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case stderrors.Is(err, errors.ErrRuleNotFound):
		writeError(w, http.StatusNotFound, "rule not found")
	case stderrors.Is(err, errors.ErrRuleExists):
		writeError(w, http.StatusConflict, "rule already exists")
	case stderrors.Is(err, errors.ErrVersionStale):
		writeError(w, http.StatusConflict, "rule was modified concurrently")
	case errors.IsInvalid(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("store operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	// Encode failures after WriteHeader cannot be reported to the client.
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
