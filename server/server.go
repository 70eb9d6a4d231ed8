/*
Copyright 2026 Opsmith, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package server is the HTTP boundary: the webhook endpoint plus
// health, status, and metrics endpoints. Everything the sender sees
// is structured JSON with a stable success/error shape.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
	"github.com/opsmith/sre-agent/eventfilter"
	"github.com/opsmith/sre-agent/events"
	"github.com/opsmith/sre-agent/repoconfig"
	"github.com/opsmith/sre-agent/tracker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Agent runs agent sessions for filtered events.
type Agent interface {
	HandleFailure(ctx context.Context, event *events.WorkflowRunEvent, cfg *repoconfig.Config) (string, error)
	HandleSuccess(ctx context.Context, event *events.WorkflowRunEvent, cfg *repoconfig.Config, entry *tracker.Entry) (string, error)
}

// ConfigLoader resolves the per-repository policy for an event.
type ConfigLoader interface {
	Load(ctx context.Context, owner, repo string) *repoconfig.Config
}

// Server handles the service's HTTP surface.
type Server struct {
	secret      []byte
	agent       Agent
	configs     ConfigLoader
	tracked     eventfilter.Lookup
	environment string
	model       string
	now         func() time.Time
}

// New constructs a Server. The secret is the shared webhook HMAC key.
func New(secret []byte, agent Agent, configs ConfigLoader, tracked eventfilter.Lookup, environment, model string) *Server {
	return &Server{
		secret:      secret,
		agent:       agent,
		configs:     configs,
		tracked:     tracked,
		environment: environment,
		model:       model,
		now:         time.Now,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "running",
		"environment": s.environment,
		"model":       s.model,
		"timestamp":   s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := clog.FromContext(ctx)

	eventType := r.Header.Get("X-GitHub-Event")
	deliveryID := r.Header.Get("X-GitHub-Delivery")
	log = log.With("event", eventType).With("delivery", deliveryID)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 10<<20))
	if err != nil {
		log.With("error", err).Warn("Failed to read webhook body")
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid body"})
		return
	}

	if err := github.ValidateSignature(r.Header.Get(github.SHA256SignatureHeader), body, s.secret); err != nil {
		log.Warn("Invalid webhook signature")
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid signature"})
		return
	}

	if !json.Valid(body) {
		log.Warn("Invalid JSON payload")
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid JSON"})
		return
	}

	webhooksReceived.WithLabelValues(eventType).Inc()
	log.Info("Webhook received")

	switch eventType {
	case "workflow_run":
		s.handleWorkflowRun(ctx, w, log, body)
	case "ping":
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Pong!"})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Event '" + eventType + "' acknowledged but not processed",
		})
	}
}

func (s *Server) handleWorkflowRun(ctx context.Context, w http.ResponseWriter, log *clog.Logger, body []byte) {
	var event events.WorkflowRunEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.With("error", err).Warn("Malformed workflow_run payload")
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Invalid payload",
			"details": []string{err.Error()},
		})
		return
	}
	if err := event.Validate(); err != nil {
		var verr *events.ValidationError
		details := []string{err.Error()}
		if errors.As(err, &verr) {
			details = verr.Issues
		}
		log.With("issues", details).Warn("Invalid workflow_run payload")
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Invalid payload",
			"details": details,
		})
		return
	}

	cfg := s.configs.Load(ctx, event.Repository.Owner.Login, event.Repository.Name)
	decision := eventfilter.Decide(ctx, &event, cfg, s.tracked)
	decisionsTotal.WithLabelValues(decision.Outcome.String()).Inc()

	var response string
	var err error
	switch decision.Outcome {
	case eventfilter.Ignore:
		log.With("reason", decision.Reason).Debug("Workflow run ignored")
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"processed": false,
			"message":   "Workflow run acknowledged (no action needed)",
		})
		return
	case eventfilter.ProcessFailure:
		response, err = s.agent.HandleFailure(ctx, &event, cfg)
	case eventfilter.ProcessSuccess:
		response, err = s.agent.HandleSuccess(ctx, &event, cfg, decision.Tracked)
	}

	if err != nil {
		agentSessions.WithLabelValues("error").Inc()
		log.With("error", err).Error("Failed to process workflow_run")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "Processing failed",
			"message": err.Error(),
		})
		return
	}

	agentSessions.WithLabelValues("ok").Inc()
	log.With("response_length", len(response)).Info("Workflow run processed")
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"processed": true,
		"message":   "Workflow run processed by SRE agent",
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload) //nolint:errcheck
}
