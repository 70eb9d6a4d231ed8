/*
Copyright 2026 Opsmith, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package dispatcher orchestrates one agent invocation per accepted
// webhook event: it builds the system and context prompts, wires the
// stores and GitHub operations up as tools, and awaits the agent's
// bounded-time response.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/opsmith/sre-agent/agents/executor"
	"github.com/opsmith/sre-agent/events"
	"github.com/opsmith/sre-agent/ghstatus"
	"github.com/opsmith/sre-agent/githubops"
	"github.com/opsmith/sre-agent/notestore"
	"github.com/opsmith/sre-agent/repoconfig"
	"github.com/opsmith/sre-agent/tracker"
)

// DefaultTimeout bounds one agent session. The agent call dominates
// request latency; everything else is milliseconds.
const DefaultTimeout = 2 * time.Minute

// Dispatcher runs agent sessions for workflow run events.
type Dispatcher struct {
	exec    executor.Interface
	ops     *githubops.Ops
	status  *ghstatus.Client
	notes   *notestore.Store
	tracked *tracker.Tracker
	timeout time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout overrides the per-session timeout.
func WithTimeout(d time.Duration) Option {
	return func(dp *Dispatcher) { dp.timeout = d }
}

// New constructs a Dispatcher. All collaborators are injected; the
// dispatcher owns none of them.
func New(exec executor.Interface, ops *githubops.Ops, status *ghstatus.Client, notes *notestore.Store, tracked *tracker.Tracker, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		exec:    exec,
		ops:     ops,
		status:  status,
		notes:   notes,
		tracked: tracked,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// HandleFailure runs a failure-analysis session for a failed,
// timed-out, or startup-failed workflow run. Returns the agent's
// text summary.
func (d *Dispatcher) HandleFailure(ctx context.Context, event *events.WorkflowRunEvent, cfg *repoconfig.Config) (string, error) {
	log := clog.FromContext(ctx)
	log.With("repo", event.Repository.FullName).
		With("workflow", event.WorkflowRun.Name).
		With("run", event.WorkflowRun.ID).
		With("conclusion", event.WorkflowRun.Conclusion).
		Info("Processing workflow failure")

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	response, err := d.exec.Execute(ctx, systemPrompt(cfg), failurePrompt(event), d.tools(event, cfg))
	if err != nil {
		return "", fmt.Errorf("agent session for run %d: %w", event.WorkflowRun.ID, err)
	}

	log.With("repo", event.Repository.FullName).With("run", event.WorkflowRun.ID).
		Info("Agent completed failure analysis")
	return response, nil
}

// HandleSuccess runs a close-the-loop session after a tracked
// workflow succeeded: the agent verifies, comments on and closes the
// tracked issue, and untracks the workflow.
func (d *Dispatcher) HandleSuccess(ctx context.Context, event *events.WorkflowRunEvent, cfg *repoconfig.Config, entry *tracker.Entry) (string, error) {
	log := clog.FromContext(ctx)
	log.With("repo", event.Repository.FullName).
		With("workflow", event.WorkflowRun.Name).
		With("issue", entry.IssueNumber).
		Info("Tracked workflow succeeded, processing issue resolution")

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	response, err := d.exec.Execute(ctx, systemPrompt(cfg), successPrompt(event, entry), d.tools(event, cfg))
	if err != nil {
		return "", fmt.Errorf("agent session for tracked issue #%d: %w", entry.IssueNumber, err)
	}

	log.With("repo", event.Repository.FullName).With("issue", entry.IssueNumber).
		Info("Agent completed success handling")
	return response, nil
}
