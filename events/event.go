/*
Copyright 2026 Opsmith, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package events defines the workflow_run webhook payload types and
// their validation.
package events

import (
	"fmt"
	"strings"
)

// Conclusion is the terminal outcome of a workflow run.
type Conclusion string

const (
	ConclusionSuccess        Conclusion = "success"
	ConclusionFailure        Conclusion = "failure"
	ConclusionCancelled      Conclusion = "cancelled"
	ConclusionSkipped        Conclusion = "skipped"
	ConclusionTimedOut       Conclusion = "timed_out"
	ConclusionActionRequired Conclusion = "action_required"
	ConclusionStale          Conclusion = "stale"
	ConclusionNeutral        Conclusion = "neutral"
	ConclusionStartup        Conclusion = "startup_failure"
)

// knownConclusions is the set of conclusions GitHub documents for
// workflow_run events. An empty conclusion (JSON null) is also valid
// for non-completed actions.
var knownConclusions = map[Conclusion]bool{
	ConclusionSuccess:        true,
	ConclusionFailure:        true,
	ConclusionCancelled:      true,
	ConclusionSkipped:        true,
	ConclusionTimedOut:       true,
	ConclusionActionRequired: true,
	ConclusionStale:          true,
	ConclusionNeutral:        true,
	ConclusionStartup:        true,
}

// Valid reports whether c is a documented workflow run conclusion.
func (c Conclusion) Valid() bool {
	return knownConclusions[c]
}

// Actionable reports whether the conclusion warrants agent
// intervention. Cancellations and skips are deliberate; neutral and
// stale carry no signal.
func (c Conclusion) Actionable() bool {
	switch c {
	case ConclusionFailure, ConclusionTimedOut, ConclusionStartup:
		return true
	default:
		return false
	}
}

var knownActions = map[string]bool{
	"completed":   true,
	"requested":   true,
	"in_progress": true,
	"queued":      true,
	"pending":     true,
	"waiting":     true,
}

// Actor is the user associated with a workflow run.
type Actor struct {
	Login string `json:"login"`
}

// Owner identifies a repository owner.
type Owner struct {
	Login string `json:"login"`
}

// Repository identifies the repository a workflow run belongs to.
type Repository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Owner    Owner  `json:"owner"`
}

// WorkflowRun is the run portion of a workflow_run event payload.
type WorkflowRun struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	HeadBranch      string     `json:"head_branch"`
	HeadSHA         string     `json:"head_sha"`
	RunNumber       int        `json:"run_number"`
	RunAttempt      int        `json:"run_attempt"`
	Status          string     `json:"status"`
	Conclusion      Conclusion `json:"conclusion"`
	WorkflowID      int64      `json:"workflow_id"`
	HTMLURL         string     `json:"html_url"`
	CreatedAt       string     `json:"created_at"`
	UpdatedAt       string     `json:"updated_at"`
	Actor           *Actor     `json:"actor"`
	TriggeringActor *Actor     `json:"triggering_actor"`
}

// WorkflowRunEvent is the subset of the workflow_run webhook payload
// the service consumes. Produced by GitHub; read-only thereafter.
type WorkflowRunEvent struct {
	Action      string      `json:"action"`
	WorkflowRun WorkflowRun `json:"workflow_run"`
	Repository  Repository  `json:"repository"`
	Sender      Actor       `json:"sender"`
}

// TriggeredBy returns the login that triggered the run, preferring
// the triggering actor over the run actor.
func (e *WorkflowRunEvent) TriggeredBy() string {
	if e.WorkflowRun.TriggeringActor != nil && e.WorkflowRun.TriggeringActor.Login != "" {
		return e.WorkflowRun.TriggeringActor.Login
	}
	if e.WorkflowRun.Actor != nil {
		return e.WorkflowRun.Actor.Login
	}
	return ""
}

// ValidationError reports why a payload failed schema validation.
// Issues are suitable for returning to the webhook sender.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid workflow_run payload: %s", strings.Join(e.Issues, "; "))
}

// Validate checks that the event carries the fields the service
// depends on. Returns a *ValidationError listing every issue found.
func (e *WorkflowRunEvent) Validate() error {
	var issues []string

	if e.Action == "" {
		issues = append(issues, "action is required")
	} else if !knownActions[e.Action] {
		issues = append(issues, fmt.Sprintf("unknown action %q", e.Action))
	}

	if e.WorkflowRun.ID == 0 {
		issues = append(issues, "workflow_run.id is required")
	}
	if e.WorkflowRun.WorkflowID == 0 {
		issues = append(issues, "workflow_run.workflow_id is required")
	}
	if e.WorkflowRun.Conclusion != "" && !e.WorkflowRun.Conclusion.Valid() {
		issues = append(issues, fmt.Sprintf("unknown conclusion %q", e.WorkflowRun.Conclusion))
	}

	if e.Repository.Name == "" {
		issues = append(issues, "repository.name is required")
	}
	if e.Repository.FullName == "" {
		issues = append(issues, "repository.full_name is required")
	}
	if e.Repository.Owner.Login == "" {
		issues = append(issues, "repository.owner.login is required")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
