/*
Copyright 2026 Opsmith, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package eventfilter decides whether a workflow_run event warrants
// agent intervention. The decision is pure given the event, the
// repository policy, and the tracked-workflow lookup result.
//
// Ignore rules (conclusion, branch, workflow allow-list) apply
// uniformly before the success/failure branch: a repository that
// ignores a branch ignores it for both failure analysis and
// tracked-success resolution, so tracked issues on ignored branches
// are never auto-closed behind the operator's back.
package eventfilter

import (
	"context"
	"strings"

	"github.com/opsmith/sre-agent/events"
	"github.com/opsmith/sre-agent/repoconfig"
	"github.com/opsmith/sre-agent/tracker"
)

// Outcome enumerates the filter verdicts.
type Outcome int

const (
	// Ignore means the event needs no processing.
	Ignore Outcome = iota
	// ProcessFailure routes the event to failure analysis.
	ProcessFailure
	// ProcessSuccess routes the event to tracked-issue resolution.
	ProcessSuccess
)

func (o Outcome) String() string {
	switch o {
	case ProcessFailure:
		return "process_failure"
	case ProcessSuccess:
		return "process_success"
	default:
		return "ignore"
	}
}

// Decision is the filter verdict. Tracked is set only for
// ProcessSuccess and carries the exact entry found for the workflow.
type Decision struct {
	Outcome Outcome
	// Reason explains an Ignore verdict for logging.
	Reason string
	// Tracked is the entry whose issue should be resolved.
	Tracked *tracker.Entry
}

func ignore(reason string) Decision {
	return Decision{Outcome: Ignore, Reason: reason}
}

// Lookup reports the tracked entry for a workflow, if any.
type Lookup interface {
	Get(ctx context.Context, owner, repo string, workflowID int64) (tracker.Entry, bool)
}

// Decide applies the filtering rules in order and returns the verdict.
func Decide(ctx context.Context, e *events.WorkflowRunEvent, cfg *repoconfig.Config, tracked Lookup) Decision {
	if e.Action != "completed" {
		return ignore("action is not completed")
	}
	if !cfg.Enabled {
		return ignore("agent disabled for repository")
	}

	run := e.WorkflowRun
	for _, c := range cfg.Ignore.Conclusions {
		if run.Conclusion == c {
			return ignore("conclusion ignored by configuration")
		}
	}
	if run.HeadBranch != "" {
		for _, pattern := range cfg.Ignore.Branches {
			if MatchGlob(run.HeadBranch, pattern) {
				return ignore("branch ignored by configuration")
			}
		}
	}
	if len(cfg.Workflows) > 0 && !workflowAllowed(run.Name, cfg.Workflows) {
		return ignore("workflow not in allow-list")
	}

	if run.Conclusion == events.ConclusionSuccess {
		entry, ok := tracked.Get(ctx, e.Repository.Owner.Login, e.Repository.Name, run.WorkflowID)
		if !ok {
			return ignore("success with no tracked issue")
		}
		return Decision{Outcome: ProcessSuccess, Tracked: &entry}
	}

	if !run.Conclusion.Actionable() {
		return ignore("conclusion requires no action")
	}
	return Decision{Outcome: ProcessFailure}
}

// workflowAllowed reports whether name is in the allow-list,
// case-insensitively.
func workflowAllowed(name string, allowed []string) bool {
	for _, w := range allowed {
		if strings.EqualFold(w, name) {
			return true
		}
	}
	return false
}
