/*
Copyright 2026 Opsmith, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package eventfilter_test

import (
	"context"
	"testing"

	"github.com/opsmith/sre-agent/eventfilter"
	"github.com/opsmith/sre-agent/events"
	"github.com/opsmith/sre-agent/repoconfig"
	"github.com/opsmith/sre-agent/tracker"
)

// fakeLookup returns a fixed entry for every key it holds.
type fakeLookup map[string]tracker.Entry

func (f fakeLookup) Get(_ context.Context, owner, repo string, workflowID int64) (tracker.Entry, bool) {
	e, ok := f[tracker.Key(owner, repo, workflowID)]
	return e, ok
}

func failureEvent(conclusion events.Conclusion) *events.WorkflowRunEvent {
	return &events.WorkflowRunEvent{
		Action: "completed",
		WorkflowRun: events.WorkflowRun{
			ID:         100,
			Name:       "CI",
			HeadBranch: "main",
			Conclusion: conclusion,
			WorkflowID: 7,
		},
		Repository: events.Repository{
			Name:     "widgets",
			FullName: "acme/widgets",
			Owner:    events.Owner{Login: "acme"},
		},
	}
}

func TestDecide(t *testing.T) {
	ctx := context.Background()
	none := fakeLookup{}

	tests := []struct {
		name    string
		event   *events.WorkflowRunEvent
		cfg     *repoconfig.Config
		tracked eventfilter.Lookup
		want    eventfilter.Outcome
	}{{
		name: "non-completed action ignored",
		event: func() *events.WorkflowRunEvent {
			e := failureEvent("")
			e.Action = "in_progress"
			return e
		}(),
		cfg:     repoconfig.Default(),
		tracked: none,
		want:    eventfilter.Ignore,
	}, {
		name:  "disabled repository ignored",
		event: failureEvent(events.ConclusionFailure),
		cfg: func() *repoconfig.Config {
			c := repoconfig.Default()
			c.Enabled = false
			return c
		}(),
		tracked: none,
		want:    eventfilter.Ignore,
	}, {
		name:    "failure processed",
		event:   failureEvent(events.ConclusionFailure),
		cfg:     repoconfig.Default(),
		tracked: none,
		want:    eventfilter.ProcessFailure,
	}, {
		name:    "timed_out processed",
		event:   failureEvent(events.ConclusionTimedOut),
		cfg:     repoconfig.Default(),
		tracked: none,
		want:    eventfilter.ProcessFailure,
	}, {
		name:    "startup_failure processed",
		event:   failureEvent(events.ConclusionStartup),
		cfg:     repoconfig.Default(),
		tracked: none,
		want:    eventfilter.ProcessFailure,
	}, {
		name:    "cancelled ignored",
		event:   failureEvent(events.ConclusionCancelled),
		cfg:     repoconfig.Default(),
		tracked: none,
		want:    eventfilter.Ignore,
	}, {
		name:    "skipped ignored",
		event:   failureEvent(events.ConclusionSkipped),
		cfg:     repoconfig.Default(),
		tracked: none,
		want:    eventfilter.Ignore,
	}, {
		name:    "success with no tracked issue ignored",
		event:   failureEvent(events.ConclusionSuccess),
		cfg:     repoconfig.Default(),
		tracked: none,
		want:    eventfilter.Ignore,
	}, {
		name:  "success with tracked issue processed",
		event: failureEvent(events.ConclusionSuccess),
		cfg:   repoconfig.Default(),
		tracked: fakeLookup{
			tracker.Key("acme", "widgets", 7): {
				Owner:       "acme",
				Repo:        "widgets",
				WorkflowID:  7,
				IssueNumber: 42,
			},
		},
		want: eventfilter.ProcessSuccess,
	}, {
		name:  "ignored conclusion",
		event: failureEvent(events.ConclusionFailure),
		cfg: func() *repoconfig.Config {
			c := repoconfig.Default()
			c.Ignore.Conclusions = []events.Conclusion{events.ConclusionFailure}
			return c
		}(),
		tracked: none,
		want:    eventfilter.Ignore,
	}, {
		name: "ignored branch",
		event: func() *events.WorkflowRunEvent {
			e := failureEvent(events.ConclusionFailure)
			e.WorkflowRun.HeadBranch = "dependabot/npm/lodash-4.17.21"
			return e
		}(),
		cfg: func() *repoconfig.Config {
			c := repoconfig.Default()
			c.Ignore.Branches = []string{"dependabot/*"}
			return c
		}(),
		tracked: none,
		want:    eventfilter.Ignore,
	}, {
		name: "ignored branch suppresses tracked success",
		event: func() *events.WorkflowRunEvent {
			e := failureEvent(events.ConclusionSuccess)
			e.WorkflowRun.HeadBranch = "experimental"
			return e
		}(),
		cfg: func() *repoconfig.Config {
			c := repoconfig.Default()
			c.Ignore.Branches = []string{"experimental"}
			return c
		}(),
		tracked: fakeLookup{
			tracker.Key("acme", "widgets", 7): {Owner: "acme", Repo: "widgets", WorkflowID: 7},
		},
		want: eventfilter.Ignore,
	}, {
		name:  "workflow not in allow-list",
		event: failureEvent(events.ConclusionFailure),
		cfg: func() *repoconfig.Config {
			c := repoconfig.Default()
			c.Workflows = []string{"Deploy"}
			return c
		}(),
		tracked: none,
		want:    eventfilter.Ignore,
	}, {
		name:  "workflow allow-list match is case-insensitive",
		event: failureEvent(events.ConclusionFailure),
		cfg: func() *repoconfig.Config {
			c := repoconfig.Default()
			c.Workflows = []string{"ci"}
			return c
		}(),
		tracked: none,
		want:    eventfilter.ProcessFailure,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := eventfilter.Decide(ctx, tt.event, tt.cfg, tt.tracked)
			if got.Outcome != tt.want {
				t.Errorf("got outcome %s (reason %q), want %s", got.Outcome, got.Reason, tt.want)
			}
			if tt.want == eventfilter.ProcessSuccess && got.Tracked == nil {
				t.Error("expected tracked entry on success decision")
			}
			if tt.want == eventfilter.Ignore && got.Reason == "" {
				t.Error("expected a reason on ignore decision")
			}
		})
	}
}

func TestDecideTrackedEntry(t *testing.T) {
	want := tracker.Entry{
		Owner:        "acme",
		Repo:         "widgets",
		WorkflowID:   7,
		WorkflowName: "CI",
		IssueNumber:  42,
	}
	got := eventfilter.Decide(context.Background(),
		failureEvent(events.ConclusionSuccess),
		repoconfig.Default(),
		fakeLookup{tracker.Key("acme", "widgets", 7): want})
	if got.Outcome != eventfilter.ProcessSuccess {
		t.Fatalf("got outcome %s, want process_success", got.Outcome)
	}
	if got.Tracked.IssueNumber != want.IssueNumber {
		t.Errorf("got issue %d, want %d", got.Tracked.IssueNumber, want.IssueNumber)
	}
}

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		s, pattern string
		want       bool
	}{
		{"main", "main", true},
		{"main", "master", false},
		{"release-1.2", "release-*", true},
		{"release-", "release-*", true},
		{"hotfix-release-1", "release-*", false},
		{"anything", "*", true},
		{"", "*", true},
		{"feature/x", "feature/?", true},
		{"feature/xy", "feature/?", false},
		{"v1.2.3", "v1.2.3", true},
		{"v1x2x3", "v1.2.3", false}, // dot is literal
	}
	for _, tt := range tests {
		if got := eventfilter.MatchGlob(tt.s, tt.pattern); got != tt.want {
			t.Errorf("MatchGlob(%q, %q) = %t, want %t", tt.s, tt.pattern, got, tt.want)
		}
	}
}
