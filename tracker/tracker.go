/*
Copyright 2026 Opsmith, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package tracker maintains the durable map from a workflow to the
// open issue created for a prior failure. It is the only cross-event
// state machine in the service: an entry is created when the agent
// opens an issue for a failing workflow, and removed when the
// workflow next succeeds and the issue is closed.
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
)

// Entry records an open issue for a previously failed workflow.
type Entry struct {
	// Key is owner/repo/workflowId. At most one entry exists per key.
	Key          string    `json:"key"`
	Owner        string    `json:"owner"`
	Repo         string    `json:"repo"`
	WorkflowID   int64     `json:"workflowId"`
	WorkflowName string    `json:"workflowName"`
	IssueNumber  int       `json:"issueNumber"`
	FailedRunID  int64     `json:"failedRunId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Key builds the unique tracking key for a workflow.
func Key(owner, repo string, workflowID int64) string {
	return fmt.Sprintf("%s/%s/%d", owner, repo, workflowID)
}

// Tracker is a durable (owner, repo, workflowId) -> Entry map. The
// full collection is loaded on first use and rewritten to disk on
// every mutation. A mutex serializes concurrent webhook deliveries.
type Tracker struct {
	path string

	mu      sync.Mutex
	entries map[string]Entry
	loaded  bool
	now     func() time.Time
}

// New returns a Tracker persisting to the given file path.
func New(path string) *Tracker {
	return &Tracker{
		path: path,
		now:  time.Now,
	}
}

// load reads the persisted collection once. A read failure leaves the
// tracker operating on an empty in-memory map rather than failing the
// caller. Callers must hold t.mu.
func (t *Tracker) load(ctx context.Context) {
	if t.loaded {
		return
	}
	t.entries = make(map[string]Entry)
	t.loaded = true

	data, err := os.ReadFile(t.path)
	if err != nil {
		if !os.IsNotExist(err) {
			clog.FromContext(ctx).With("path", t.path).With("error", err).
				Error("Failed to load tracked workflows, starting empty")
		}
		return
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		clog.FromContext(ctx).With("path", t.path).With("error", err).
			Error("Corrupt tracker file, starting empty")
		return
	}
	for _, e := range entries {
		t.entries[e.Key] = e
	}
	clog.FromContext(ctx).With("count", len(t.entries)).
		Info("Tracked workflows loaded from disk")
}

// persist rewrites the full collection. A write failure is logged and
// the in-memory state stays authoritative until the next successful
// write. Callers must hold t.mu.
func (t *Tracker) persist(ctx context.Context) {
	entries := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		entries = append(entries, e)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		clog.FromContext(ctx).With("error", err).Error("Failed to marshal tracked workflows")
		return
	}
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		clog.FromContext(ctx).With("error", err).Error("Failed to create tracker data dir")
		return
	}
	if err := os.WriteFile(t.path, data, 0o644); err != nil {
		clog.FromContext(ctx).With("path", t.path).With("error", err).
			Error("Failed to persist tracked workflows")
	}
}

// Track upserts an entry, overwriting any prior entry for the same
// key, and persists before returning.
func (t *Tracker) Track(ctx context.Context, owner, repo string, workflowID int64, workflowName string, issueNumber int, failedRunID int64) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.load(ctx)

	entry := Entry{
		Key:          Key(owner, repo, workflowID),
		Owner:        owner,
		Repo:         repo,
		WorkflowID:   workflowID,
		WorkflowName: workflowName,
		IssueNumber:  issueNumber,
		FailedRunID:  failedRunID,
		CreatedAt:    t.now().UTC(),
	}
	t.entries[entry.Key] = entry
	t.persist(ctx)

	clog.FromContext(ctx).With("key", entry.Key).With("issue", issueNumber).
		Info("Now tracking workflow")
	return entry
}

// Untrack removes the entry for a workflow if present and reports
// whether a removal occurred. Untracking an unknown key does not
// touch persisted state.
func (t *Tracker) Untrack(ctx context.Context, owner, repo string, workflowID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.load(ctx)

	key := Key(owner, repo, workflowID)
	if _, ok := t.entries[key]; !ok {
		return false
	}
	delete(t.entries, key)
	t.persist(ctx)

	clog.FromContext(ctx).With("key", key).Info("Stopped tracking workflow")
	return true
}

// Get returns the entry for a workflow, if one exists.
func (t *Tracker) Get(ctx context.Context, owner, repo string, workflowID int64) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.load(ctx)

	entry, ok := t.entries[Key(owner, repo, workflowID)]
	return entry, ok
}

// GetForRepo returns all entries for a repository.
func (t *Tracker) GetForRepo(ctx context.Context, owner, repo string) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.load(ctx)

	prefix := fmt.Sprintf("%s/%s/", owner, repo)
	var entries []Entry
	for key, e := range t.entries {
		if strings.HasPrefix(key, prefix) {
			entries = append(entries, e)
		}
	}
	return entries
}

// GetAll returns every tracked entry.
func (t *Tracker) GetAll(ctx context.Context) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.load(ctx)

	entries := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		entries = append(entries, e)
	}
	return entries
}
