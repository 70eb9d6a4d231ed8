/*
Copyright 2026 Opsmith, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package notestore is a durable collection of free-text SRE
// debugging notes, keyed by an opaque id. Every mutation rewrites the
// full collection to disk; that is fine at the dozens-to-hundreds of
// notes this service accumulates and would need an append log or a
// real database beyond that.
package notestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
)

// Note is a single SRE debugging note.
type Note struct {
	ID           string    `json:"id"`
	RepoFullName string    `json:"repoFullName"`
	WorkflowID   int64     `json:"workflowId,omitempty"`
	RunID        int64     `json:"runId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Tags         []string  `json:"tags"`
	Resolved     bool      `json:"resolved"`
}

// Draft is the caller-supplied portion of a new note.
type Draft struct {
	RepoFullName string
	WorkflowID   int64
	RunID        int64
	Title        string
	Content      string
	Tags         []string
}

// Update is a partial mutation. Nil fields are left unchanged.
type Update struct {
	Title    *string
	Content  *string
	Tags     []string
	Resolved *bool
}

// Query filters notes. Provided fields are ANDed together; Tags
// matches a note carrying any of the requested tags.
type Query struct {
	RepoFullName string
	WorkflowID   int64
	RunID        int64
	Resolved     *bool
	Tags         []string
	// Limit truncates results after sorting; 0 means the default of 10.
	Limit int
}

// DefaultQueryLimit bounds query results when the caller does not.
const DefaultQueryLimit = 10

// summaryExcerptLen caps note content excerpts in RepoSummary.
const summaryExcerptLen = 100

// Store owns the note collection. A mutex serializes the
// read-modify-persist cycle across concurrent webhook deliveries.
type Store struct {
	path string

	mu     sync.Mutex
	notes  map[string]Note
	loaded bool
	now    func() time.Time
	newID  func() string
}

// New returns a Store persisting to the given file path.
func New(path string) *Store {
	return &Store{
		path:  path,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// load reads the persisted collection once. Failures leave the store
// operating in-memory from empty. Callers must hold s.mu.
func (s *Store) load(ctx context.Context) {
	if s.loaded {
		return
	}
	s.notes = make(map[string]Note)
	s.loaded = true

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			clog.FromContext(ctx).With("path", s.path).With("error", err).
				Error("Failed to load notes, starting empty")
		}
		return
	}

	var notes []Note
	if err := json.Unmarshal(data, &notes); err != nil {
		clog.FromContext(ctx).With("path", s.path).With("error", err).
			Error("Corrupt notes file, starting empty")
		return
	}
	for _, n := range notes {
		s.notes[n.ID] = n
	}
	clog.FromContext(ctx).With("count", len(s.notes)).Info("Notes loaded from disk")
}

// persist rewrites the full collection to disk. Failures are logged;
// the in-memory state diverges from disk until the next good write.
// Callers must hold s.mu.
func (s *Store) persist(ctx context.Context) {
	notes := make([]Note, 0, len(s.notes))
	for _, n := range s.notes {
		notes = append(notes, n)
	}

	data, err := json.MarshalIndent(notes, "", "  ")
	if err != nil {
		clog.FromContext(ctx).With("error", err).Error("Failed to marshal notes")
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		clog.FromContext(ctx).With("error", err).Error("Failed to create notes data dir")
		return
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		clog.FromContext(ctx).With("path", s.path).With("error", err).
			Error("Failed to persist notes")
	}
}

// Create assigns a new id and timestamps, stores the note, and
// persists.
func (s *Store) Create(ctx context.Context, draft Draft) Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(ctx)

	now := s.now().UTC()
	note := Note{
		ID:           s.newID(),
		RepoFullName: draft.RepoFullName,
		WorkflowID:   draft.WorkflowID,
		RunID:        draft.RunID,
		CreatedAt:    now,
		UpdatedAt:    now,
		Title:        draft.Title,
		Content:      draft.Content,
		Tags:         draft.Tags,
	}
	if note.Tags == nil {
		note.Tags = []string{}
	}
	s.notes[note.ID] = note
	s.persist(ctx)

	clog.FromContext(ctx).With("note", note.ID).Debug("Note created")
	return note
}

// Apply merges the provided fields into the note and bumps UpdatedAt.
// Returns nil if the id is unknown.
func (s *Store) Apply(ctx context.Context, id string, update Update) *Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(ctx)

	note, ok := s.notes[id]
	if !ok {
		return nil
	}

	if update.Title != nil {
		note.Title = *update.Title
	}
	if update.Content != nil {
		note.Content = *update.Content
	}
	if update.Tags != nil {
		note.Tags = update.Tags
	}
	if update.Resolved != nil {
		note.Resolved = *update.Resolved
	}
	note.UpdatedAt = s.now().UTC()

	s.notes[id] = note
	s.persist(ctx)

	clog.FromContext(ctx).With("note", id).Debug("Note updated")
	return &note
}

// Resolve marks a note resolved. Returns nil if the id is unknown.
func (s *Store) Resolve(ctx context.Context, id string) *Note {
	resolved := true
	return s.Apply(ctx, id, Update{Resolved: &resolved})
}

// Get returns the note with the given id, if present.
func (s *Store) Get(ctx context.Context, id string) *Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(ctx)

	note, ok := s.notes[id]
	if !ok {
		return nil
	}
	return &note
}

// Delete removes a note and reports whether a removal occurred.
func (s *Store) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(ctx)

	if _, ok := s.notes[id]; !ok {
		return false
	}
	delete(s.notes, id)
	s.persist(ctx)

	clog.FromContext(ctx).With("note", id).Debug("Note deleted")
	return true
}

// Find returns notes matching the query, most recently updated first.
func (s *Store) Find(ctx context.Context, q Query) []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(ctx)

	var results []Note
	for _, n := range s.notes {
		if q.RepoFullName != "" && n.RepoFullName != q.RepoFullName {
			continue
		}
		if q.WorkflowID != 0 && n.WorkflowID != q.WorkflowID {
			continue
		}
		if q.RunID != 0 && n.RunID != q.RunID {
			continue
		}
		if q.Resolved != nil && n.Resolved != *q.Resolved {
			continue
		}
		if len(q.Tags) > 0 && !hasAnyTag(n.Tags, q.Tags) {
			continue
		}
		results = append(results, n)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].UpdatedAt.After(results[j].UpdatedAt)
	})

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// RepoSummary renders a human-readable digest of a repository's
// notes: counts plus the five most recently touched notes with a
// resolution marker and a capped content excerpt.
func (s *Store) RepoSummary(ctx context.Context, repoFullName string) string {
	notes := s.Find(ctx, Query{RepoFullName: repoFullName, Limit: DefaultQueryLimit})
	if len(notes) == 0 {
		return fmt.Sprintf("No SRE notes for %s.", repoFullName)
	}

	unresolved := 0
	for _, n := range notes {
		if !n.Resolved {
			unresolved++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## SRE Notes for %s\n", repoFullName)
	fmt.Fprintf(&b, "Total: %d | Unresolved: %d\n\n", len(notes), unresolved)

	for i, n := range notes {
		if i >= 5 {
			break
		}
		marker := "[unresolved]"
		if n.Resolved {
			marker = "[resolved]"
		}
		fmt.Fprintf(&b, "%s **%s** (%s)\n", marker, n.Title, n.UpdatedAt.Format(time.RFC3339))
		fmt.Fprintf(&b, "   %s\n", excerpt(n.Content, summaryExcerptLen))
	}
	return strings.TrimRight(b.String(), "\n")
}

// excerpt truncates s to max characters, appending an ellipsis when
// anything was cut.
func excerpt(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
