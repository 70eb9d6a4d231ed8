/*
Copyright 2026 Opsmith, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package tracker_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/opsmith/sre-agent/tracker"
)

func TestTrackAndGet(t *testing.T) {
	ctx := context.Background()
	tr := tracker.New(filepath.Join(t.TempDir(), "tracked.json"))

	want := tr.Track(ctx, "acme", "widgets", 7, "CI", 42, 100)
	if want.Key != "acme/widgets/7" {
		t.Errorf("got key %q, want %q", want.Key, "acme/widgets/7")
	}

	got, ok := tr.Get(ctx, "acme", "widgets", 7)
	if !ok {
		t.Fatal("expected tracked entry")
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}

	if _, ok := tr.Get(ctx, "acme", "widgets", 8); ok {
		t.Error("unexpected entry for untracked workflow")
	}
}

func TestTrackOverwrites(t *testing.T) {
	ctx := context.Background()
	tr := tracker.New(filepath.Join(t.TempDir(), "tracked.json"))

	tr.Track(ctx, "acme", "widgets", 7, "CI", 42, 100)
	tr.Track(ctx, "acme", "widgets", 7, "CI", 43, 101)

	got, ok := tr.Get(ctx, "acme", "widgets", 7)
	if !ok {
		t.Fatal("expected tracked entry")
	}
	if got.IssueNumber != 43 || got.FailedRunID != 101 {
		t.Errorf("got issue=%d run=%d, want issue=43 run=101", got.IssueNumber, got.FailedRunID)
	}
	if len(tr.GetAll(ctx)) != 1 {
		t.Errorf("got %d entries, want 1", len(tr.GetAll(ctx)))
	}
}

func TestUntrack(t *testing.T) {
	ctx := context.Background()
	tr := tracker.New(filepath.Join(t.TempDir(), "tracked.json"))

	if tr.Untrack(ctx, "acme", "widgets", 7) {
		t.Error("untracking an unknown key should report false")
	}

	tr.Track(ctx, "acme", "widgets", 7, "CI", 42, 100)
	if !tr.Untrack(ctx, "acme", "widgets", 7) {
		t.Error("expected untrack to report true")
	}
	if _, ok := tr.Get(ctx, "acme", "widgets", 7); ok {
		t.Error("entry still present after untrack")
	}
}

func TestGetForRepo(t *testing.T) {
	ctx := context.Background()
	tr := tracker.New(filepath.Join(t.TempDir(), "tracked.json"))

	tr.Track(ctx, "acme", "widgets", 7, "CI", 42, 100)
	tr.Track(ctx, "acme", "widgets", 8, "Deploy", 43, 101)
	tr.Track(ctx, "acme", "gadgets", 9, "CI", 44, 102)

	got := tr.GetForRepo(ctx, "acme", "widgets")
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	for _, e := range got {
		if e.Repo != "widgets" {
			t.Errorf("unexpected entry %q", e.Key)
		}
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tracked.json")

	first := tracker.New(path)
	want := first.Track(ctx, "acme", "widgets", 7, "CI", 42, 100)

	// A fresh tracker over the same file sees what the first wrote.
	second := tracker.New(path)
	got, ok := second.Get(ctx, "acme", "widgets", 7)
	if !ok {
		t.Fatal("expected entry after reload")
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApproxTime(0)); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissingFile(t *testing.T) {
	ctx := context.Background()
	tr := tracker.New(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if got := tr.GetAll(ctx); len(got) != 0 {
		t.Errorf("got %d entries from missing file, want 0", len(got))
	}
}
