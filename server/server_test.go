/*
Copyright 2026 Opsmith, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package server_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opsmith/sre-agent/events"
	"github.com/opsmith/sre-agent/repoconfig"
	"github.com/opsmith/sre-agent/server"
	"github.com/opsmith/sre-agent/tracker"
)

var testSecret = []byte("it's a secret to everybody")

// fakeAgent records which handler ran and returns canned results.
type fakeAgent struct {
	failures  int
	successes int
	err       error
}

func (f *fakeAgent) HandleFailure(context.Context, *events.WorkflowRunEvent, *repoconfig.Config) (string, error) {
	f.failures++
	return "analyzed", f.err
}

func (f *fakeAgent) HandleSuccess(context.Context, *events.WorkflowRunEvent, *repoconfig.Config, *tracker.Entry) (string, error) {
	f.successes++
	return "resolved", f.err
}

type defaultConfigs struct{}

func (defaultConfigs) Load(context.Context, string, string) *repoconfig.Config {
	return repoconfig.Default()
}

// fakeLookup returns a fixed entry for every key it holds.
type fakeLookup map[string]tracker.Entry

func (f fakeLookup) Get(_ context.Context, owner, repo string, workflowID int64) (tracker.Entry, bool) {
	e, ok := f[tracker.Key(owner, repo, workflowID)]
	return e, ok
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, testSecret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newServer(agent *fakeAgent, tracked fakeLookup) http.Handler {
	return server.New(testSecret, agent, defaultConfigs{}, tracked, "test", "claude-sonnet-4-20250514").Handler()
}

func post(t *testing.T, h http.Handler, eventType string, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", eventType)
	req.Header.Set("X-GitHub-Delivery", "delivery-1")
	req.Header.Set("X-Hub-Signature-256", signature)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return got
}

func workflowRunPayload(t *testing.T, conclusion events.Conclusion) []byte {
	t.Helper()
	body, err := json.Marshal(events.WorkflowRunEvent{
		Action: "completed",
		WorkflowRun: events.WorkflowRun{
			ID:         100,
			Name:       "CI",
			HeadBranch: "main",
			Conclusion: conclusion,
			WorkflowID: 7,
		},
		Repository: events.Repository{
			ID:       1,
			Name:     "widgets",
			FullName: "acme/widgets",
			Owner:    events.Owner{Login: "acme"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestWebhookSignature(t *testing.T) {
	agent := &fakeAgent{}
	h := newServer(agent, fakeLookup{})
	body := workflowRunPayload(t, events.ConclusionFailure)

	t.Run("missing signature", func(t *testing.T) {
		rec := post(t, h, "workflow_run", body, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("got status %d, want 401", rec.Code)
		}
		if got := decode(t, rec)["error"]; got != "Invalid signature" {
			t.Errorf("got error %v", got)
		}
	})

	t.Run("wrong signature", func(t *testing.T) {
		rec := post(t, h, "workflow_run", body, sign([]byte("other body")))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("got status %d, want 401", rec.Code)
		}
	})

	if agent.failures != 0 {
		t.Errorf("agent ran %d times on rejected deliveries", agent.failures)
	}
}

func TestWebhookInvalidJSON(t *testing.T) {
	h := newServer(&fakeAgent{}, fakeLookup{})
	body := []byte("{not json")
	rec := post(t, h, "workflow_run", body, sign(body))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", rec.Code)
	}
	if got := decode(t, rec)["error"]; got != "Invalid JSON" {
		t.Errorf("got error %v", got)
	}
}

func TestWebhookPing(t *testing.T) {
	h := newServer(&fakeAgent{}, fakeLookup{})
	body := []byte(`{"zen": "Keep it logically awesome."}`)
	rec := post(t, h, "ping", body, sign(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	if got := decode(t, rec)["message"]; got != "Pong!" {
		t.Errorf("got message %v, want Pong!", got)
	}
}

func TestWebhookUnknownEvent(t *testing.T) {
	h := newServer(&fakeAgent{}, fakeLookup{})
	body := []byte(`{}`)
	rec := post(t, h, "push", body, sign(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	if got := decode(t, rec)["message"]; got != "Event 'push' acknowledged but not processed" {
		t.Errorf("got message %v", got)
	}
}

func TestWebhookValidation(t *testing.T) {
	h := newServer(&fakeAgent{}, fakeLookup{})
	body := []byte(`{"action": "completed", "workflow_run": {"id": 1}, "repository": {}}`)
	rec := post(t, h, "workflow_run", body, sign(body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rec.Code)
	}
	got := decode(t, rec)
	if got["error"] != "Invalid payload" {
		t.Errorf("got error %v", got["error"])
	}
	details, ok := got["details"].([]any)
	if !ok || len(details) == 0 {
		t.Errorf("expected validation details, got %v", got["details"])
	}
}

func TestWebhookFailureDispatch(t *testing.T) {
	agent := &fakeAgent{}
	h := newServer(agent, fakeLookup{})
	body := workflowRunPayload(t, events.ConclusionFailure)

	rec := post(t, h, "workflow_run", body, sign(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200: %s", rec.Code, rec.Body.String())
	}
	got := decode(t, rec)
	if got["processed"] != true {
		t.Errorf("got processed=%v, want true", got["processed"])
	}
	if agent.failures != 1 || agent.successes != 0 {
		t.Errorf("got failures=%d successes=%d, want 1/0", agent.failures, agent.successes)
	}
}

func TestWebhookSuccessDispatch(t *testing.T) {
	agent := &fakeAgent{}
	tracked := fakeLookup{
		tracker.Key("acme", "widgets", 7): {Owner: "acme", Repo: "widgets", WorkflowID: 7, IssueNumber: 42},
	}
	h := newServer(agent, tracked)
	body := workflowRunPayload(t, events.ConclusionSuccess)

	rec := post(t, h, "workflow_run", body, sign(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if agent.successes != 1 || agent.failures != 0 {
		t.Errorf("got failures=%d successes=%d, want 0/1", agent.failures, agent.successes)
	}
}

func TestWebhookIgnored(t *testing.T) {
	agent := &fakeAgent{}
	h := newServer(agent, fakeLookup{})
	// Success with nothing tracked needs no action.
	body := workflowRunPayload(t, events.ConclusionSuccess)

	rec := post(t, h, "workflow_run", body, sign(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	got := decode(t, rec)
	if got["processed"] != false {
		t.Errorf("got processed=%v, want false", got["processed"])
	}
	if agent.failures+agent.successes != 0 {
		t.Error("agent should not run for ignored events")
	}
}

func TestWebhookAgentError(t *testing.T) {
	agent := &fakeAgent{err: errors.New("model unavailable")}
	h := newServer(agent, fakeLookup{})
	body := workflowRunPayload(t, events.ConclusionFailure)

	rec := post(t, h, "workflow_run", body, sign(body))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d, want 500", rec.Code)
	}
	got := decode(t, rec)
	if got["error"] != "Processing failed" {
		t.Errorf("got error %v", got["error"])
	}
}

func TestHealthAndStatus(t *testing.T) {
	h := newServer(&fakeAgent{}, fakeLookup{})

	t.Run("health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("got status %d, want 200", rec.Code)
		}
		if got := decode(t, rec)["status"]; got != "healthy" {
			t.Errorf("got status %v", got)
		}
	})

	t.Run("status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("got status %d, want 200", rec.Code)
		}
		got := decode(t, rec)
		if got["environment"] != "test" {
			t.Errorf("got environment %v", got["environment"])
		}
		if got["model"] != "claude-sonnet-4-20250514" {
			t.Errorf("got model %v", got["model"])
		}
	})

	t.Run("webhook rejects GET", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("got status %d, want 405", rec.Code)
		}
	})
}
