/*
Copyright 2026 Opsmith, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package ghstatus fetches and caches GitHub platform health from the
// public githubstatus.com API. Results are cached for a TTL window
// and any fetch failure degrades to a neutral "unknown" status, so
// callers never see an error from this package.
package ghstatus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"
)

// DefaultBaseURL is the public githubstatus.com API.
const DefaultBaseURL = "https://www.githubstatus.com/api/v2"

// DefaultTTL is how long a fetched status stays fresh. Platform
// status changes on the order of minutes, so 60s is plenty.
const DefaultTTL = time.Minute

// Component is one subsystem on the status page.
type Component struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"` // operational, degraded_performance, partial_outage, major_outage
}

// Incident is one unresolved incident.
type Incident struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Impact    string `json:"impact"`
	Shortlink string `json:"shortlink"`
}

// Overall is the summary indicator.
type Overall struct {
	Indicator   string `json:"indicator"` // none, minor, major, critical
	Description string `json:"description"`
}

// Status is a snapshot of GitHub platform health.
type Status struct {
	Status     Overall     `json:"status"`
	Components []Component `json:"components"`
	Incidents  []Incident  `json:"incidents"`
}

// ActionsHealth is the verdict on the Actions subsystem.
type ActionsHealth struct {
	Healthy bool
	Details string
}

// Client fetches and caches GitHub status.
type Client struct {
	baseURL string
	httpc   *http.Client
	ttl     time.Duration
	now     func() time.Time

	mu        sync.Mutex
	cached    *Status
	lastFetch time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the status API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// WithTTL overrides the cache TTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Client) { c.ttl = ttl }
}

// New returns a status client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpc:   &http.Client{Timeout: 10 * time.Second},
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// fallback is returned whenever the status API cannot be reached.
func fallback() *Status {
	return &Status{
		Status:     Overall{Indicator: "none", Description: "Unable to fetch status"},
		Components: []Component{},
		Incidents:  []Incident{},
	}
}

// Status returns the current GitHub status, refetching at most once
// per TTL window. The three underlying resources are fetched
// concurrently; any failure yields the neutral fallback instead of an
// error, and the stale cache timestamp is left untouched so the next
// call retries.
func (c *Client) Status(ctx context.Context) *Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && c.now().Sub(c.lastFetch) < c.ttl {
		return c.cached
	}

	status, err := c.fetch(ctx)
	if err != nil {
		clog.FromContext(ctx).With("error", err).Error("Failed to fetch GitHub status")
		return fallback()
	}

	c.cached = status
	c.lastFetch = c.now()
	return status
}

func (c *Client) fetch(ctx context.Context) (*Status, error) {
	var (
		summary    struct{ Status Overall }
		components struct{ Components []Component }
		incidents  struct{ Incidents []Incident }
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return c.getJSON(ctx, "/status.json", &summary) })
	eg.Go(func() error { return c.getJSON(ctx, "/components.json", &components) })
	eg.Go(func() error { return c.getJSON(ctx, "/incidents/unresolved.json", &incidents) })
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return &Status{
		Status:     summary.Status,
		Components: components.Components,
		Incidents:  incidents.Incidents,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return fmt.Errorf("fetching %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// ActionsHealth reports whether the Actions component is healthy.
// The component is located by case-insensitive substring match on
// "actions"; if no such component exists we fail open and report
// healthy with an unknown note, since blocking retries on an
// unrecognized status page layout would be overly conservative.
func (c *Client) ActionsHealth(ctx context.Context) ActionsHealth {
	status := c.Status(ctx)

	for _, comp := range status.Components {
		if !strings.Contains(strings.ToLower(comp.Name), "actions") {
			continue
		}
		if comp.Status == "operational" {
			return ActionsHealth{Healthy: true, Details: "GitHub Actions is operational"}
		}
		return ActionsHealth{Healthy: false, Details: fmt.Sprintf("GitHub Actions status: %s", comp.Status)}
	}
	return ActionsHealth{Healthy: true, Details: "GitHub Actions status unknown"}
}

// Summary renders the overall status, Actions health, and any active
// incidents or degraded components as text for the agent prompt.
func (c *Client) Summary(ctx context.Context) string {
	status := c.Status(ctx)
	health := c.ActionsHealth(ctx)

	var b strings.Builder
	b.WriteString("## GitHub Status Summary\n")
	fmt.Fprintf(&b, "Overall: %s\n", status.Status.Description)
	fmt.Fprintf(&b, "Actions: %s", health.Details)

	if len(status.Incidents) > 0 {
		fmt.Fprintf(&b, "\n\n### Active Incidents (%d)\n", len(status.Incidents))
		for _, inc := range status.Incidents {
			fmt.Fprintf(&b, "- **%s** [%s]: %s\n", inc.Name, inc.Impact, inc.Status)
		}
	}

	var degraded []Component
	for _, comp := range status.Components {
		if comp.Status != "operational" {
			degraded = append(degraded, comp)
		}
	}
	if len(degraded) > 0 {
		b.WriteString("\n\n### Degraded Components\n")
		for _, comp := range degraded {
			fmt.Fprintf(&b, "- %s: %s\n", comp.Name, comp.Status)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
