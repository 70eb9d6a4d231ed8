/*
Copyright 2026 Opsmith, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package repoconfig

import (
	"context"
	"errors"
	"net/http"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
)

// Loader fetches repository policy overrides from GitHub.
type Loader struct {
	gh *github.Client
}

// NewLoader returns a Loader backed by the given GitHub client.
func NewLoader(gh *github.Client) *Loader {
	return &Loader{gh: gh}
}

// Load returns the policy for owner/repo. A missing, unreadable, or
// invalid override degrades to the defaults rather than failing the
// event: policy fetch problems must never block failure analysis.
func (l *Loader) Load(ctx context.Context, owner, repo string) *Config {
	log := clog.FromContext(ctx)

	content, _, _, err := l.gh.Repositories.GetContents(ctx, owner, repo, ConfigPath, nil)
	if err != nil {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
			log.With("owner", owner).With("repo", repo).
				Debug("No repo config override, using defaults")
		} else {
			log.With("owner", owner).With("repo", repo).With("error", err).
				Warn("Failed to fetch repo config, using defaults")
		}
		return Default()
	}
	if content == nil {
		return Default()
	}

	raw, err := content.GetContent()
	if err != nil {
		log.With("owner", owner).With("repo", repo).With("error", err).
			Warn("Failed to decode repo config, using defaults")
		return Default()
	}

	cfg, err := Parse([]byte(raw))
	if err != nil {
		log.With("owner", owner).With("repo", repo).With("error", err).
			Warn("Invalid repo config, using defaults")
		return Default()
	}
	return cfg
}
