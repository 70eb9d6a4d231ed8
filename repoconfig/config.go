/*
Copyright 2026 Opsmith, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package repoconfig holds the per-repository policy that governs how
// workflow run events are handled. Repositories override the defaults
// by committing .github/sre-agent.yml; an empty override parses to a
// fully usable config.
package repoconfig

import (
	"fmt"

	"github.com/opsmith/sre-agent/events"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the in-repo location of the policy override.
const ConfigPath = ".github/sre-agent.yml"

// RetryPolicy controls automatic workflow retries.
type RetryPolicy struct {
	Enabled     bool `yaml:"enabled"`
	MaxAttempts int  `yaml:"maxAttempts"`
}

// IssuePolicy controls automatic issue creation.
type IssuePolicy struct {
	Enabled   bool     `yaml:"enabled"`
	Labels    []string `yaml:"labels"`
	Assignees []string `yaml:"assignees"`
}

// Actions groups the action policies.
type Actions struct {
	Retry       RetryPolicy `yaml:"retry"`
	CreateIssue IssuePolicy `yaml:"createIssue"`
}

// IgnoreRules lists event attributes that suppress processing.
type IgnoreRules struct {
	// Conclusions to skip outright.
	Conclusions []events.Conclusion `yaml:"conclusions"`
	// Branches holds glob patterns (* and ?) matched against head_branch.
	Branches []string `yaml:"branches"`
}

// Config is the per-repository policy. Immutable for the duration of
// one event's processing.
type Config struct {
	Version int  `yaml:"version"`
	Enabled bool `yaml:"enabled"`

	// Instructions is free-text appended to the agent's system prompt.
	Instructions string `yaml:"instructions"`

	Actions Actions `yaml:"actions"`

	// Workflows is an allow-list of workflow names (case-insensitive).
	// Empty means all workflows.
	Workflows []string `yaml:"workflows"`

	Ignore IgnoreRules `yaml:"ignore"`
}

// Default returns the policy used when a repository has no override.
func Default() *Config {
	return &Config{
		Version: 1,
		Enabled: true,
		Actions: Actions{
			Retry: RetryPolicy{
				Enabled:     true,
				MaxAttempts: 3,
			},
			CreateIssue: IssuePolicy{
				Enabled: true,
				Labels:  []string{"sre-agent", "automated"},
			},
		},
	}
}

// InvalidError is returned when an override parses but violates a
// policy constraint.
type InvalidError struct {
	Field  string
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid repo config: %s: %s", e.Field, e.Reason)
}

// Validate checks policy constraints.
func (c *Config) Validate() error {
	if c.Actions.Retry.MaxAttempts < 1 || c.Actions.Retry.MaxAttempts > 10 {
		return &InvalidError{
			Field:  "actions.retry.maxAttempts",
			Reason: fmt.Sprintf("must be between 1 and 10, got %d", c.Actions.Retry.MaxAttempts),
		}
	}
	for _, conclusion := range c.Ignore.Conclusions {
		if !conclusion.Valid() {
			return &InvalidError{
				Field:  "ignore.conclusions",
				Reason: fmt.Sprintf("unknown conclusion %q", conclusion),
			}
		}
	}
	return nil
}

// Parse unmarshals an override on top of the defaults, so fields the
// override omits keep their default values.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing repo config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
