/*
Copyright 2026 Opsmith, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main runs the SRE agent webhook service: it receives GitHub
// workflow_run events, filters them, and hands actionable ones to a
// Claude-backed agent for diagnosis and remediation.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
	"github.com/opsmith/sre-agent/agents/executor"
	"github.com/opsmith/sre-agent/dispatcher"
	"github.com/opsmith/sre-agent/ghstatus"
	"github.com/opsmith/sre-agent/githubops"
	"github.com/opsmith/sre-agent/notestore"
	"github.com/opsmith/sre-agent/repoconfig"
	"github.com/opsmith/sre-agent/server"
	"github.com/opsmith/sre-agent/tracker"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/oauth2"
)

type config struct {
	Port        int    `env:"PORT,default=8080"`
	Environment string `env:"ENVIRONMENT,default=development"`

	GitHubToken   string `env:"GITHUB_TOKEN,required"`
	WebhookSecret string `env:"GITHUB_WEBHOOK_SECRET,required"`

	AnthropicAPIKey string        `env:"ANTHROPIC_API_KEY,required"`
	ClaudeModel     string        `env:"CLAUDE_MODEL,default=claude-sonnet-4-20250514"`
	AgentTimeout    time.Duration `env:"AGENT_TIMEOUT,default=2m"`

	DataDir string `env:"DATA_DIR,default=data"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		clog.FatalContextf(ctx, "processing config: %v", err)
	}

	// GitHub REST client with a static token.
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GitHubToken})
	gh := github.NewClient(oauth2.NewClient(ctx, ts))

	// Durable stores, constructed once and injected everywhere.
	notes := notestore.New(filepath.Join(cfg.DataDir, "notes.json"))
	tracked := tracker.New(filepath.Join(cfg.DataDir, "tracked-workflows.json"))
	status := ghstatus.New()
	ops := githubops.New(gh)
	configs := repoconfig.NewLoader(gh)

	client := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))
	exec, err := executor.New(client,
		executor.WithModel(cfg.ClaudeModel),
		executor.WithMaxTokens(8192),
		executor.WithTemperature(0.1),
	)
	if err != nil {
		clog.FatalContextf(ctx, "creating executor: %v", err)
	}

	agent := dispatcher.New(exec, ops, status, notes, tracked,
		dispatcher.WithTimeout(cfg.AgentTimeout))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.New([]byte(cfg.WebhookSecret), agent, configs, tracked, cfg.Environment, cfg.ClaudeModel).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			clog.ErrorContextf(shutdownCtx, "shutting down server: %v", err)
		}
	}()

	clog.InfoContextf(ctx, "Starting SRE agent on port %d (model=%s)", cfg.Port, cfg.ClaudeModel)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		clog.FatalContextf(ctx, "server failed: %v", err)
	}
	clog.InfoContext(ctx, "Server stopped")
}
