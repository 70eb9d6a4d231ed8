/*
Copyright 2026 Opsmith, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package githubops wraps the GitHub REST operations the agent's
// tools depend on: issue management, failed-job log retrieval, and
// workflow re-runs.
package githubops

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
)

// maxLogJobs bounds how many failed jobs we pull logs for.
const maxLogJobs = 3

// maxLogLines bounds how many trailing log lines we keep per job.
const maxLogLines = 200

// Issue is the slice of issue metadata callers need.
type Issue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
}

// Ops performs GitHub REST operations on behalf of the agent.
type Ops struct {
	gh *github.Client
	// logc fetches signed log URLs, which require no auth.
	logc *http.Client
}

// New returns an Ops backed by the given GitHub client.
func New(gh *github.Client) *Ops {
	return &Ops{
		gh:   gh,
		logc: &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateIssue opens an issue and returns its number.
func (o *Ops) CreateIssue(ctx context.Context, owner, repo, title, body string, labels, assignees []string) (int, error) {
	issue, _, err := o.gh.Issues.Create(ctx, owner, repo, &github.IssueRequest{
		Title:     github.Ptr(title),
		Body:      github.Ptr(body),
		Labels:    &labels,
		Assignees: &assignees,
	})
	if err != nil {
		return 0, fmt.Errorf("creating issue: %w", err)
	}
	clog.FromContext(ctx).With("owner", owner).With("repo", repo).
		With("issue", issue.GetNumber()).Info("Issue created")
	return issue.GetNumber(), nil
}

// SearchIssues returns up to 10 issues in owner/repo matching the
// query string.
func (o *Ops) SearchIssues(ctx context.Context, owner, repo, query string) ([]Issue, error) {
	q := fmt.Sprintf("repo:%s/%s is:issue %s", owner, repo, query)
	result, _, err := o.gh.Search.Issues(ctx, q, &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: 10},
	})
	if err != nil {
		return nil, fmt.Errorf("searching issues: %w", err)
	}

	issues := make([]Issue, 0, len(result.Issues))
	for _, item := range result.Issues {
		issues = append(issues, Issue{
			Number: item.GetNumber(),
			Title:  item.GetTitle(),
			State:  item.GetState(),
		})
	}
	return issues, nil
}

// AddIssueComment appends a comment to an issue.
func (o *Ops) AddIssueComment(ctx context.Context, owner, repo string, number int, body string) error {
	_, _, err := o.gh.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{
		Body: github.Ptr(body),
	})
	if err != nil {
		return fmt.Errorf("commenting on issue #%d: %w", number, err)
	}
	clog.FromContext(ctx).With("owner", owner).With("repo", repo).
		With("issue", number).Info("Comment added to issue")
	return nil
}

// CloseIssue closes an issue.
func (o *Ops) CloseIssue(ctx context.Context, owner, repo string, number int) error {
	_, _, err := o.gh.Issues.Edit(ctx, owner, repo, number, &github.IssueRequest{
		State: github.Ptr("closed"),
	})
	if err != nil {
		return fmt.Errorf("closing issue #%d: %w", number, err)
	}
	clog.FromContext(ctx).With("owner", owner).With("repo", repo).
		With("issue", number).Info("Issue closed")
	return nil
}

// FailedJobLogs returns the trailing log lines from the failed jobs
// of a workflow run, limited to the three most relevant jobs and 200
// lines each to keep the agent's context manageable. Per-job fetch
// failures are reported inline rather than failing the whole call.
func (o *Ops) FailedJobLogs(ctx context.Context, owner, repo string, runID int64) (string, error) {
	jobs, _, err := o.gh.Actions.ListWorkflowJobs(ctx, owner, repo, runID, &github.ListWorkflowJobsOptions{
		Filter: "latest",
	})
	if err != nil {
		return "", fmt.Errorf("listing jobs for run %d: %w", runID, err)
	}

	var failed []*github.WorkflowJob
	for _, job := range jobs.Jobs {
		if job.GetConclusion() == "failure" {
			failed = append(failed, job)
		}
	}
	if len(failed) == 0 {
		return "No failed jobs found.", nil
	}
	if len(failed) > maxLogJobs {
		failed = failed[:maxLogJobs]
	}

	var sections []string
	for _, job := range failed {
		logText, err := o.jobLog(ctx, owner, repo, job.GetID())
		if err != nil {
			clog.FromContext(ctx).With("job", job.GetID()).With("error", err).
				Warn("Failed to fetch job logs")
			logText = "[Failed to fetch logs]"
		}
		sections = append(sections, fmt.Sprintf("=== Job: %s ===\n%s", job.GetName(), logText))
	}
	return strings.Join(sections, "\n\n"), nil
}

// jobLog downloads one job's log and keeps the trailing lines.
func (o *Ops) jobLog(ctx context.Context, owner, repo string, jobID int64) (string, error) {
	logURL, _, err := o.gh.Actions.GetWorkflowJobLogs(ctx, owner, repo, jobID, 3)
	if err != nil {
		return "", fmt.Errorf("resolving log URL: %w", err)
	}
	if !logURL.IsAbs() {
		logURL = o.gh.BaseURL.ResolveReference(logURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, logURL.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := o.logc.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading logs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading logs: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading logs: %w", err)
	}
	return TailLines(string(data), maxLogLines), nil
}

// RerunWorkflow re-runs all jobs of a workflow run.
func (o *Ops) RerunWorkflow(ctx context.Context, owner, repo string, runID int64) error {
	if _, err := o.gh.Actions.RerunWorkflowByID(ctx, owner, repo, runID); err != nil {
		return fmt.Errorf("re-running workflow %d: %w", runID, err)
	}
	clog.FromContext(ctx).With("owner", owner).With("repo", repo).
		With("run", runID).Info("Workflow re-run triggered")
	return nil
}

// RerunFailedJobs re-runs only the failed jobs of a workflow run.
func (o *Ops) RerunFailedJobs(ctx context.Context, owner, repo string, runID int64) error {
	if _, err := o.gh.Actions.RerunFailedJobsByID(ctx, owner, repo, runID); err != nil {
		return fmt.Errorf("re-running failed jobs of %d: %w", runID, err)
	}
	clog.FromContext(ctx).With("owner", owner).With("repo", repo).
		With("run", runID).Info("Failed jobs re-run triggered")
	return nil
}

// RunAttempts returns how many attempts a workflow run has had.
func (o *Ops) RunAttempts(ctx context.Context, owner, repo string, runID int64) (int, error) {
	run, _, err := o.gh.Actions.GetWorkflowRunByID(ctx, owner, repo, runID)
	if err != nil {
		return 0, fmt.Errorf("fetching run %d: %w", runID, err)
	}
	attempts := run.GetRunAttempt()
	if attempts < 1 {
		attempts = 1
	}
	return attempts, nil
}

// TailLines keeps the last n lines of s.
func TailLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
