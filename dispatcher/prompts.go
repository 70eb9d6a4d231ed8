/*
Copyright 2026 Opsmith, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package dispatcher

import (
	"fmt"
	"strings"

	"github.com/opsmith/sre-agent/events"
	"github.com/opsmith/sre-agent/repoconfig"
	"github.com/opsmith/sre-agent/tracker"
)

// systemPrompt renders the agent's role, guidelines, and the
// repository's configured limits, plus any repo-specific
// instructions.
func systemPrompt(cfg *repoconfig.Config) string {
	var custom string
	if cfg.Instructions != "" {
		custom = fmt.Sprintf("\n\n## Repository-Specific Instructions\n%s", cfg.Instructions)
	}

	return fmt.Sprintf(`You are an expert Site Reliability Engineer (SRE) agent for GitHub Actions.

## Your Role
You analyze GitHub Actions workflow failures and take appropriate actions to resolve issues or escalate them properly.

## Your Capabilities
- Retry failed workflows (when appropriate)
- Create GitHub issues for tracking problems, and close them when resolved
- Fetch and analyze workflow logs
- Check GitHub's status for outages
- Maintain notes for tracking ongoing issues
- Track workflows with open issues so future successes close the loop

## Decision Guidelines
1. **First, check GitHub status** - If there's an outage, note it and avoid unnecessary retries
2. **Analyze logs** - Understand the root cause before taking action
3. **Check for patterns** - Use notes to track if this is a recurring issue
4. **Be conservative with retries** - Don't retry more than the configured max attempts
5. **Create issues thoughtfully** - Include relevant context, search for duplicates first
6. **Document your reasoning** - Keep notes for future reference

## Configuration Limits
- Max retry attempts: %d
- Auto-retry enabled: %t
- Auto-issue creation enabled: %t
- Issue labels: %s%s

## Response Format
Provide a brief summary of your analysis and actions taken. Be concise but informative.`,
		cfg.Actions.Retry.MaxAttempts,
		cfg.Actions.Retry.Enabled,
		cfg.Actions.CreateIssue.Enabled,
		strings.Join(cfg.Actions.CreateIssue.Labels, ", "),
		custom)
}

// failurePrompt renders the context for a failure-analysis session.
func failurePrompt(e *events.WorkflowRunEvent) string {
	run := e.WorkflowRun
	triggeredBy := e.TriggeredBy()
	if triggeredBy == "" {
		triggeredBy = "Unknown"
	}
	name := run.Name
	if name == "" {
		name = "Unknown"
	}
	branch := run.HeadBranch
	if branch == "" {
		branch = "Unknown"
	}

	return fmt.Sprintf(`## Workflow Run Event

**Repository:** %s
**Workflow:** %s
**Run ID:** %d
**Run Number:** %d
**Attempt:** %d
**Branch:** %s
**Conclusion:** %s
**Triggered by:** %s
**URL:** %s

## Task
Analyze this workflow run and determine the appropriate action:
1. Investigate the failure and decide whether to retry or create an issue
2. If this appears to be a transient failure (infrastructure, flaky test, etc.), consider retrying
3. If this appears to be a legitimate code issue, create an issue with your analysis
4. Check for any existing notes about this workflow or similar failures
5. Update or create notes to track your findings

Begin your analysis.`,
		e.Repository.FullName, name, run.ID, run.RunNumber, run.RunAttempt,
		branch, run.Conclusion, triggeredBy, run.HTMLURL)
}

// successPrompt renders the context for resolving a tracked issue
// after its workflow succeeded again.
func successPrompt(e *events.WorkflowRunEvent, entry *tracker.Entry) string {
	run := e.WorkflowRun
	return fmt.Sprintf(`## Tracked Workflow Recovered

**Repository:** %s
**Workflow:** %s
**Successful Run ID:** %d
**Run URL:** %s
**Open Issue:** #%d (created for failed run %d)

## Task
The workflow that issue #%d was tracking has now succeeded:
1. Add a comment to issue #%d noting the workflow recovered, linking the successful run
2. Close issue #%d
3. Untrack the workflow so future successes are ignored
4. Resolve any open notes about this failure

Report what you did.`,
		e.Repository.FullName, entry.WorkflowName, run.ID, run.HTMLURL,
		entry.IssueNumber, entry.FailedRunID,
		entry.IssueNumber, entry.IssueNumber, entry.IssueNumber)
}
