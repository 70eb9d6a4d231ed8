/*
Copyright 2026 Opsmith, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package dispatcher

import (
	"context"
	"fmt"

	"github.com/opsmith/sre-agent/agents/toolcall"
	"github.com/opsmith/sre-agent/events"
	"github.com/opsmith/sre-agent/notestore"
	"github.com/opsmith/sre-agent/repoconfig"
	"github.com/opsmith/sre-agent/tracker"
)

// maxObservedAttempts is the hard ceiling on workflow retries,
// independent of repository policy. Prevents retry loops when the
// model keeps judging a persistent failure transient.
const maxObservedAttempts = 3

// tools builds the tool set for one session. Handlers close over the
// event so the agent cannot wander into other repositories' state.
func (d *Dispatcher) tools(event *events.WorkflowRunEvent, cfg *repoconfig.Config) map[string]toolcall.Tool {
	return map[string]toolcall.Tool{
		"retry_workflow":    d.retryWorkflowTool(cfg),
		"create_issue":      d.createIssueTool(event, cfg),
		"get_workflow_logs": d.workflowLogsTool(),
		"check_github_status": {
			Def: toolcall.Definition{
				Name: "check_github_status",
				Description: `Check GitHub system status for outages or incidents.
Use before retrying workflows to determine if failures are due to GitHub issues.`,
				Parameters: []toolcall.Parameter{
					{Name: "checkActionsOnly", Type: "boolean", Description: "Only check Actions status"},
				},
			},
			Handler: d.checkStatusHandler,
		},
		"manage_notes":    d.manageNotesTool(event),
		"manage_tracking": d.manageTrackingTool(event),
		"close_issue":     d.closeIssueTool(),
		"add_issue_comment": {
			Def: toolcall.Definition{
				Name:        "add_issue_comment",
				Description: "Add a comment to an existing GitHub issue.",
				Parameters: []toolcall.Parameter{
					{Name: "owner", Type: "string", Description: "Repository owner", Required: true},
					{Name: "repo", Type: "string", Description: "Repository name", Required: true},
					{Name: "issueNumber", Type: "integer", Description: "Issue number", Required: true},
					{Name: "body", Type: "string", Description: "Comment body in markdown", Required: true},
				},
			},
			Handler: d.addCommentHandler,
		},
		"search_issues": {
			Def: toolcall.Definition{
				Name: "search_issues",
				Description: `Search existing issues in a repository by title or body text.
Use before creating an issue to avoid duplicates.`,
				Parameters: []toolcall.Parameter{
					{Name: "owner", Type: "string", Description: "Repository owner", Required: true},
					{Name: "repo", Type: "string", Description: "Repository name", Required: true},
					{Name: "query", Type: "string", Description: "Search terms", Required: true},
				},
			},
			Handler: d.searchIssuesHandler,
		},
	}
}

func (d *Dispatcher) retryWorkflowTool(cfg *repoconfig.Config) toolcall.Tool {
	return toolcall.Tool{
		Def: toolcall.Definition{
			Name: "retry_workflow",
			Description: `Retry a failed GitHub Actions workflow run. By default, only retries failed jobs.
Set failedOnly to false to retry the entire workflow.
Use this when you've determined a workflow failure is transient or a known issue has been resolved.`,
			Parameters: []toolcall.Parameter{
				{Name: "owner", Type: "string", Description: "Repository owner", Required: true},
				{Name: "repo", Type: "string", Description: "Repository name", Required: true},
				{Name: "runId", Type: "integer", Description: "Workflow run ID to retry", Required: true},
				{Name: "failedOnly", Type: "boolean", Description: "Only retry failed jobs"},
			},
		},
		Handler: func(ctx context.Context, call toolcall.Call) map[string]any {
			if !cfg.Actions.Retry.Enabled {
				return toolcall.Fail("automatic retries are disabled by repository policy")
			}

			owner, errResp := toolcall.Param[string](call, "owner")
			if errResp != nil {
				return errResp
			}
			repo, errResp := toolcall.Param[string](call, "repo")
			if errResp != nil {
				return errResp
			}
			runID, errResp := toolcall.Param[int64](call, "runId")
			if errResp != nil {
				return errResp
			}
			failedOnly, errResp := toolcall.OptionalParam(call, "failedOnly", true)
			if errResp != nil {
				return errResp
			}

			attempts, err := d.ops.RunAttempts(ctx, owner, repo, runID)
			if err != nil {
				return toolcall.FailErr(err, nil)
			}
			if attempts >= maxObservedAttempts {
				return toolcall.Fail("already retried %d times, not retrying again", attempts)
			}
			if attempts >= cfg.Actions.Retry.MaxAttempts {
				return toolcall.Fail("run has had %d attempts, repository allows at most %d", attempts, cfg.Actions.Retry.MaxAttempts)
			}

			if failedOnly {
				err = d.ops.RerunFailedJobs(ctx, owner, repo, runID)
			} else {
				err = d.ops.RerunWorkflow(ctx, owner, repo, runID)
			}
			if err != nil {
				return toolcall.FailErr(err, map[string]any{"runId": runID})
			}
			return toolcall.OK(map[string]any{
				"message": fmt.Sprintf("Retry triggered for run %d", runID),
			})
		},
	}
}

func (d *Dispatcher) createIssueTool(event *events.WorkflowRunEvent, cfg *repoconfig.Config) toolcall.Tool {
	return toolcall.Tool{
		Def: toolcall.Definition{
			Name: "create_issue",
			Description: `Create a GitHub issue to track a workflow problem or required action.
Include relevant context like workflow run links, error messages, and your analysis.
The failing workflow is automatically tracked so a future success closes the loop.`,
			Parameters: []toolcall.Parameter{
				{Name: "owner", Type: "string", Description: "Repository owner", Required: true},
				{Name: "repo", Type: "string", Description: "Repository name", Required: true},
				{Name: "title", Type: "string", Description: "Issue title", Required: true},
				{Name: "body", Type: "string", Description: "Issue body in markdown", Required: true},
				{Name: "labels", Type: "string[]", Description: "Extra labels to apply"},
				{Name: "relatedRunId", Type: "integer", Description: "Related workflow run ID"},
			},
		},
		Handler: func(ctx context.Context, call toolcall.Call) map[string]any {
			if !cfg.Actions.CreateIssue.Enabled {
				return toolcall.Fail("issue creation is disabled by repository policy")
			}

			owner, errResp := toolcall.Param[string](call, "owner")
			if errResp != nil {
				return errResp
			}
			repo, errResp := toolcall.Param[string](call, "repo")
			if errResp != nil {
				return errResp
			}
			title, errResp := toolcall.Param[string](call, "title")
			if errResp != nil {
				return errResp
			}
			body, errResp := toolcall.Param[string](call, "body")
			if errResp != nil {
				return errResp
			}
			extraLabels, errResp := toolcall.OptionalParam(call, "labels", []string{})
			if errResp != nil {
				return errResp
			}
			relatedRunID, errResp := toolcall.OptionalParam[int64](call, "relatedRunId", 0)
			if errResp != nil {
				return errResp
			}

			if relatedRunID != 0 {
				body += fmt.Sprintf("\n\n---\n**Related Run:** https://github.com/%s/%s/actions/runs/%d", owner, repo, relatedRunID)
			}
			body += "\n\n_Created by SRE Agent_"

			labels := mergeLabels(cfg.Actions.CreateIssue.Labels, extraLabels)
			number, err := d.ops.CreateIssue(ctx, owner, repo, title, body, labels, cfg.Actions.CreateIssue.Assignees)
			if err != nil {
				return toolcall.FailErr(err, nil)
			}

			// Issues opened for the event's own failing workflow start
			// tracking it, bridging this failure to a later success.
			if owner == event.Repository.Owner.Login && repo == event.Repository.Name &&
				event.WorkflowRun.Conclusion != events.ConclusionSuccess {
				d.tracked.Track(ctx, owner, repo,
					event.WorkflowRun.WorkflowID, event.WorkflowRun.Name,
					number, event.WorkflowRun.ID)
			}

			return toolcall.OK(map[string]any{
				"issueNumber": number,
				"url":         fmt.Sprintf("https://github.com/%s/%s/issues/%d", owner, repo, number),
			})
		},
	}
}

func (d *Dispatcher) workflowLogsTool() toolcall.Tool {
	return toolcall.Tool{
		Def: toolcall.Definition{
			Name: "get_workflow_logs",
			Description: `Fetch logs from failed jobs in a GitHub Actions workflow run.
Returns the last 200 lines from up to 3 failed jobs. Use to understand why a workflow failed.`,
			Parameters: []toolcall.Parameter{
				{Name: "owner", Type: "string", Description: "Repository owner", Required: true},
				{Name: "repo", Type: "string", Description: "Repository name", Required: true},
				{Name: "runId", Type: "integer", Description: "Workflow run ID", Required: true},
			},
		},
		Handler: func(ctx context.Context, call toolcall.Call) map[string]any {
			owner, errResp := toolcall.Param[string](call, "owner")
			if errResp != nil {
				return errResp
			}
			repo, errResp := toolcall.Param[string](call, "repo")
			if errResp != nil {
				return errResp
			}
			runID, errResp := toolcall.Param[int64](call, "runId")
			if errResp != nil {
				return errResp
			}

			logs, err := d.ops.FailedJobLogs(ctx, owner, repo, runID)
			if err != nil {
				return toolcall.FailErr(err, map[string]any{"runId": runID})
			}
			return toolcall.OK(map[string]any{"logs": logs})
		},
	}
}

func (d *Dispatcher) checkStatusHandler(ctx context.Context, call toolcall.Call) map[string]any {
	actionsOnly, errResp := toolcall.OptionalParam(call, "checkActionsOnly", false)
	if errResp != nil {
		return errResp
	}

	health := d.status.ActionsHealth(ctx)
	if actionsOnly {
		return toolcall.OK(map[string]any{
			"actionsHealthy": health.Healthy,
			"details":        health.Details,
		})
	}
	return toolcall.OK(map[string]any{
		"actionsHealthy": health.Healthy,
		"summary":        d.status.Summary(ctx),
	})
}

func (d *Dispatcher) closeIssueTool() toolcall.Tool {
	return toolcall.Tool{
		Def: toolcall.Definition{
			Name:        "close_issue",
			Description: "Close a GitHub issue, normally after the workflow it tracks has recovered.",
			Parameters: []toolcall.Parameter{
				{Name: "owner", Type: "string", Description: "Repository owner", Required: true},
				{Name: "repo", Type: "string", Description: "Repository name", Required: true},
				{Name: "issueNumber", Type: "integer", Description: "Issue number to close", Required: true},
			},
		},
		Handler: func(ctx context.Context, call toolcall.Call) map[string]any {
			owner, errResp := toolcall.Param[string](call, "owner")
			if errResp != nil {
				return errResp
			}
			repo, errResp := toolcall.Param[string](call, "repo")
			if errResp != nil {
				return errResp
			}
			number, errResp := toolcall.Param[int](call, "issueNumber")
			if errResp != nil {
				return errResp
			}

			if err := d.ops.CloseIssue(ctx, owner, repo, number); err != nil {
				return toolcall.FailErr(err, map[string]any{"issueNumber": number})
			}
			return toolcall.OK(map[string]any{
				"message": fmt.Sprintf("Closed issue #%d", number),
			})
		},
	}
}

func (d *Dispatcher) addCommentHandler(ctx context.Context, call toolcall.Call) map[string]any {
	owner, errResp := toolcall.Param[string](call, "owner")
	if errResp != nil {
		return errResp
	}
	repo, errResp := toolcall.Param[string](call, "repo")
	if errResp != nil {
		return errResp
	}
	number, errResp := toolcall.Param[int](call, "issueNumber")
	if errResp != nil {
		return errResp
	}
	body, errResp := toolcall.Param[string](call, "body")
	if errResp != nil {
		return errResp
	}

	if err := d.ops.AddIssueComment(ctx, owner, repo, number, body); err != nil {
		return toolcall.FailErr(err, map[string]any{"issueNumber": number})
	}
	return toolcall.OK(map[string]any{
		"message": fmt.Sprintf("Comment added to issue #%d", number),
	})
}

func (d *Dispatcher) searchIssuesHandler(ctx context.Context, call toolcall.Call) map[string]any {
	owner, errResp := toolcall.Param[string](call, "owner")
	if errResp != nil {
		return errResp
	}
	repo, errResp := toolcall.Param[string](call, "repo")
	if errResp != nil {
		return errResp
	}
	query, errResp := toolcall.Param[string](call, "query")
	if errResp != nil {
		return errResp
	}

	issues, err := d.ops.SearchIssues(ctx, owner, repo, query)
	if err != nil {
		return toolcall.FailErr(err, nil)
	}
	return toolcall.OK(map[string]any{"issues": issues})
}

func (d *Dispatcher) manageNotesTool(event *events.WorkflowRunEvent) toolcall.Tool {
	return toolcall.Tool{
		Def: toolcall.Definition{
			Name: "manage_notes",
			Description: `Manage SRE notes for tracking debugging context and ongoing issues.
Actions: create, update, query, get_summary, resolve, delete.
Use to track patterns and remember context across failures.`,
			Parameters: []toolcall.Parameter{
				{Name: "action", Type: "string", Description: "One of: create, update, query, get_summary, resolve, delete", Required: true},
				{Name: "repoFullName", Type: "string", Description: "Repository full name (owner/repo)"},
				{Name: "title", Type: "string", Description: "Note title (create/update)"},
				{Name: "content", Type: "string", Description: "Note content (create/update)"},
				{Name: "tags", Type: "string[]", Description: "Tags for categorization"},
				{Name: "noteId", Type: "string", Description: "Note ID (update/resolve/delete)"},
				{Name: "limit", Type: "integer", Description: "Max notes to return (query)"},
			},
		},
		Handler: func(ctx context.Context, call toolcall.Call) map[string]any {
			action, errResp := toolcall.Param[string](call, "action")
			if errResp != nil {
				return errResp
			}

			switch action {
			case "create":
				return d.createNote(ctx, event, call)
			case "update":
				return d.updateNote(ctx, call)
			case "query":
				return d.queryNotes(ctx, call)
			case "get_summary":
				repoFullName, errResp := toolcall.Param[string](call, "repoFullName")
				if errResp != nil {
					return errResp
				}
				return toolcall.OK(map[string]any{
					"summary": d.notes.RepoSummary(ctx, repoFullName),
				})
			case "resolve":
				noteID, errResp := toolcall.Param[string](call, "noteId")
				if errResp != nil {
					return errResp
				}
				note := d.notes.Resolve(ctx, noteID)
				if note == nil {
					return toolcall.Fail("note %q not found", noteID)
				}
				return toolcall.OK(map[string]any{
					"message": fmt.Sprintf("Resolved note: %s", note.Title),
				})
			case "delete":
				noteID, errResp := toolcall.Param[string](call, "noteId")
				if errResp != nil {
					return errResp
				}
				if !d.notes.Delete(ctx, noteID) {
					return toolcall.Fail("note %q not found", noteID)
				}
				return toolcall.OK(map[string]any{"message": "Note deleted"})
			default:
				return toolcall.Fail("unknown action %q", action)
			}
		},
	}
}

func (d *Dispatcher) createNote(ctx context.Context, event *events.WorkflowRunEvent, call toolcall.Call) map[string]any {
	repoFullName, errResp := toolcall.OptionalParam(call, "repoFullName", event.Repository.FullName)
	if errResp != nil {
		return errResp
	}
	title, errResp := toolcall.Param[string](call, "title")
	if errResp != nil {
		return errResp
	}
	content, errResp := toolcall.Param[string](call, "content")
	if errResp != nil {
		return errResp
	}
	tags, errResp := toolcall.OptionalParam(call, "tags", []string{})
	if errResp != nil {
		return errResp
	}

	draft := notestore.Draft{
		RepoFullName: repoFullName,
		Title:        title,
		Content:      content,
		Tags:         tags,
	}
	// Notes taken about the event's own repository keep their
	// workflow/run association for later queries.
	if repoFullName == event.Repository.FullName {
		draft.WorkflowID = event.WorkflowRun.WorkflowID
		draft.RunID = event.WorkflowRun.ID
	}

	note := d.notes.Create(ctx, draft)
	return toolcall.OK(map[string]any{
		"noteId":  note.ID,
		"message": fmt.Sprintf("Created note: %s", title),
	})
}

func (d *Dispatcher) updateNote(ctx context.Context, call toolcall.Call) map[string]any {
	noteID, errResp := toolcall.Param[string](call, "noteId")
	if errResp != nil {
		return errResp
	}

	var update notestore.Update
	if title, errResp := toolcall.OptionalParam(call, "title", ""); errResp != nil {
		return errResp
	} else if title != "" {
		update.Title = &title
	}
	if content, errResp := toolcall.OptionalParam(call, "content", ""); errResp != nil {
		return errResp
	} else if content != "" {
		update.Content = &content
	}
	if tags, errResp := toolcall.OptionalParam[[]string](call, "tags", nil); errResp != nil {
		return errResp
	} else if tags != nil {
		update.Tags = tags
	}

	note := d.notes.Apply(ctx, noteID, update)
	if note == nil {
		return toolcall.Fail("note %q not found", noteID)
	}
	return toolcall.OK(map[string]any{
		"message": fmt.Sprintf("Updated note: %s", note.Title),
	})
}

func (d *Dispatcher) queryNotes(ctx context.Context, call toolcall.Call) map[string]any {
	repoFullName, errResp := toolcall.OptionalParam(call, "repoFullName", "")
	if errResp != nil {
		return errResp
	}
	tags, errResp := toolcall.OptionalParam(call, "tags", []string{})
	if errResp != nil {
		return errResp
	}
	limit, errResp := toolcall.OptionalParam(call, "limit", notestore.DefaultQueryLimit)
	if errResp != nil {
		return errResp
	}

	notes := d.notes.Find(ctx, notestore.Query{
		RepoFullName: repoFullName,
		Tags:         tags,
		Limit:        limit,
	})
	return toolcall.OK(map[string]any{"notes": notes})
}

func (d *Dispatcher) manageTrackingTool(event *events.WorkflowRunEvent) toolcall.Tool {
	return toolcall.Tool{
		Def: toolcall.Definition{
			Name: "manage_tracking",
			Description: `Manage tracked workflows (workflows with an open issue awaiting a future success).
Actions: track, untrack, get, list.
Untrack after closing a tracked issue so future successes are ignored.`,
			Parameters: []toolcall.Parameter{
				{Name: "action", Type: "string", Description: "One of: track, untrack, get, list", Required: true},
				{Name: "owner", Type: "string", Description: "Repository owner (defaults to the event's)"},
				{Name: "repo", Type: "string", Description: "Repository name (defaults to the event's)"},
				{Name: "workflowId", Type: "integer", Description: "Workflow ID (defaults to the event's)"},
				{Name: "issueNumber", Type: "integer", Description: "Issue number (track)"},
			},
		},
		Handler: func(ctx context.Context, call toolcall.Call) map[string]any {
			action, errResp := toolcall.Param[string](call, "action")
			if errResp != nil {
				return errResp
			}
			owner, errResp := toolcall.OptionalParam(call, "owner", event.Repository.Owner.Login)
			if errResp != nil {
				return errResp
			}
			repo, errResp := toolcall.OptionalParam(call, "repo", event.Repository.Name)
			if errResp != nil {
				return errResp
			}
			workflowID, errResp := toolcall.OptionalParam(call, "workflowId", event.WorkflowRun.WorkflowID)
			if errResp != nil {
				return errResp
			}

			switch action {
			case "track":
				issueNumber, errResp := toolcall.Param[int](call, "issueNumber")
				if errResp != nil {
					return errResp
				}
				entry := d.tracked.Track(ctx, owner, repo, workflowID,
					event.WorkflowRun.Name, issueNumber, event.WorkflowRun.ID)
				return toolcall.OK(map[string]any{
					"message": fmt.Sprintf("Tracking workflow %s for issue #%d", entry.Key, issueNumber),
				})
			case "untrack":
				if !d.tracked.Untrack(ctx, owner, repo, workflowID) {
					return toolcall.Fail("workflow %s was not tracked", tracker.Key(owner, repo, workflowID))
				}
				return toolcall.OK(map[string]any{
					"message": fmt.Sprintf("Stopped tracking workflow %s", tracker.Key(owner, repo, workflowID)),
				})
			case "get":
				entry, ok := d.tracked.Get(ctx, owner, repo, workflowID)
				if !ok {
					return toolcall.OK(map[string]any{"tracked": false})
				}
				return toolcall.OK(map[string]any{"tracked": true, "entry": entry})
			case "list":
				return toolcall.OK(map[string]any{
					"entries": d.tracked.GetForRepo(ctx, owner, repo),
				})
			default:
				return toolcall.Fail("unknown action %q", action)
			}
		},
	}
}

// mergeLabels unions policy labels with the agent's extra labels,
// preserving order and dropping duplicates.
func mergeLabels(policy, extra []string) []string {
	seen := make(map[string]bool, len(policy)+len(extra))
	merged := make([]string, 0, len(policy)+len(extra))
	for _, l := range append(append([]string{}, policy...), extra...) {
		if seen[l] {
			continue
		}
		seen[l] = true
		merged = append(merged, l)
	}
	return merged
}
