/*
Copyright 2026 Opsmith, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/chainguard-dev/clog"
	"github.com/opsmith/sre-agent/agents/toolcall"
)

// Interface runs one bounded agent session: a system prompt, a user
// prompt, and a tool set, returning the model's final text response.
type Interface interface {
	Execute(ctx context.Context, system, prompt string, tools map[string]toolcall.Tool) (string, error)
}

type executor struct {
	client      anthropic.Client
	modelName   string
	maxTokens   int64
	temperature float64
	maxTurns    int
	retryConfig RetryConfig
}

// New creates an executor with the default model and limits.
func New(client anthropic.Client, opts ...Option) (Interface, error) {
	e := &executor{
		client:      client,
		modelName:   "claude-sonnet-4@20250514",
		maxTokens:   8192,
		temperature: 0.1,
		maxTurns:    20,
		retryConfig: DefaultRetryConfig(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}
	return e, nil
}

// Execute drives the conversation loop: stream a model turn, run any
// requested tool calls, feed the results back, and repeat until the
// model answers in plain text. Cancellation of ctx (the dispatcher's
// timeout) aborts the in-flight stream and ends the session.
func (e *executor) Execute(ctx context.Context, system, prompt string, tools map[string]toolcall.Tool) (string, error) {
	log := clog.FromContext(ctx)

	toolDefs := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		def := tool.Def.ClaudeParam()
		toolDefs = append(toolDefs, anthropic.ToolUnionParam{OfTool: &def})
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.modelName),
		MaxTokens: e.maxTokens,
		Messages: []anthropic.MessageParam{{
			Role: anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{
				anthropic.NewTextBlock(prompt),
			},
		}},
		Tools: toolDefs,
	}
	params.Temperature = anthropic.Float(e.temperature)
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	log.With("prompt_length", len(prompt)).With("tools", len(tools)).
		Info("Starting agent execution")

	for turn := 0; turn < e.maxTurns; turn++ {
		message, err := retryWithBackoff(ctx, e.retryConfig, "stream_message", isRetryableAPIError, func() (anthropic.Message, error) {
			stream := e.client.Messages.NewStreaming(ctx, params)
			var msg anthropic.Message
			for stream.Next() {
				if err := msg.Accumulate(stream.Current()); err != nil {
					return msg, fmt.Errorf("accumulating event: %w", err)
				}
			}
			if err := stream.Err(); err != nil {
				return msg, err
			}
			return msg, nil
		})
		if err != nil {
			return "", fmt.Errorf("streaming model response: %w", err)
		}

		var toolUses []anthropic.ToolUseBlock
		var textContent string
		for _, content := range message.Content {
			switch content.Type {
			case "text":
				textContent = content.Text
			case "tool_use":
				toolUses = append(toolUses, anthropic.ToolUseBlock{
					ID:    content.ID,
					Name:  content.Name,
					Input: content.Input,
				})
			}
		}

		if len(toolUses) == 0 {
			if textContent == "" {
				return "", errors.New("no content in model response")
			}
			log.Info("Agent execution completed")
			return textContent, nil
		}

		params.Messages = append(params.Messages, message.ToParam())

		var results []anthropic.ContentBlockParamUnion
		for _, toolUse := range toolUses {
			block, err := e.runTool(ctx, tools, toolUse)
			if err != nil {
				return "", err
			}
			results = append(results, block)
		}
		params.Messages = append(params.Messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRoleUser,
			Content: results,
		})
	}

	return "", fmt.Errorf("agent exceeded %d turns without a final response", e.maxTurns)
}

// runTool executes one requested tool call and wraps the result as a
// tool_result block. Unknown tools and handler failures become
// structured results for the model, never errors.
func (e *executor) runTool(ctx context.Context, tools map[string]toolcall.Tool, toolUse anthropic.ToolUseBlock) (anthropic.ContentBlockParamUnion, error) {
	log := clog.FromContext(ctx)
	log.With("tool", toolUse.Name).With("id", toolUse.ID).Info("Executing tool call")

	var result map[string]any
	tool, known := tools[toolUse.Name]
	if !known {
		log.With("tool", toolUse.Name).Error("Unknown tool requested")
		result = toolcall.Fail("unknown tool: %q", toolUse.Name)
	} else {
		var args map[string]any
		if err := json.Unmarshal(toolUse.Input, &args); err != nil {
			result = toolcall.Fail("parsing tool input: %v", err)
		} else {
			result = tool.Handler(ctx, toolcall.Call{
				ID:   toolUse.ID,
				Name: toolUse.Name,
				Args: args,
			})
		}
	}

	resultBytes, err := json.Marshal(result)
	if err != nil {
		return anthropic.ContentBlockParamUnion{}, fmt.Errorf("marshaling tool result: %w", err)
	}
	return anthropic.ContentBlockParamUnion{
		OfToolResult: &anthropic.ToolResultBlockParam{
			ToolUseID: toolUse.ID,
			Content: []anthropic.ToolResultBlockParamContentUnion{{
				OfText: &anthropic.TextBlockParam{Text: string(resultBytes)},
			}},
		},
	}, nil
}

// isRetryableAPIError reports whether an error is a transient
// Anthropic API error worth retrying (rate limit, overloaded,
// transient server errors).
func isRetryableAPIError(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 503, 504, 529:
			return true
		}
	}
	return false
}
