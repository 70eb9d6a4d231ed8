/*
Copyright 2026 Opsmith, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package toolcall defines the tools the SRE agent may invoke during
// a session: a name, a description, a typed parameter schema, and a
// handler. Handlers return structured result maps; failures are
// reported as {success:false, error} results rather than errors, so
// one failed tool call never aborts the whole session.
package toolcall

import (
	"context"
	"fmt"
	"maps"

	"github.com/anthropics/anthropic-sdk-go"
)

// Call is a single tool invocation requested by the model.
type Call struct {
	ID   string
	Name string
	Args map[string]any
}

// Parameter describes a single tool parameter.
type Parameter struct {
	Name        string
	Type        string // "string", "integer", "boolean", "number", "string[]"
	Description string
	Required    bool
}

// Definition describes a tool's schema.
type Definition struct {
	Name        string
	Description string
	Parameters  []Parameter
}

// Tool pairs a definition with its handler.
type Tool struct {
	Def     Definition
	Handler func(ctx context.Context, call Call) map[string]any
}

// ClaudeParam converts a definition to the Anthropic tool schema.
func (d Definition) ClaudeParam() anthropic.ToolParam {
	properties := make(map[string]any, len(d.Parameters))
	var required []string
	for _, p := range d.Parameters {
		schema := map[string]any{
			"description": p.Description,
		}
		if p.Type == "string[]" {
			schema["type"] = "array"
			schema["items"] = map[string]any{"type": "string"}
		} else {
			schema["type"] = p.Type
		}
		properties[p.Name] = schema
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return anthropic.ToolParam{
		Name:        d.Name,
		Description: anthropic.String(d.Description),
		InputSchema: anthropic.ToolInputSchemaParam{
			Type:       "object",
			Properties: properties,
			Required:   required,
		},
	}
}

// OK builds a success result carrying the given fields.
func OK(fields map[string]any) map[string]any {
	result := map[string]any{"success": true}
	maps.Copy(result, fields)
	return result
}

// Fail builds a failure result.
func Fail(format string, args ...any) map[string]any {
	return map[string]any{
		"success": false,
		"error":   fmt.Sprintf(format, args...),
	}
}

// FailErr builds a failure result from an error with extra context
// fields.
func FailErr(err error, context map[string]any) map[string]any {
	result := map[string]any{
		"success": false,
		"error":   err.Error(),
	}
	maps.Copy(result, context)
	return result
}
