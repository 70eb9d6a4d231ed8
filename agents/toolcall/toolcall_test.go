/*
Copyright 2026 Opsmith, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package toolcall_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/opsmith/sre-agent/agents/toolcall"
)

func TestClaudeParam(t *testing.T) {
	def := toolcall.Definition{
		Name:        "retry_workflow",
		Description: "Re-run a failed workflow",
		Parameters: []toolcall.Parameter{
			{Name: "runId", Type: "integer", Description: "The run id", Required: true},
			{Name: "failedOnly", Type: "boolean", Description: "Only failed jobs"},
			{Name: "labels", Type: "string[]", Description: "Labels to apply"},
		},
	}

	param := def.ClaudeParam()

	if param.Name != "retry_workflow" {
		t.Errorf("got name %q, want retry_workflow", param.Name)
	}

	props, ok := param.InputSchema.Properties.(map[string]any)
	if !ok {
		t.Fatal("properties is not map[string]any")
	}
	if len(props) != 3 {
		t.Errorf("got %d properties, want 3", len(props))
	}

	labels, ok := props["labels"].(map[string]any)
	if !ok {
		t.Fatal("labels schema missing")
	}
	if labels["type"] != "array" {
		t.Errorf("got labels type %v, want array", labels["type"])
	}
	if diff := cmp.Diff(map[string]any{"type": "string"}, labels["items"]); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"runId"}, param.InputSchema.Required); diff != "" {
		t.Errorf("required mismatch (-want +got):\n%s", diff)
	}
}

func TestResults(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		got := toolcall.OK(map[string]any{"issueNumber": 42})
		if got["success"] != true || got["issueNumber"] != 42 {
			t.Errorf("got %v", got)
		}
	})

	t.Run("Fail", func(t *testing.T) {
		got := toolcall.Fail("run %d not found", 7)
		if got["success"] != false {
			t.Errorf("got success %v", got["success"])
		}
		if got["error"] != "run 7 not found" {
			t.Errorf("got error %v", got["error"])
		}
	})
}

func TestParam(t *testing.T) {
	call := toolcall.Call{
		ID:   "call-1",
		Name: "test",
		Args: map[string]any{
			"name":   "hello",
			"count":  float64(42),
			"runId":  float64(12345),
			"flag":   true,
			"labels": []any{"a", "b"},
		},
	}

	t.Run("string", func(t *testing.T) {
		v, errResult := toolcall.Param[string](call, "name")
		if errResult != nil {
			t.Fatalf("unexpected error result: %v", errResult)
		}
		if v != "hello" {
			t.Errorf("got %q, want hello", v)
		}
	})

	t.Run("int from float64", func(t *testing.T) {
		v, errResult := toolcall.Param[int](call, "count")
		if errResult != nil {
			t.Fatalf("unexpected error result: %v", errResult)
		}
		if v != 42 {
			t.Errorf("got %d, want 42", v)
		}
	})

	t.Run("int64 from float64", func(t *testing.T) {
		v, errResult := toolcall.Param[int64](call, "runId")
		if errResult != nil {
			t.Fatalf("unexpected error result: %v", errResult)
		}
		if v != 12345 {
			t.Errorf("got %d, want 12345", v)
		}
	})

	t.Run("string slice from []any", func(t *testing.T) {
		v, errResult := toolcall.Param[[]string](call, "labels")
		if errResult != nil {
			t.Fatalf("unexpected error result: %v", errResult)
		}
		if diff := cmp.Diff([]string{"a", "b"}, v); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("missing", func(t *testing.T) {
		_, errResult := toolcall.Param[string](call, "nope")
		if errResult == nil {
			t.Fatal("expected error result for missing parameter")
		}
		if errResult["success"] != false {
			t.Errorf("got %v", errResult)
		}
	})

	t.Run("wrong type", func(t *testing.T) {
		_, errResult := toolcall.Param[int](call, "name")
		if errResult == nil {
			t.Fatal("expected error result for type mismatch")
		}
	})
}

func TestOptionalParam(t *testing.T) {
	call := toolcall.Call{
		ID:   "call-2",
		Name: "test",
		Args: map[string]any{"flag": false},
	}

	t.Run("present", func(t *testing.T) {
		v, errResult := toolcall.OptionalParam(call, "flag", true)
		if errResult != nil {
			t.Fatalf("unexpected error result: %v", errResult)
		}
		if v {
			t.Error("got true, want false from args")
		}
	})

	t.Run("absent uses default", func(t *testing.T) {
		v, errResult := toolcall.OptionalParam(call, "missing", true)
		if errResult != nil {
			t.Fatalf("unexpected error result: %v", errResult)
		}
		if !v {
			t.Error("got false, want default true")
		}
	})
}
