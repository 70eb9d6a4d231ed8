/*
Copyright 2026 Opsmith, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package executor

import (
	"fmt"
	"strings"
)

// Option is a functional option for configuring the executor.
type Option func(*executor) error

// WithModel overrides the model name.
func WithModel(model string) Option {
	return func(e *executor) error {
		if !strings.HasPrefix(model, "claude-") {
			return fmt.Errorf("model %q does not appear to be a Claude model (expected claude-* format)", model)
		}
		e.modelName = model
		return nil
	}
}

// WithMaxTokens sets the maximum tokens per model turn.
func WithMaxTokens(tokens int64) Option {
	return func(e *executor) error {
		if tokens <= 0 {
			return fmt.Errorf("max tokens must be positive, got %d", tokens)
		}
		e.maxTokens = tokens
		return nil
	}
}

// WithTemperature sets the sampling temperature (0.0 to 1.0).
func WithTemperature(temp float64) Option {
	return func(e *executor) error {
		if temp < 0.0 || temp > 1.0 {
			return fmt.Errorf("temperature must be between 0.0 and 1.0, got %f", temp)
		}
		e.temperature = temp
		return nil
	}
}

// WithMaxTurns bounds the number of conversation turns before the
// session is abandoned. Guards against tool-call loops.
func WithMaxTurns(turns int) Option {
	return func(e *executor) error {
		if turns <= 0 {
			return fmt.Errorf("max turns must be positive, got %d", turns)
		}
		e.maxTurns = turns
		return nil
	}
}

// WithRetryConfig overrides the retry policy for transient API
// errors.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(e *executor) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		e.retryConfig = cfg
		return nil
	}
}
