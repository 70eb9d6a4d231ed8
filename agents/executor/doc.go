/*
Copyright 2026 Opsmith, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package executor drives Claude agent sessions for the SRE service.
//
// A session is one call to Execute: the system prompt, the context
// prompt, and a tool set go in, and the model's final text analysis
// comes out. The executor owns the conversation loop in between:
//   - streaming each model turn and accumulating it into a message
//   - dispatching requested tool calls to their handlers
//   - feeding structured tool results back into the conversation
//   - retrying transient API errors (429/503/504/529) with backoff
//
// Callers bound the session with a context deadline; cancellation
// aborts the in-flight stream, which releases the remote session on
// every exit path.
package executor
