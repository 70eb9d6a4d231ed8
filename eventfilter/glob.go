/*
Copyright 2026 Opsmith, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package eventfilter

import (
	"regexp"
	"strings"
)

// MatchGlob matches s against a branch glob pattern. Patterns support
// * (any run of characters) and ? (a single character); every other
// regexp metacharacter is treated literally. Matching is full-string
// anchored and case-sensitive.
func MatchGlob(s, pattern string) bool {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		// QuoteMeta makes this unreachable for any input.
		return false
	}
	return re.MatchString(s)
}
