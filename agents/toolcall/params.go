/*
Copyright 2026 Opsmith, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package toolcall

import "fmt"

// Param extracts a required parameter from the call args with type
// safety. On failure it returns a {success:false} result for the
// model.
func Param[T any](call Call, name string) (T, map[string]any) {
	var zero T

	value, exists := call.Args[name]
	if !exists {
		return zero, Fail("%s parameter is required", name)
	}
	if v, ok := value.(T); ok {
		return v, nil
	}
	if v, ok := convert[T](value); ok {
		return v, nil
	}
	return zero, Fail("%s parameter must be of type %T, got %T", name, zero, value)
}

// OptionalParam extracts an optional parameter, falling back to the
// default when absent.
func OptionalParam[T any](call Call, name string, defaultValue T) (T, map[string]any) {
	value, exists := call.Args[name]
	if !exists {
		return defaultValue, nil
	}
	if v, ok := value.(T); ok {
		return v, nil
	}
	if v, ok := convert[T](value); ok {
		return v, nil
	}
	var zero T
	return zero, Fail("%s parameter must be of type %T, got %T", name, zero, value)
}

// convert handles the shapes JSON decoding produces: numbers arrive
// as float64 and string arrays as []any.
func convert[T any](value any) (T, bool) {
	var zero T
	switch any(zero).(type) {
	case int:
		if f, ok := value.(float64); ok {
			return any(int(f)).(T), true
		}
	case int64:
		if f, ok := value.(float64); ok {
			return any(int64(f)).(T), true
		}
	case []string:
		raw, ok := value.([]any)
		if !ok {
			return zero, false
		}
		out := make([]string, 0, len(raw))
		for _, item := range raw {
			s, ok := item.(string)
			if !ok {
				return zero, false
			}
			out = append(out, s)
		}
		return any(out).(T), true
	}
	return zero, false
}

// String renders a call for logging.
func (c Call) String() string {
	return fmt.Sprintf("%s(%s)", c.Name, c.ID)
}
