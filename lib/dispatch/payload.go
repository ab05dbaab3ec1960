// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"math"

	"github.com/bureau-foundation/mapforge/lib/envelope"
)

// String returns payload[key] as a non-empty string.
func String(payload map[string]any, key string) (string, error) {
	value, ok := payload[key]
	if !ok {
		return "", envelope.Errorf(envelope.CodeInvalidArgument, "missing payload field %q", key)
	}
	text, ok := value.(string)
	if !ok {
		return "", envelope.Errorf(envelope.CodeInvalidArgument, "payload field %q is %T, want string", key, value)
	}
	if text == "" {
		return "", envelope.Errorf(envelope.CodeInvalidArgument, "payload field %q is empty", key)
	}
	return text, nil
}

// Int64 returns payload[key] as an integer.
func Int64(payload map[string]any, key string) (int64, error) {
	value, ok := payload[key]
	if !ok {
		return 0, envelope.Errorf(envelope.CodeInvalidArgument, "missing payload field %q", key)
	}
	number, ok := toInt64(value)
	if !ok {
		return 0, envelope.Errorf(envelope.CodeInvalidArgument, "payload field %q is %T, want integer", key, value)
	}
	return number, nil
}

// Int64s returns payload[key] as a list of integers.
func Int64s(payload map[string]any, key string) ([]int64, error) {
	value, ok := payload[key]
	if !ok {
		return nil, envelope.Errorf(envelope.CodeInvalidArgument, "missing payload field %q", key)
	}
	var items []any
	switch list := value.(type) {
	case []any:
		items = list
	case []int64:
		return list, nil
	default:
		return nil, envelope.Errorf(envelope.CodeInvalidArgument, "payload field %q is %T, want list", key, value)
	}
	numbers := make([]int64, 0, len(items))
	for i, item := range items {
		number, ok := toInt64(item)
		if !ok {
			return nil, envelope.Errorf(envelope.CodeInvalidArgument, "payload field %q[%d] is %T, want integer", key, i, item)
		}
		numbers = append(numbers, number)
	}
	return numbers, nil
}

// toInt64 accepts the integer types a payload can hold: int64 from the
// decoder, and the native types handlers and tests build payloads with.
func toInt64(value any) (int64, bool) {
	switch number := value.(type) {
	case int64:
		return number, true
	case int:
		return int64(number), true
	case int32:
		return int64(number), true
	case uint64:
		if number > math.MaxInt64 {
			return 0, false
		}
		return int64(number), true
	default:
		return 0, false
	}
}
