package backend

import (
	"encoding/json"
	"fmt"
)

// The core-banking API is inconsistent about list payloads: the same
// logical endpoint may answer with a bare array, {"data": [...]},
// {"success": true, "data": [...]}, or {"users": [...], "pagination":
// {...}}. DecodeList tries the known shapes in priority order so the
// brittleness stays out of business logic.

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Users   json.RawMessage `json:"users"`
	Success *bool           `json:"success"`
}

// DecodeList decodes a list payload of any known shape. An empty or
// null payload yields an empty slice, never an error.
func DecodeList[T any](raw []byte) ([]T, error) {
	if len(raw) == 0 {
		return []T{}, nil
	}

	// Bare array first: the most common shape.
	var direct []T
	if err := json.Unmarshal(raw, &direct); err == nil {
		if direct == nil {
			direct = []T{}
		}
		return direct, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unrecognized list response shape: %w", err)
	}

	for _, inner := range []json.RawMessage{env.Data, env.Users} {
		if len(inner) == 0 || string(inner) == "null" {
			continue
		}
		var items []T
		if err := json.Unmarshal(inner, &items); err != nil {
			return nil, fmt.Errorf("unrecognized list response shape: %w", err)
		}
		return items, nil
	}

	// An envelope with no list field (e.g. {} or {"success":true}) is
	// treated as empty rather than a failure.
	return []T{}, nil
}
