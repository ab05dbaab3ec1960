// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mapdata understands just enough of compiled map content to
// index it: the content hash and the mission identifiers a map
// declares. Everything else in a map document belongs to the game
// client and is stored untouched.
//
// Map content is a JSON object. JSONC extensions (// and /* */
// comments, trailing commas) are accepted because level designers
// annotate exported maps by hand. Missions are declared as:
//
//	{
//	    "missions": [
//	        {"identifier": "m1", "title": "Fractions"},
//	        {"identifier": "m2"},
//	    ],
//	}
//
// Empty content (a freshly created map) declares no missions.
package mapdata

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/tidwall/jsonc"
	"github.com/zeebo/blake3"
)

// Content is the indexable part of a map document.
type Content struct {
	// Missions holds the declared mission identifiers, de-duplicated
	// and sorted.
	Missions []string
}

// document mirrors the fields of a map document that mapdata reads.
type document struct {
	Missions []struct {
		Identifier string `json:"identifier"`
	} `json:"missions"`
}

// Parse extracts the mission identifiers from map content.
func Parse(data []byte) (Content, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Content{}, nil
	}

	normalized := jsonc.ToJSON(data)
	if trimmed := bytes.TrimSpace(normalized); len(trimmed) == 0 || trimmed[0] != '{' {
		return Content{}, fmt.Errorf("parsing map content: document is not a JSON object")
	}

	var parsed document
	if err := json.Unmarshal(normalized, &parsed); err != nil {
		return Content{}, fmt.Errorf("parsing map content: %w", err)
	}

	missions := make([]string, 0, len(parsed.Missions))
	for i, mission := range parsed.Missions {
		identifier := strings.TrimSpace(mission.Identifier)
		if identifier == "" {
			return Content{}, fmt.Errorf("parsing map content: mission %d has no identifier", i)
		}
		missions = append(missions, identifier)
	}
	slices.Sort(missions)
	return Content{Missions: slices.Compact(missions)}, nil
}

// Hash returns the content hash of data: the lowercase hex BLAKE3-256
// digest. The same function is used by both repositories, so a stored
// hash can always be recomputed from stored bytes.
func Hash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// EmptyHash is Hash(nil), the content hash of a newly created map.
var EmptyHash = Hash(nil)
