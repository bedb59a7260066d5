// Copyright (C) 2025 Driftwood AI (dev@driftwood.sh)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"bytes"
	"encoding/json"

	"github.com/driftwood-ai/driftwood/pkg/transcript"
)

// ParseCitations attempts to parse the metadata region into a citation list.
//
// The region arrives incrementally, so failure is expected and silent: a
// truncated JSON array simply is not parseable yet. Callers re-invoke on every
// feed and keep the last successful result. Returns (nil, false) on any
// malformed, truncated, or invalid input; order of a successful parse is
// preserved exactly as emitted, since the server orders by relevance.
//
// A citation must carry a non-empty name and a score in [0, 1] to be accepted;
// one bad entry rejects the whole region rather than surfacing a partial list.
func ParseCitations(region []byte) (transcript.CitationList, bool) {
	trimmed := bytes.TrimSpace(region)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}
	var list []transcript.Citation
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return nil, false
	}
	for _, c := range list {
		if c.Name == "" || c.Score < 0 || c.Score > 1 {
			return nil, false
		}
	}
	return transcript.CitationList(list), true
}
