// Package lifecycle provides bounded-retention cleanup and usage-driven
// optimization for agent memory stores.
package lifecycle

import (
	"sort"
	"time"

	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/core"
)

// recencyWindow is the timestamp gap beyond which recency alone decides
// importance, regardless of interaction kind or content length.
const recencyWindow = 24 * time.Hour

// contentLengthMargin is how many characters longer an input must be to
// outrank another of similar age and kind.
const contentLengthMargin = 20

// MoreImportant reports whether record a outranks record b when trimming a
// store to a cap.
//
// The ranking compares:
//  1. Recency: if the timestamps differ by more than a day, the more
//     recent record wins.
//  2. Kind: a voice interaction outranks a non-voice one.
//  3. Content: an input more than 20 characters longer wins.
//  4. Recency again as the final tie-breaker.
func MoreImportant(a, b *core.MemoryRecord) bool {
	diff := a.CreatedAt.Sub(b.CreatedAt)
	if diff > recencyWindow || diff < -recencyWindow {
		return a.CreatedAt.After(b.CreatedAt)
	}

	aVoice := a.Kind == core.KindVoice
	bVoice := b.Kind == core.KindVoice
	if aVoice != bVoice {
		return aVoice
	}

	lengthDiff := len(a.Input) - len(b.Input)
	if lengthDiff > contentLengthMargin {
		return true
	}
	if lengthDiff < -contentLengthMargin {
		return false
	}

	return a.CreatedAt.After(b.CreatedAt)
}

// TrimToCap keeps the top-cap records by importance and discards the rest.
//
// Parameters:
//   - records: The records to trim
//   - cap: The maximum number of records to keep
//
// Returns the kept records and the number removed. When the input already
// fits the cap it is returned unchanged with zero removed.
func TrimToCap(records []*core.MemoryRecord, cap int) ([]*core.MemoryRecord, int) {
	if cap < 0 {
		cap = 0
	}
	if len(records) <= cap {
		return records, 0
	}

	ranked := make([]*core.MemoryRecord, len(records))
	copy(ranked, records)
	sort.SliceStable(ranked, func(i, j int) bool {
		return MoreImportant(ranked[i], ranked[j])
	})

	removed := len(ranked) - cap
	return ranked[:cap], removed
}
