package lifecycle_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/core"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/lifecycle"
)

var rankBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func rec(id int64, createdAt time.Time, kind core.InteractionKind, input string) *core.MemoryRecord {
	return &core.MemoryRecord{
		ID:        id,
		ActorID:   "player_1",
		Input:     input,
		CreatedAt: createdAt,
		Kind:      kind,
	}
}

func TestMoreImportant(t *testing.T) {
	tests := []struct {
		name string
		a    *core.MemoryRecord
		b    *core.MemoryRecord
		want bool
	}{
		{
			name: "more than a day newer wins regardless of kind",
			a:    rec(1, rankBase.Add(48*time.Hour), core.KindText, "hi"),
			b:    rec(2, rankBase, core.KindVoice, "a much longer spoken message here"),
			want: true,
		},
		{
			name: "more than a day older loses regardless of kind",
			a:    rec(1, rankBase, core.KindVoice, "a much longer spoken message here"),
			b:    rec(2, rankBase.Add(48*time.Hour), core.KindText, "hi"),
			want: false,
		},
		{
			name: "same day voice outranks text",
			a:    rec(1, rankBase, core.KindVoice, "hi"),
			b:    rec(2, rankBase.Add(time.Hour), core.KindText, "hi"),
			want: true,
		},
		{
			name: "same day text loses to voice",
			a:    rec(1, rankBase.Add(time.Hour), core.KindText, "hi"),
			b:    rec(2, rankBase, core.KindVoice, "hi"),
			want: false,
		},
		{
			name: "same day same kind much longer input wins",
			a:    rec(1, rankBase, core.KindText, "this input is considerably longer than the other one"),
			b:    rec(2, rankBase.Add(time.Hour), core.KindText, "hi"),
			want: true,
		},
		{
			name: "same day same kind similar length falls back to recency",
			a:    rec(1, rankBase.Add(time.Hour), core.KindText, "hello there"),
			b:    rec(2, rankBase, core.KindText, "greetings"),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lifecycle.MoreImportant(tt.a, tt.b))
		})
	}
}

func TestTrimToCap(t *testing.T) {
	records := make([]*core.MemoryRecord, 0, 10)
	for i := 0; i < 10; i++ {
		records = append(records, rec(int64(i+1), rankBase.Add(time.Duration(i)*48*time.Hour), core.KindText, "hello"))
	}

	kept, removed := lifecycle.TrimToCap(records, 4)
	assert.Equal(t, 6, removed)
	assert.Len(t, kept, 4)

	// Records are two days apart, so trimming keeps the most recent ones.
	ids := make([]int64, 0, len(kept))
	for _, r := range kept {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []int64{10, 9, 8, 7}, ids)
}

func TestTrimToCap_WithinCap(t *testing.T) {
	records := []*core.MemoryRecord{
		rec(1, rankBase, core.KindVoice, "hi"),
		rec(2, rankBase.Add(time.Hour), core.KindText, "hello"),
	}

	kept, removed := lifecycle.TrimToCap(records, 5)
	assert.Zero(t, removed)
	assert.Len(t, kept, 2)
}

func TestTrimToCap_ZeroCap(t *testing.T) {
	records := []*core.MemoryRecord{rec(1, rankBase, core.KindVoice, "hi")}

	kept, removed := lifecycle.TrimToCap(records, 0)
	assert.Equal(t, 1, removed)
	assert.Empty(t, kept)
}
