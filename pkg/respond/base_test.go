package respond_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/core"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/respond"
)

func TestApplyGenerateOptions_Defaults(t *testing.T) {
	opts := respond.ApplyGenerateOptions(nil)
	assert.Equal(t, 0.8, opts.Temperature)
	assert.Equal(t, 256, opts.MaxTokens)
	assert.Equal(t, 1.0, opts.TopP)
}

func TestApplyGenerateOptions_Overrides(t *testing.T) {
	opts := respond.ApplyGenerateOptions([]respond.GenerateOption{
		respond.WithTemperature(0.2),
		respond.WithMaxTokens(64),
		respond.WithTopP(0.5),
	})
	assert.Equal(t, 0.2, opts.Temperature)
	assert.Equal(t, 64, opts.MaxTokens)
	assert.Equal(t, 0.5, opts.TopP)
}

func TestBuildConversationMessages(t *testing.T) {
	records := []*core.MemoryRecord{
		{
			ActorName: "Steve",
			Input:     "how is the harvest",
			Response:  "coming along nicely",
			CreatedAt: time.Now(),
			GameDay:   41,
			Kind:      core.KindVoice,
		},
	}

	messages := respond.BuildConversationMessages("villager_farmer", "Steve", "good morning!", records)
	require.Len(t, messages, 2)

	system := messages[0]
	assert.Equal(t, "system", system.Role)
	assert.Contains(t, system.Content, "villager_farmer")
	assert.Contains(t, system.Content, "how is the harvest")
	assert.Contains(t, system.Content, "coming along nicely")
	assert.Contains(t, system.Content, "day 41")

	user := messages[1]
	assert.Equal(t, "user", user.Role)
	assert.Contains(t, user.Content, "Steve says:")
	assert.Contains(t, user.Content, "good morning!")
}

func TestBuildConversationMessages_NoContext(t *testing.T) {
	messages := respond.BuildConversationMessages("villager_1", "", "hello", nil)
	require.Len(t, messages, 2)
	assert.NotContains(t, messages[0].Content, "Things you remember")
	assert.Equal(t, "hello", messages[1].Content)
}
