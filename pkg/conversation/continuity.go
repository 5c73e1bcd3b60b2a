package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/core"
)

// Elapsed-time buckets for conversation continuity.
const (
	bucketJustNow      = time.Hour
	bucketEarlierToday = 24 * time.Hour
)

// Continuity describes how recently an actor last spoke with an agent.
type Continuity struct {
	// Bucket is the coarse recency bucket: "just now", "earlier today", or
	// "a while ago".
	Bucket string

	// Phrase is a short continuity line referencing the actor's last input,
	// suitable for seeding the next reply.
	Phrase string

	// LastInteraction is the timestamp of the actor's most recent record.
	LastInteraction time.Time
}

// GetConversationContinuity reports how recently the actor last spoke with
// the agent, with a phrase referencing their last input.
//
// Parameters:
//   - ctx: Context for controlling the lookup
//   - agentID: The agent whose store is inspected
//   - actorID: The actor whose history is inspected
//
// Returns the continuity info, nil if the actor has no history with this
// agent, or an error if the store cannot be loaded.
func (a *Assembler) GetConversationContinuity(ctx context.Context, agentID, actorID string) (*Continuity, error) {
	a.locker.Lock()
	defer a.locker.Unlock()

	mem, err := a.store.Load(ctx, agentID)
	if err != nil {
		return nil, core.NewEngineError("GetConversationContinuity", err)
	}

	last := mem.MostRecent(actorID)
	if last == nil {
		return nil, nil
	}

	elapsed := time.Since(last.CreatedAt)
	var bucket, phrase string
	switch {
	case elapsed < bucketJustNow:
		bucket = "just now"
		phrase = fmt.Sprintf("You were just talking about %q.", last.Input)
	case elapsed < bucketEarlierToday:
		bucket = "earlier today"
		phrase = fmt.Sprintf("Earlier today you talked about %q.", last.Input)
	default:
		bucket = "a while ago"
		phrase = fmt.Sprintf("A while ago you talked about %q.", last.Input)
	}

	return &Continuity{
		Bucket:          bucket,
		Phrase:          phrase,
		LastInteraction: last.CreatedAt,
	}, nil
}
