// Package conversation assembles memory context for conversation turns and
// records completed turns back into agent stores.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/core"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/respond"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/store"
)

// DefaultContextSize is the number of memories retrieved for a turn.
const DefaultContextSize = 5

// recentHistorySize is the length of the history slice bundled in results.
const recentHistorySize = 10

// Assembler retrieves contextual memories for conversation turns, delegates
// to a response generator, and appends the completed turn to the agent's
// store. A turn writes to the store only after the generator succeeds; a
// generator failure leaves the store untouched.
type Assembler struct {
	store     store.RecordStore
	generator respond.Generator
	node      *snowflake.Node
	day       core.DaySource
	locker    sync.Locker
	logger    *slog.Logger

	wg sync.WaitGroup
}

// Result is the outcome of one conversation turn.
type Result struct {
	// Response is the generated reply text. Empty if the turn failed.
	Response string

	// ContextUsed is the memories supplied to the generator, most relevant
	// first.
	ContextUsed []*core.MemoryRecord

	// RecentHistory is the actor's last interactions with this agent,
	// including the turn just recorded, most recent first.
	RecentHistory []*core.MemoryRecord

	// Err is non-nil if the turn failed. A failed turn makes no store
	// mutation.
	Err error
}

// NewAssembler creates a new context assembler.
//
// Parameters:
//   - recordStore: The record store holding agent memories
//   - generator: The response generator invoked per turn
//   - node: Snowflake node used to mint record IDs
//   - day: Source of the current logical day
//   - locker: The store mutation lock shared with the maintenance
//     subsystems (nil allocates a private mutex)
//   - logger: Structured logger (nil uses slog.Default())
func NewAssembler(
	recordStore store.RecordStore,
	generator respond.Generator,
	node *snowflake.Node,
	day core.DaySource,
	locker sync.Locker,
	logger *slog.Logger,
) *Assembler {
	if locker == nil {
		locker = &sync.Mutex{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		store:     recordStore,
		generator: generator,
		node:      node,
		day:       day,
		locker:    locker,
		logger:    logger,
	}
}

// RetrieveContextualMemories returns up to maxCount memories relevant to the
// actor: the actor's own most-recent records first, backfilled with the
// most-recent records from any actor in the same store once the actor's own
// are exhausted.
//
// Parameters:
//   - mem: The agent's memory store
//   - actorID: The actor whose history is preferred
//   - maxCount: Maximum number of memories to return
//
// Returns the selected memories, most recent first within each tier.
func RetrieveContextualMemories(mem *core.AgentMemoryStore, actorID string, maxCount int) []*core.MemoryRecord {
	if mem == nil || maxCount <= 0 {
		return nil
	}

	own := mem.RecordsForActor(actorID)
	sort.SliceStable(own, func(i, j int) bool {
		return own[i].CreatedAt.After(own[j].CreatedAt)
	})

	selected := make([]*core.MemoryRecord, 0, maxCount)
	picked := make(map[int64]bool, maxCount)
	for _, r := range own {
		if len(selected) >= maxCount {
			return selected
		}
		selected = append(selected, r)
		picked[r.ID] = true
	}

	// Backfill from the rest of the store, newest first, skipping records
	// already selected.
	rest := make([]*core.MemoryRecord, 0, mem.RecordCount())
	for _, r := range mem.Records {
		if !picked[r.ID] {
			rest = append(rest, r)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool {
		return rest[i].CreatedAt.After(rest[j].CreatedAt)
	})
	for _, r := range rest {
		if len(selected) >= maxCount {
			break
		}
		selected = append(selected, r)
	}

	return selected
}

// ProcessConversation runs one conversation turn asynchronously.
//
// The turn loads the agent's store, retrieves contextual memories, and
// delegates to the response generator. On success a new record is appended
// and the store persisted; on generator failure the result carries the error
// and the store is not mutated.
//
// Parameters:
//   - ctx: Context for controlling the turn lifecycle
//   - agentID: The agent being spoken to
//   - actor: The actor speaking
//   - input: The actor's input content
//   - kind: The interaction kind for the recorded turn
//
// Returns a channel that receives exactly one Result.
func (a *Assembler) ProcessConversation(ctx context.Context, agentID string, actor core.Actor, input string, kind core.InteractionKind) <-chan *Result {
	resultChan := make(chan *Result, 1)
	a.wg.Add(1)

	go func() {
		defer a.wg.Done()
		resultChan <- a.processTurn(ctx, agentID, actor, input, kind)
	}()

	return resultChan
}

func (a *Assembler) processTurn(ctx context.Context, agentID string, actor core.Actor, input string, kind core.InteractionKind) *Result {
	if err := kind.Validate(); err != nil {
		return &Result{Err: core.NewEngineError("ProcessConversation", err)}
	}

	a.locker.Lock()
	defer a.locker.Unlock()

	mem, err := a.store.Load(ctx, agentID)
	if err != nil {
		return &Result{Err: core.NewEngineError("ProcessConversation", err)}
	}

	contextUsed := RetrieveContextualMemories(mem, actor.ID, DefaultContextSize)

	messages := respond.BuildConversationMessages(agentID, actor.DisplayName, input, contextUsed)
	response, err := a.generator.Generate(ctx, messages)
	if err != nil {
		a.logger.Warn("response generation failed",
			slog.String("agent_id", agentID),
			slog.String("actor_id", actor.ID),
			slog.Any("error", err))
		return &Result{
			ContextUsed: contextUsed,
			Err:         core.NewEngineError("ProcessConversation", fmt.Errorf("%w: %v", core.ErrGenerationFailed, err)),
		}
	}

	record := &core.MemoryRecord{
		ID:        a.node.Generate().Int64(),
		ActorID:   actor.ID,
		ActorName: actor.DisplayName,
		Input:     input,
		Response:  response,
		CreatedAt: time.Now(),
		GameDay:   a.day(),
		Kind:      kind,
	}
	mem.Append(record)

	if err := a.store.Save(ctx, mem); err != nil {
		return &Result{
			Response:    response,
			ContextUsed: contextUsed,
			Err:         core.NewEngineError("ProcessConversation", err),
		}
	}

	history := mem.RecordsForActor(actor.ID)
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].CreatedAt.After(history[j].CreatedAt)
	})
	if len(history) > recentHistorySize {
		history = history[:recentHistorySize]
	}

	return &Result{
		Response:      response,
		ContextUsed:   contextUsed,
		RecentHistory: history,
	}
}

// EnsureStore creates an empty store for the agent if none exists yet.
// Stores are created lazily on first interaction with a new agent.
//
// Returns the loaded or newly created store.
func (a *Assembler) EnsureStore(ctx context.Context, agentID string) (*core.AgentMemoryStore, error) {
	a.locker.Lock()
	defer a.locker.Unlock()

	mem, err := a.store.Load(ctx, agentID)
	if err == nil {
		return mem, nil
	}
	if !errors.Is(err, core.ErrAgentNotFound) {
		return nil, core.NewEngineError("EnsureStore", err)
	}

	mem = core.NewAgentMemoryStore(agentID)
	if err := a.store.Save(ctx, mem); err != nil {
		return nil, core.NewEngineError("EnsureStore", err)
	}
	return mem, nil
}

// Wait blocks until all in-flight conversation turns have completed.
func (a *Assembler) Wait() {
	a.wg.Wait()
}
