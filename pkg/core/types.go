// Package core provides the shared types, errors, and configuration for the
// villager memory lifecycle engine.
package core

import (
	"errors"
	"fmt"
	"time"
)

// InteractionKind categorizes how an actor interacted with an agent.
//
// Kinds influence lifecycle decisions: voice interactions outrank non-voice
// interactions of similar age when the optimizer trims a store to a cap.
type InteractionKind string

const (
	// KindVoice is a spoken interaction captured by the host application.
	KindVoice InteractionKind = "voice"

	// KindText is a typed chat interaction.
	KindText InteractionKind = "text"

	// KindTrade is a trade or exchange interaction.
	KindTrade InteractionKind = "trade"

	// KindSystem is an interaction generated by the host application itself
	// (ambient events, scripted dialogue, replay tooling).
	KindSystem InteractionKind = "system"
)

// ErrInvalidKind is returned when an InteractionKind value is not recognized.
var ErrInvalidKind = errors.New("villagemem: invalid interaction kind")

// String returns the string representation of the InteractionKind.
func (k InteractionKind) String() string {
	return string(k)
}

// IsValid returns true if the InteractionKind is one of the defined constants.
func (k InteractionKind) IsValid() bool {
	switch k {
	case KindVoice, KindText, KindTrade, KindSystem:
		return true
	default:
		return false
	}
}

// Validate returns an error if the InteractionKind is not valid.
func (k InteractionKind) Validate() error {
	if !k.IsValid() {
		return fmt.Errorf("%w: %q (must be one of: voice, text, trade, system)", ErrInvalidKind, k)
	}
	return nil
}

// DaySource reports the current logical day of the host application.
//
// The logical day is a domain-specific counter (the in-game day), distinct
// from wall-clock time. All retention math uses logical days; the engine
// never computes the day itself.
type DaySource func() int64

// Actor identifies the counterpart interacting with an agent.
//
// Calling code constructs an Actor from its own domain types; the engine
// never inspects opaque host objects.
type Actor struct {
	// ID is the opaque unique identifier of the actor.
	ID string `json:"id"`

	// DisplayName is the human-readable name of the actor.
	DisplayName string `json:"display_name"`
}

// MemoryRecord is one logged interaction turn between an actor and an agent.
//
// Records are immutable once created. They are destroyed only by age-based
// expiry, pressure-based optimization, or a restore that overwrites the
// owning store.
type MemoryRecord struct {
	// ID is the unique identifier of the record (snowflake).
	ID int64 `json:"id"`

	// ActorID is the opaque unique identifier of the interacting actor.
	ActorID string `json:"actor_id"`

	// ActorName is the actor's display name at the time of the interaction.
	ActorName string `json:"actor_name"`

	// Input is the actor's input content for this turn.
	Input string `json:"input"`

	// Response is the agent's response content for this turn.
	Response string `json:"response"`

	// CreatedAt is the wall-clock creation time of the record.
	CreatedAt time.Time `json:"created_at"`

	// GameDay is the logical day the interaction happened on.
	GameDay int64 `json:"game_day"`

	// Kind is the interaction category.
	Kind InteractionKind `json:"kind"`
}

// AgeDays returns the record's age in logical days relative to currentDay.
func (r *MemoryRecord) AgeDays(currentDay int64) int64 {
	return currentDay - r.GameDay
}

// AgentMemoryStore holds the full interaction history of one agent.
//
// Exactly one logical store exists per agent identifier; the engine never
// merges two stores for the same ID. Insertion order of Records carries no
// meaning; recency is derived from the timestamp and day fields.
type AgentMemoryStore struct {
	// AgentID is the unique identifier of the agent.
	AgentID string `json:"agent_id"`

	// Records is the agent's interaction history.
	Records []*MemoryRecord `json:"records"`

	// CreatedAt is when the store was first created.
	CreatedAt time.Time `json:"created_at"`

	// LastInteractionAt is the wall-clock time of the most recent append.
	LastInteractionAt time.Time `json:"last_interaction_at"`

	// InteractionCount is the total number of interactions ever appended,
	// including records later removed by cleanup.
	InteractionCount int64 `json:"interaction_count"`
}

// NewAgentMemoryStore creates an empty store for the given agent.
func NewAgentMemoryStore(agentID string) *AgentMemoryStore {
	return &AgentMemoryStore{
		AgentID:   agentID,
		Records:   make([]*MemoryRecord, 0),
		CreatedAt: time.Now(),
	}
}

// Append adds a record and updates the lifecycle counters.
func (s *AgentMemoryStore) Append(record *MemoryRecord) {
	s.Records = append(s.Records, record)
	s.LastInteractionAt = record.CreatedAt
	s.InteractionCount++
}

// Clone returns a deep copy of the store. The copy shares nothing with the
// original: mutating either side's Records slice, record fields, or counters
// leaves the other untouched.
func (s *AgentMemoryStore) Clone() *AgentMemoryStore {
	if s == nil {
		return nil
	}
	out := *s
	out.Records = make([]*MemoryRecord, len(s.Records))
	for i, r := range s.Records {
		cp := *r
		out.Records[i] = &cp
	}
	return &out
}

// RecordCount returns the number of records currently held.
func (s *AgentMemoryStore) RecordCount() int {
	return len(s.Records)
}

// RecordsForActor returns the records created by the given actor, in the
// store's internal order.
func (s *AgentMemoryStore) RecordsForActor(actorID string) []*MemoryRecord {
	var out []*MemoryRecord
	for _, r := range s.Records {
		if r.ActorID == actorID {
			out = append(out, r)
		}
	}
	return out
}

// MostRecent returns the record with the latest CreatedAt, or nil if the
// store is empty. When actorID is non-empty only that actor's records are
// considered.
func (s *AgentMemoryStore) MostRecent(actorID string) *MemoryRecord {
	var latest *MemoryRecord
	for _, r := range s.Records {
		if actorID != "" && r.ActorID != actorID {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	return latest
}
