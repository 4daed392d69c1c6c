// Package model contains the transient raw types passed from the telemetry
// sources to the normalizer. Values of these types are created per poll
// cycle or per push message and die after normalization.
package model

import (
	"time"

	"github.com/riftfeed/riftfeed/internal/domain/event"
)

// Source identifies which producer created a batch.
type Source string

// Producers feeding the fan-in queue.
const (
	SourceSnapshot Source = "snapshot"
	SourceSession  Source = "session"
	SourceControl  Source = "control"
)

// Delta is one raw observed change. The concrete type determines how the
// normalizer translates it into canonical events.
type Delta interface {
	isDelta()
}

// PlayerLevelDelta reports a champion level increase observed in a snapshot.
type PlayerLevelDelta struct {
	Player event.PlayerRef
	Level  int
}

// PlayerGoldDelta reports a change in a player's current gold.
type PlayerGoldDelta struct {
	Player event.PlayerRef
	Delta  int
	Total  int
}

// PlayerItemDelta reports an inventory change. Count is the number of
// copies added or removed (purchases of stacked consumables arrive as a
// single delta with Count > 1).
type PlayerItemDelta struct {
	Player   event.PlayerRef
	Added    bool
	ItemID   int
	ItemName string
	Count    int
}

// PlayerScoreDelta reports counter increases on a player's scoreline.
type PlayerScoreDelta struct {
	Player  event.PlayerRef
	Kills   int
	Deaths  int
	Assists int
}

// PlayerRespawnDelta reports a player returning from death.
type PlayerRespawnDelta struct {
	Player event.PlayerRef
}

// SkillLevelDelta reports an ability rank increase.
type SkillLevelDelta struct {
	Player  event.PlayerRef
	Ability event.AbilitySlot
	Level   int
}

// CombatDelta is one entry from the recent-events list: a champion kill
// with its participants already resolved to stable references. Killer or
// Victim may be nil when the raw payload omitted them.
type CombatDelta struct {
	Killer    *event.PlayerRef
	Victim    *event.PlayerRef
	Assisters []event.PlayerRef
	GameTime  uint64 // milliseconds since match start
}

// PhaseDelta reports a game phase transition from either source.
type PhaseDelta struct {
	Phase string
}

// HeartbeatDelta is the fixed liveness tick, independent of poll cadence.
type HeartbeatDelta struct {
	Count uint64
}

// SourceStatusDelta marks a source becoming unavailable or recovering.
// It never produces a canonical event; the normalizer uses it to track
// degradation for the health surface.
type SourceStatusDelta struct {
	Up     bool
	Reason string
}

// SyntheticDelta injects a pre-built event from the control surface. The
// event enters the stream exactly as if normalized: it still receives a
// sequence number and passes the dedup window.
type SyntheticDelta struct {
	Event event.Event
}

func (PlayerLevelDelta) isDelta()   {}
func (PlayerGoldDelta) isDelta()    {}
func (PlayerItemDelta) isDelta()    {}
func (PlayerScoreDelta) isDelta()   {}
func (PlayerRespawnDelta) isDelta() {}
func (SkillLevelDelta) isDelta()    {}
func (CombatDelta) isDelta()        {}
func (PhaseDelta) isDelta()         {}
func (HeartbeatDelta) isDelta()     {}
func (SourceStatusDelta) isDelta()  {}
func (SyntheticDelta) isDelta()     {}

// Batch groups the deltas produced by one poll cycle or one push message,
// stamped with its origin and wall-clock capture time.
type Batch struct {
	Source     Source
	PollSeq    uint64
	CapturedAt time.Time
	Deltas     []Delta
}
