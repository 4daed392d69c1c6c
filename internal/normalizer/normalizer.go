// Package normalizer is the single consumer of the fan-in queue. It
// translates raw deltas into canonical events, assigns the authoritative
// sequence numbers, suppresses duplicate observations, coalesces gold
// noise, and publishes the result to the broadcast bus.
package normalizer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/riftfeed/riftfeed/internal/adapters/mq/queue"
	"github.com/riftfeed/riftfeed/internal/domain/dedupe"
	"github.com/riftfeed/riftfeed/internal/domain/event"
	"github.com/riftfeed/riftfeed/internal/domain/model"
	"github.com/riftfeed/riftfeed/pkg/logger"
	"github.com/riftfeed/riftfeed/pkg/metrics"
)

// Publisher receives the normalized event stream.
type Publisher interface {
	Publish(ev event.Event)
}

// Dequeuer is the inbound side of the fan-in queue.
type Dequeuer interface {
	Dequeue() <-chan queue.Batch
}

// pendingGold accumulates one player's gold movement inside the
// coalescing window.
type pendingGold struct {
	player    event.PlayerRef
	delta     int
	total     int
	ts        uint64
	firstSeen time.Time
}

// Normalizer owns all mutable stream state. Run is the only goroutine
// that touches it, so the translation path needs no locking; the mutex
// below guards the counters read by the stats surface.
type Normalizer struct {
	in  Dequeuer
	pub Publisher
	log logger.Logger

	window    dedupe.Window
	newWindow func() dedupe.Window
	coalesce  time.Duration
	now       func() time.Time

	seq       uint64
	lastPhase string
	gold      map[string]*pendingGold
	goldOrder []string

	statsMu    sync.Mutex
	emitted    uint64
	suppressed uint64
	coalesced  uint64
	violations uint64
	sources    map[model.Source]sourceHealth
}

type sourceHealth struct {
	Up     bool   `json:"up"`
	Reason string `json:"reason,omitempty"`
}

// New returns a normalizer reading from in and publishing to pub.
func New(in Dequeuer, pub Publisher, opts ...Option) (*Normalizer, error) {
	if in == nil {
		return nil, ErrNilQueue
	}
	if pub == nil {
		return nil, ErrNilPublisher
	}

	n := &Normalizer{
		in:       in,
		pub:      pub,
		log:      logger.Named("normalizer"),
		coalesce: defaultCoalesceWindow,
		now:      time.Now,
		gold:     make(map[string]*pendingGold),
		sources:  make(map[model.Source]sourceHealth),
	}
	for _, opt := range opts {
		opt(n)
	}

	if n.newWindow == nil {
		n.newWindow = func() dedupe.Window {
			return dedupe.NewWindow()
		}
	}
	n.window = n.newWindow()

	return n, nil
}

// Run consumes batches until ctx is cancelled or the queue closes.
// Pending gold is flushed on the way out so nothing is silently lost.
func (n *Normalizer) Run(ctx context.Context) {
	n.log.Info("normalizer starting",
		logger.Duration("coalesce_window", n.coalesce))

	ticker := time.NewTicker(n.coalesce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			n.flushGold(true)
			return
		case batch, ok := <-n.in.Dequeue():
			if !ok {
				n.flushGold(true)
				return
			}
			n.handleBatch(batch)
		case <-ticker.C:
			n.flushGold(false)
		}
	}
}

func (n *Normalizer) handleBatch(batch model.Batch) {
	ts := uint64(batch.CapturedAt.UnixMilli())

	for _, delta := range batch.Deltas {
		switch d := delta.(type) {
		case model.PlayerLevelDelta:
			n.emit(event.KindLevelUp, ts, event.LevelPayload{
				Player: d.Player, Level: d.Level,
			})
		case model.SkillLevelDelta:
			n.emit(event.KindSkillLevelUp, ts, event.SkillLevelPayload{
				Player: d.Player, Ability: d.Ability, Level: d.Level,
			})
		case model.PlayerRespawnDelta:
			n.emit(event.KindRespawn, ts, event.PlayerPayload{Player: d.Player})
		case model.PlayerItemDelta:
			kind := event.KindItemAdded
			if !d.Added {
				kind = event.KindItemRemoved
			}
			n.emit(kind, ts, event.ItemPayload{
				Player: d.Player, ItemID: d.ItemID, ItemName: d.ItemName,
			})
		case model.PlayerScoreDelta:
			n.emitScore(ts, d)
		case model.CombatDelta:
			n.emitCombat(ts, d)
		case model.PlayerGoldDelta:
			n.accumulateGold(ts, d)
		case model.PhaseDelta:
			n.handlePhase(ts, d.Phase)
		case model.HeartbeatDelta:
			n.emit(event.KindHeartbeat, ts, event.HeartbeatPayload{Count: d.Count})
		case model.SourceStatusDelta:
			n.handleSourceStatus(batch.Source, d)
		case model.SyntheticDelta:
			// Injected events re-enter through the same validation,
			// dedup and sequencing path as organic ones.
			n.emit(d.Event.Kind, d.Event.TS, d.Event.Payload)
		default:
			n.violation(fmt.Errorf("%w: %T", ErrUnknownDelta, delta))
		}
	}
}

// emitScore derives combat events from scoreboard movement. Deaths lead
// so a victim's respawn bookkeeping downstream sees the death first.
func (n *Normalizer) emitScore(ts uint64, d model.PlayerScoreDelta) {
	if d.Deaths > 0 {
		n.emit(event.KindDeath, ts, event.PlayerPayload{Player: d.Player})
	}
	if d.Kills > 0 {
		n.emit(event.KindKill, ts, event.PlayerPayload{Player: d.Player})
	}
	if d.Assists > 0 {
		n.emit(event.KindAssist, ts, event.PlayerPayload{Player: d.Player})
	}
}

// emitCombat translates one recent-events entry. Both paths can observe
// the same fact; the dedup window collapses the overlap.
func (n *Normalizer) emitCombat(ts uint64, d model.CombatDelta) {
	if d.Victim != nil {
		n.emit(event.KindDeath, ts, event.PlayerPayload{Player: *d.Victim})
	}
	if d.Killer != nil {
		n.emit(event.KindKill, ts, event.PlayerPayload{Player: *d.Killer})
	}
	for _, assister := range d.Assisters {
		n.emit(event.KindAssist, ts, event.PlayerPayload{Player: assister})
	}
}

// accumulateGold merges gold movement into the coalescing window instead
// of emitting immediately; steady trickle income would otherwise dominate
// the stream.
func (n *Normalizer) accumulateGold(ts uint64, d model.PlayerGoldDelta) {
	if d.Delta == 0 {
		return
	}

	key := playerKey(d.Player)
	if pending, ok := n.gold[key]; ok {
		pending.delta += d.Delta
		pending.total = d.Total
		pending.ts = ts
		metrics.RecordEventCoalesced()
		n.statsMu.Lock()
		n.coalesced++
		n.statsMu.Unlock()
		return
	}

	n.gold[key] = &pendingGold{
		player:    d.Player,
		delta:     d.Delta,
		total:     d.Total,
		ts:        ts,
		firstSeen: n.now(),
	}
	n.goldOrder = append(n.goldOrder, key)
}

// flushGold emits pending gold whose window has elapsed, in arrival
// order. With force set everything goes, used on shutdown and match
// reset.
func (n *Normalizer) flushGold(force bool) {
	if len(n.goldOrder) == 0 {
		return
	}

	cutoff := n.now().Add(-n.coalesce)
	var remaining []string
	for _, key := range n.goldOrder {
		pending := n.gold[key]
		if !force && pending.firstSeen.After(cutoff) {
			remaining = append(remaining, key)
			continue
		}
		delete(n.gold, key)
		if pending.delta == 0 {
			// Movements that cancelled out inside the window.
			continue
		}
		n.emit(event.KindGoldDelta, pending.ts, event.GoldPayload{
			Player: pending.player,
			Delta:  pending.delta,
			Total:  pending.total,
		})
	}
	n.goldOrder = remaining
}

// handlePhase forwards phase transitions, suppressing repeats, and
// resets match-scoped state when the client returns to the lobby.
func (n *Normalizer) handlePhase(ts uint64, phase string) {
	n.statsMu.Lock()
	previous := n.lastPhase
	if phase == "" || phase == previous {
		n.statsMu.Unlock()
		return
	}
	n.lastPhase = phase
	n.statsMu.Unlock()

	n.emit(event.KindPhaseChange, ts, event.PhasePayload{Phase: phase})

	if previous != "" && freshMatchPhase(phase) {
		n.log.Info("match boundary crossed, resetting stream state",
			logger.String("from", previous),
			logger.String("to", phase))
		n.flushGold(true)
		n.window = n.newWindow()
	}
}

// freshMatchPhase reports whether the phase marks leaving a match.
func freshMatchPhase(phase string) bool {
	switch phase {
	case "None", "Lobby", "EndOfGame", "PreEndOfGame":
		return true
	default:
		return false
	}
}

func (n *Normalizer) handleSourceStatus(source model.Source, d model.SourceStatusDelta) {
	n.statsMu.Lock()
	n.sources[source] = sourceHealth{Up: d.Up, Reason: d.Reason}
	n.statsMu.Unlock()

	if d.Up {
		n.log.Info("source recovered", logger.String("source", string(source)))
	} else {
		n.log.Warn("source degraded",
			logger.String("source", string(source)),
			logger.String("reason", d.Reason))
	}
}

// emit validates, dedupes, sequences and publishes one event. Sequence
// numbers are only spent on events that actually reach the bus, so the
// published stream is gapless.
func (n *Normalizer) emit(kind event.Kind, ts uint64, payload event.Payload) {
	ev, err := event.New(kind, ts, payload)
	if err != nil {
		n.violation(err)
		return
	}

	if n.window.SeenAndRecord(context.Background(), ev.Fingerprint()) {
		metrics.RecordEventSuppressed()
		n.statsMu.Lock()
		n.suppressed++
		n.statsMu.Unlock()
		return
	}

	n.statsMu.Lock()
	n.seq++
	ev.Seq = n.seq
	n.emitted++
	n.statsMu.Unlock()

	n.pub.Publish(ev)
	metrics.RecordEventEmitted(string(kind))
}

// violation records an internally inconsistent input. The offending
// delta is dropped loudly; it never reaches subscribers.
func (n *Normalizer) violation(err error) {
	n.log.Error("dropping inconsistent delta", logger.Error(err))
	metrics.RecordInvariantViolation()
	n.statsMu.Lock()
	n.violations++
	n.statsMu.Unlock()
}

// Stats is the normalizer's view for the introspection surface.
type Stats struct {
	Seq        uint64                  `json:"seq"`
	Emitted    uint64                  `json:"emitted"`
	Suppressed uint64                  `json:"suppressed"`
	Coalesced  uint64                  `json:"coalesced"`
	Violations uint64                  `json:"violations"`
	LastPhase  string                  `json:"lastPhase,omitempty"`
	Sources    map[string]sourceHealth `json:"sources"`
}

// Stats returns a point-in-time snapshot of the stream counters.
func (n *Normalizer) Stats() Stats {
	n.statsMu.Lock()
	defer n.statsMu.Unlock()

	sources := make(map[string]sourceHealth, len(n.sources))
	for source, health := range n.sources {
		sources[string(source)] = health
	}

	return Stats{
		Seq:        n.seq,
		Emitted:    n.emitted,
		Suppressed: n.suppressed,
		Coalesced:  n.coalesced,
		Violations: n.violations,
		LastPhase:  n.lastPhase,
		Sources:    sources,
	}
}

func playerKey(p event.PlayerRef) string {
	return fmt.Sprintf("%s:%d:%s", p.Team, p.Slot, p.Name)
}
