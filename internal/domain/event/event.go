// Package event defines the canonical event model shared by every layer
// of the daemon: the normalizer constructs these, the bus retains them,
// and the streaming API serializes them outward.
package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Team identifies the side a participant plays on.
type Team string

// Teams recognised by the live client.
const (
	TeamOrder   Team = "order"
	TeamChaos   Team = "chaos"
	TeamNeutral Team = "neutral"
)

// PlayerRef is the stable identity of a participant within one match.
// (Team, Slot) uniquely identifies a participant for the match lifetime;
// Name is a denormalized display attribute, never identity.
type PlayerRef struct {
	Name string `json:"name"`
	Team Team   `json:"team"`
	Slot uint8  `json:"slot"`
}

// Kind enumerates the canonical event kinds.
type Kind string

// Accepted event kinds.
const (
	KindKill         Kind = "kill"
	KindDeath        Kind = "death"
	KindAssist       Kind = "assist"
	KindLevelUp      Kind = "levelUp"
	KindSkillLevelUp Kind = "skillLevelUp"
	KindItemAdded    Kind = "itemAdded"
	KindItemRemoved  Kind = "itemRemoved"
	KindGoldDelta    Kind = "goldDelta"
	KindRespawn      Kind = "respawn"
	KindPhaseChange  Kind = "phaseChange"
	KindHeartbeat    Kind = "heartbeat"
)

// Kinds lists every accepted kind in a fixed order.
func Kinds() []Kind {
	return []Kind{
		KindKill, KindDeath, KindAssist,
		KindLevelUp, KindSkillLevelUp,
		KindItemAdded, KindItemRemoved,
		KindGoldDelta, KindRespawn,
		KindPhaseChange, KindHeartbeat,
	}
}

// ParseKind returns the Kind matching s, or an error for unknown input.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// AbilitySlot identifies one of the four leveled abilities.
type AbilitySlot string

// Ability slots.
const (
	AbilityQ AbilitySlot = "q"
	AbilityW AbilitySlot = "w"
	AbilityE AbilitySlot = "e"
	AbilityR AbilitySlot = "r"
)

// Payload is the tagged variant carried by an Event. The concrete shape
// is determined by the event kind; the pairing is enforced at
// construction time by New.
type Payload interface {
	isPayload()
	fingerprint(sb *strings.Builder)
}

// PlayerPayload carries a bare participant reference
// (kill, death, assist, respawn).
type PlayerPayload struct {
	Player PlayerRef `json:"player"`
}

// ItemPayload carries a participant plus an item (itemAdded, itemRemoved).
type ItemPayload struct {
	Player   PlayerRef `json:"player"`
	ItemID   int       `json:"itemId"`
	ItemName string    `json:"itemName,omitempty"`
}

// LevelPayload carries a participant's new champion level (levelUp).
type LevelPayload struct {
	Player PlayerRef `json:"player"`
	Level  int       `json:"level"`
}

// SkillLevelPayload carries an ability rank change (skillLevelUp).
type SkillLevelPayload struct {
	Player  PlayerRef   `json:"player"`
	Ability AbilitySlot `json:"ability"`
	Level   int         `json:"level"`
}

// GoldPayload carries a gold change and the resulting total (goldDelta).
type GoldPayload struct {
	Player PlayerRef `json:"player"`
	Delta  int       `json:"delta"`
	Total  int       `json:"total"`
}

// PhasePayload carries a game phase transition (phaseChange).
type PhasePayload struct {
	Phase string `json:"phase"`
}

// HeartbeatPayload carries the liveness tick counter (heartbeat).
type HeartbeatPayload struct {
	Count uint64 `json:"count"`
}

// CustomPayload is an opaque structured extension, accepted for any kind.
type CustomPayload map[string]interface{}

func (PlayerPayload) isPayload()     {}
func (ItemPayload) isPayload()       {}
func (LevelPayload) isPayload()      {}
func (SkillLevelPayload) isPayload() {}
func (GoldPayload) isPayload()       {}
func (PhasePayload) isPayload()      {}
func (HeartbeatPayload) isPayload()  {}
func (CustomPayload) isPayload()     {}

func (p PlayerPayload) fingerprint(sb *strings.Builder) {
	writePlayer(sb, p.Player)
}

func (p ItemPayload) fingerprint(sb *strings.Builder) {
	writePlayer(sb, p.Player)
	sb.WriteByte('|')
	sb.WriteString(strconv.Itoa(p.ItemID))
}

func (p LevelPayload) fingerprint(sb *strings.Builder) {
	writePlayer(sb, p.Player)
	sb.WriteByte('|')
	sb.WriteString(strconv.Itoa(p.Level))
}

func (p SkillLevelPayload) fingerprint(sb *strings.Builder) {
	writePlayer(sb, p.Player)
	sb.WriteByte('|')
	sb.WriteString(string(p.Ability))
	sb.WriteByte('|')
	sb.WriteString(strconv.Itoa(p.Level))
}

func (p GoldPayload) fingerprint(sb *strings.Builder) {
	writePlayer(sb, p.Player)
	sb.WriteByte('|')
	sb.WriteString(strconv.Itoa(p.Total))
}

func (p PhasePayload) fingerprint(sb *strings.Builder) {
	sb.WriteString(p.Phase)
}

func (p HeartbeatPayload) fingerprint(sb *strings.Builder) {
	sb.WriteString(strconv.FormatUint(p.Count, 10))
}

func (p CustomPayload) fingerprint(sb *strings.Builder) {
	// Opaque payloads fingerprint on their serialized form.
	raw, err := json.Marshal(map[string]interface{}(p))
	if err != nil {
		return
	}
	sb.Write(raw)
}

func writePlayer(sb *strings.Builder, p PlayerRef) {
	sb.WriteString(string(p.Team))
	sb.WriteByte(':')
	sb.WriteString(strconv.Itoa(int(p.Slot)))
	sb.WriteByte(':')
	sb.WriteString(p.Name)
}

// Event is one normalized, typed, ordered unit of match information.
// Seq is the authoritative order for all consumers; TS is a wall-clock
// attribute only, since the raw sources carry unsynchronized clocks.
type Event struct {
	Seq     uint64  `json:"seq"`
	Kind    Kind    `json:"kind"`
	TS      uint64  `json:"ts"`
	Payload Payload `json:"payload"`
}

// New builds an Event, enforcing the kind/payload pairing. A mismatch is
// a construction-time defect and never becomes runtime-visible state.
func New(kind Kind, ts uint64, payload Payload) (Event, error) {
	if !kindAccepts(kind, payload) {
		return Event{}, fmt.Errorf("%w: kind %q with payload %T", ErrPayloadMismatch, kind, payload)
	}
	return Event{Kind: kind, TS: ts, Payload: payload}, nil
}

// kindAccepts reports whether payload is a legal variant for kind.
func kindAccepts(kind Kind, payload Payload) bool {
	if _, ok := payload.(CustomPayload); ok {
		// Opaque extensions are accepted for any known kind.
		_, err := ParseKind(string(kind))
		return err == nil
	}

	switch kind {
	case KindKill, KindDeath, KindAssist, KindRespawn:
		_, ok := payload.(PlayerPayload)
		return ok
	case KindLevelUp:
		_, ok := payload.(LevelPayload)
		return ok
	case KindSkillLevelUp:
		_, ok := payload.(SkillLevelPayload)
		return ok
	case KindItemAdded, KindItemRemoved:
		_, ok := payload.(ItemPayload)
		return ok
	case KindGoldDelta:
		_, ok := payload.(GoldPayload)
		return ok
	case KindPhaseChange:
		_, ok := payload.(PhasePayload)
		return ok
	case KindHeartbeat:
		_, ok := payload.(HeartbeatPayload)
		return ok
	default:
		return false
	}
}

// Fingerprint derives the deduplication key for the event: the kind, the
// participant identity, and the kind's semantically distinguishing fields.
// Seq and TS are deliberately excluded so near-duplicate observations of
// the same fact collide.
func (e Event) Fingerprint() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	sb.WriteByte('|')
	if e.Payload != nil {
		e.Payload.fingerprint(&sb)
	}
	return sb.String()
}

// eventWire mirrors Event with a raw payload for two-phase decoding.
type eventWire struct {
	Seq     uint64          `json:"seq"`
	Kind    Kind            `json:"kind"`
	TS      uint64          `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

// UnmarshalJSON decodes an event, selecting the payload variant by kind.
func (e *Event) UnmarshalJSON(data []byte) error {
	var wire eventWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode event envelope: %w", err)
	}

	payload, err := decodePayload(wire.Kind, wire.Payload)
	if err != nil {
		return err
	}

	e.Seq = wire.Seq
	e.Kind = wire.Kind
	e.TS = wire.TS
	e.Payload = payload
	return nil
}

func decodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: kind %q without payload", ErrPayloadMismatch, kind)
	}

	decode := func(v interface{}) error {
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("decode %q payload: %w", kind, err)
		}
		return nil
	}

	switch kind {
	case KindKill, KindDeath, KindAssist, KindRespawn:
		var p PlayerPayload
		if err := decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	case KindLevelUp:
		var p LevelPayload
		if err := decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	case KindSkillLevelUp:
		var p SkillLevelPayload
		if err := decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	case KindItemAdded, KindItemRemoved:
		var p ItemPayload
		if err := decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	case KindGoldDelta:
		var p GoldPayload
		if err := decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	case KindPhaseChange:
		var p PhasePayload
		if err := decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	case KindHeartbeat:
		var p HeartbeatPayload
		if err := decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
