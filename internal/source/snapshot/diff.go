package snapshot

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/riftfeed/riftfeed/internal/domain/event"
	"github.com/riftfeed/riftfeed/internal/domain/model"
)

// Wire shapes of the live client REST payloads.

type playerListEntry struct {
	SummonerName string            `json:"summonerName"`
	Team         string            `json:"team"`
	Level        int               `json:"level"`
	CurrentGold  float64           `json:"currentGold"`
	IsDead       bool              `json:"isDead"`
	Items        []playerItemEntry `json:"items"`
	Scores       playerScores      `json:"scores"`
}

type playerItemEntry struct {
	ItemID      int    `json:"itemID"`
	DisplayName string `json:"displayName"`
}

type playerScores struct {
	Kills   int `json:"kills"`
	Deaths  int `json:"deaths"`
	Assists int `json:"assists"`
}

type activePlayer struct {
	SummonerName string                  `json:"summonerName"`
	Abilities    map[string]abilityEntry `json:"abilities"`
}

type abilityEntry struct {
	AbilityLevel int `json:"abilityLevel"`
}

type eventListResponse struct {
	Events []rawMatchEvent `json:"Events"`
}

type rawMatchEvent struct {
	EventID      uint64   `json:"EventID"`
	EventName    string   `json:"EventName"`
	EventTime    float64  `json:"EventTime"`
	KillerName   string   `json:"KillerName"`
	VictimName   string   `json:"VictimName"`
	Assisters    []string `json:"Assisters"`
	SummonerName string   `json:"SummonerName"`
}

func parsePlayerList(body []byte) ([]playerListEntry, error) {
	var entries []playerListEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("deserialize playerlist response: %w", err)
	}
	return entries, nil
}

func parseActivePlayer(body []byte) (activePlayer, error) {
	var active activePlayer
	if err := json.Unmarshal(body, &active); err != nil {
		return activePlayer{}, fmt.Errorf("deserialize activeplayer response: %w", err)
	}
	return active, nil
}

func parseEventList(body []byte) ([]rawMatchEvent, error) {
	var response eventListResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("deserialize eventdata response: %w", err)
	}
	return response.Events, nil
}

func parseTeam(team string) event.Team {
	switch team {
	case "ORDER":
		return event.TeamOrder
	case "CHAOS":
		return event.TeamChaos
	default:
		return event.TeamNeutral
	}
}

// itemState is the registry's view of one inventory slot.
type itemState struct {
	count int
	name  string
}

// playerState is the last observed snapshot of one participant.
type playerState struct {
	ref     event.PlayerRef
	level   int
	gold    int
	dead    bool
	items   map[int]itemState
	kills   int
	deaths  int
	assists int
}

// playerRegistry tracks participants across poll cycles. (Team, slot)
// assignments are sticky for the match lifetime even though the wire
// payload only carries display names.
type playerRegistry struct {
	players map[string]*playerState
}

func newPlayerRegistry() *playerRegistry {
	return &playerRegistry{players: make(map[string]*playerState)}
}

// reset clears all tracked participants; used when a new match begins.
func (r *playerRegistry) reset() {
	r.players = make(map[string]*playerState)
}

// resolve returns the stable reference for name, or a neutral placeholder
// when the name is not (yet) in the registry.
func (r *playerRegistry) resolve(name string) event.PlayerRef {
	if state, ok := r.players[name]; ok {
		return state.ref
	}
	return event.PlayerRef{Name: name, Team: event.TeamNeutral, Slot: 0}
}

// apply folds a fresh playerlist into the registry and returns the deltas
// between the previous observation and this one, in the entries' listed
// order. Per player the order is fixed: level, respawn, items, score,
// gold last; downstream event ordering depends on it.
func (r *playerRegistry) apply(entries []playerListEntry) []model.Delta {
	next := make(map[string]*playerState, len(entries))
	var deltas []model.Delta

	used := make(map[uint8]bool, len(r.players))
	for _, state := range r.players {
		used[state.ref.Slot] = true
	}

	for _, entry := range entries {
		team := parseTeam(entry.Team)
		previous := r.players[entry.SummonerName]

		var slot uint8
		if previous != nil {
			slot = previous.ref.Slot
		} else {
			slot = allocateSlot(team, used)
		}
		used[slot] = true

		state := stateFromEntry(entry, team, slot)
		if previous != nil {
			deltas = append(deltas, diffPlayer(previous, state)...)
		}
		next[entry.SummonerName] = state
	}

	r.players = next
	return deltas
}

// allocateSlot hands out the first free slot in the team's range:
// order players take 0-4, chaos 5-9.
func allocateSlot(team event.Team, used map[uint8]bool) uint8 {
	var start, end uint8
	switch team {
	case event.TeamOrder:
		start, end = 0, 5
	case event.TeamChaos:
		start, end = 5, 10
	default:
		start, end = 0, 10
	}

	for slot := start; slot < end; slot++ {
		if !used[slot] {
			return slot
		}
	}

	// Fallback: reuse the first slot for the team if all are taken.
	return start
}

func stateFromEntry(entry playerListEntry, team event.Team, slot uint8) *playerState {
	items := make(map[int]itemState, len(entry.Items))
	for _, item := range entry.Items {
		if item.ItemID == 0 {
			continue
		}
		existing := items[item.ItemID]
		existing.count++
		if existing.name == "" {
			existing.name = item.DisplayName
		}
		items[item.ItemID] = existing
	}

	return &playerState{
		ref: event.PlayerRef{
			Name: entry.SummonerName,
			Team: team,
			Slot: slot,
		},
		level:   entry.Level,
		gold:    clampGold(entry.CurrentGold),
		dead:    entry.IsDead,
		items:   items,
		kills:   entry.Scores.Kills,
		deaths:  entry.Scores.Deaths,
		assists: entry.Scores.Assists,
	}
}

func clampGold(gold float64) int {
	if math.IsNaN(gold) || math.IsInf(gold, 0) {
		return 0
	}
	return int(math.Round(gold))
}

// diffPlayer produces the deltas between two observations of one player.
func diffPlayer(previous, current *playerState) []model.Delta {
	var deltas []model.Delta

	if current.level > previous.level {
		deltas = append(deltas, model.PlayerLevelDelta{
			Player: current.ref,
			Level:  current.level,
		})
	}

	if previous.dead && !current.dead {
		deltas = append(deltas, model.PlayerRespawnDelta{Player: current.ref})
	}

	deltas = append(deltas, diffItems(previous, current)...)

	score := model.PlayerScoreDelta{Player: current.ref}
	if current.kills > previous.kills {
		score.Kills = current.kills - previous.kills
	}
	if current.deaths > previous.deaths {
		score.Deaths = current.deaths - previous.deaths
	}
	if current.assists > previous.assists {
		score.Assists = current.assists - previous.assists
	}
	if score.Kills > 0 || score.Deaths > 0 || score.Assists > 0 {
		deltas = append(deltas, score)
	}

	// Gold stays last so derived gold events trail the combat events
	// that explain them.
	if gold := current.gold - previous.gold; gold != 0 {
		deltas = append(deltas, model.PlayerGoldDelta{
			Player: current.ref,
			Delta:  gold,
			Total:  current.gold,
		})
	}

	return deltas
}

// diffItems compares two inventories by item id and count.
func diffItems(previous, current *playerState) []model.Delta {
	var deltas []model.Delta

	remaining := make(map[int]itemState, len(previous.items))
	for id, state := range previous.items {
		remaining[id] = state
	}

	// Item ids are walked in ascending order so repeated diffs of the
	// same inventories emit identical sequences.
	for _, id := range sortedItemIDs(current.items) {
		now := current.items[id]
		before, had := remaining[id]
		delete(remaining, id)

		name := now.name
		if name == "" {
			name = before.name
		}

		switch {
		case !had:
			deltas = append(deltas, model.PlayerItemDelta{
				Player: current.ref, Added: true,
				ItemID: id, ItemName: name, Count: now.count,
			})
		case now.count > before.count:
			deltas = append(deltas, model.PlayerItemDelta{
				Player: current.ref, Added: true,
				ItemID: id, ItemName: name, Count: now.count - before.count,
			})
		case now.count < before.count:
			deltas = append(deltas, model.PlayerItemDelta{
				Player: current.ref, Added: false,
				ItemID: id, ItemName: name, Count: before.count - now.count,
			})
		}
	}

	for _, id := range sortedItemIDs(remaining) {
		before := remaining[id]
		deltas = append(deltas, model.PlayerItemDelta{
			Player: current.ref, Added: false,
			ItemID: id, ItemName: before.name, Count: before.count,
		})
	}

	return deltas
}

func sortedItemIDs(items map[int]itemState) []int {
	ids := make([]int, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// abilityTracker follows the active player's ability ranks, the one part
// of the REST surface that is only published for the local player.
type abilityTracker struct {
	name   string
	levels map[event.AbilitySlot]int
}

func newAbilityTracker() *abilityTracker {
	return &abilityTracker{levels: make(map[event.AbilitySlot]int)}
}

func (t *abilityTracker) reset() {
	t.name = ""
	t.levels = make(map[event.AbilitySlot]int)
}

// apply diffs the active player's ability ranks and returns skill deltas
// in fixed Q, W, E, R order.
func (t *abilityTracker) apply(active activePlayer, registry *playerRegistry) []model.Delta {
	if active.SummonerName == "" {
		return nil
	}

	if t.name != active.SummonerName {
		// Active player changed (spectator swap or new match): rebase
		// without emitting deltas for the initial observation.
		t.name = active.SummonerName
		t.levels = make(map[event.AbilitySlot]int)
		for slot, entry := range abilityLevels(active) {
			t.levels[slot] = entry
		}
		return nil
	}

	ref := registry.resolve(active.SummonerName)
	var deltas []model.Delta
	levels := abilityLevels(active)
	for _, slot := range []event.AbilitySlot{event.AbilityQ, event.AbilityW, event.AbilityE, event.AbilityR} {
		level, ok := levels[slot]
		if !ok {
			continue
		}
		if level > t.levels[slot] {
			deltas = append(deltas, model.SkillLevelDelta{
				Player:  ref,
				Ability: slot,
				Level:   level,
			})
		}
		t.levels[slot] = level
	}

	return deltas
}

func abilityLevels(active activePlayer) map[event.AbilitySlot]int {
	levels := make(map[event.AbilitySlot]int, 4)
	for key, entry := range active.Abilities {
		switch key {
		case "Q":
			levels[event.AbilityQ] = entry.AbilityLevel
		case "W":
			levels[event.AbilityW] = entry.AbilityLevel
		case "E":
			levels[event.AbilityE] = entry.AbilityLevel
		case "R":
			levels[event.AbilityR] = entry.AbilityLevel
		}
	}
	return levels
}

// translateMatchEvents converts new entries from the recent-events list
// into raw deltas, resolving names through the registry.
func translateMatchEvents(events []rawMatchEvent, registry *playerRegistry) []model.Delta {
	var deltas []model.Delta

	for _, raw := range events {
		gameTime := secondsToMillis(raw.EventTime)
		switch raw.EventName {
		case "ChampionKill", "ChampionSpecialKill":
			combat := model.CombatDelta{GameTime: gameTime}
			if raw.KillerName != "" {
				ref := registry.resolve(raw.KillerName)
				combat.Killer = &ref
			}
			if raw.VictimName != "" {
				ref := registry.resolve(raw.VictimName)
				combat.Victim = &ref
			}
			for _, assister := range raw.Assisters {
				if assister == "" {
					continue
				}
				combat.Assisters = append(combat.Assisters, registry.resolve(assister))
			}
			deltas = append(deltas, combat)
		case "Respawn":
			if raw.SummonerName != "" {
				deltas = append(deltas, model.PlayerRespawnDelta{
					Player: registry.resolve(raw.SummonerName),
				})
			}
		case "LevelUp", "ItemPurchased", "ItemDestroyed", "ItemSold", "ItemUndo":
			// Covered by player diffing; translating these too would
			// only feed the dedup window.
		default:
			if isPhaseEvent(raw.EventName) {
				deltas = append(deltas, model.PhaseDelta{Phase: raw.EventName})
			}
		}
	}

	return deltas
}

func secondsToMillis(value float64) uint64 {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0
	}
	return uint64(math.Round(value * 1000))
}

// isPhaseEvent reports whether the named match event marks a phase or
// objective transition worth forwarding as a phase change.
func isPhaseEvent(name string) bool {
	switch name {
	case "GameStart", "MinionsSpawning", "FirstBrick", "FirstBlood",
		"TurretKilled", "InhibKilled", "InhibRespawningSoon", "InhibRespawned",
		"DragonKill", "HeraldKill", "BaronKill", "Ace", "GameEnd":
		return true
	default:
		return false
	}
}
