// Package simulator is a scripted stand-in for the live client: it
// serves the polled REST endpoints, the gameflow phase endpoint, and a
// push socket broadcasting phase transitions. It exists so the daemon
// can be exercised end to end without a match running.
package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/riftfeed/riftfeed/pkg/logger"
)

// Wire shapes matching the live client surface.

type player struct {
	SummonerName string       `json:"summonerName"`
	Team         string       `json:"team"`
	Level        int          `json:"level"`
	CurrentGold  float64      `json:"currentGold"`
	IsDead       bool         `json:"isDead"`
	Items        []item       `json:"items"`
	Scores       playerScores `json:"scores"`
}

type item struct {
	ItemID      int    `json:"itemID"`
	DisplayName string `json:"displayName"`
}

type playerScores struct {
	Kills   int `json:"kills"`
	Deaths  int `json:"deaths"`
	Assists int `json:"assists"`
}

type ability struct {
	AbilityLevel int `json:"abilityLevel"`
}

type matchEvent struct {
	EventID      uint64   `json:"EventID"`
	EventName    string   `json:"EventName"`
	EventTime    float64  `json:"EventTime"`
	KillerName   string   `json:"KillerName,omitempty"`
	VictimName   string   `json:"VictimName,omitempty"`
	Assisters    []string `json:"Assisters,omitempty"`
	SummonerName string   `json:"SummonerName,omitempty"`
}

// Match is the mutable simulated state. Steps mutate it through the
// helpers below; the HTTP handlers only read it.
type Match struct {
	mu        sync.Mutex
	players   []player
	active    string
	abilities map[string]ability
	events    []matchEvent
	nextEvent uint64
	phase     string
	started   time.Time

	phaseSubs map[chan string]struct{}
}

// NewMatch returns an empty match in the Lobby phase.
func NewMatch() *Match {
	return &Match{
		abilities: map[string]ability{"Q": {}, "W": {}, "E": {}, "R": {}},
		phase:     "Lobby",
		started:   time.Now(),
		phaseSubs: make(map[chan string]struct{}),
	}
}

// AddPlayer seats a participant on the given team.
func (m *Match) AddPlayer(name, team string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players = append(m.players, player{
		SummonerName: name,
		Team:         team,
		Level:        1,
		CurrentGold:  500,
	})
}

// SetActive marks the local player.
func (m *Match) SetActive(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = name
}

func (m *Match) find(name string) *player {
	for i := range m.players {
		if m.players[i].SummonerName == name {
			return &m.players[i]
		}
	}
	return nil
}

// LevelUp raises a player's champion level.
func (m *Match) LevelUp(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.find(name); p != nil {
		p.Level++
	}
}

// RankAbility raises one of the active player's ability ranks.
func (m *Match) RankAbility(slot string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := m.abilities[slot]
	entry.AbilityLevel++
	m.abilities[slot] = entry
}

// EarnGold credits a player.
func (m *Match) EarnGold(name string, amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.find(name); p != nil {
		p.CurrentGold += amount
	}
}

// BuyItem moves gold into an inventory slot.
func (m *Match) BuyItem(name string, id int, display string, cost float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.find(name); p != nil {
		p.Items = append(p.Items, item{ItemID: id, DisplayName: display})
		p.CurrentGold -= cost
	}
}

// Kill records a takedown: scoreboard movement plus a recent-events
// entry, the same double bookkeeping the real client does.
func (m *Match) Kill(killer, victim string, assisters ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p := m.find(killer); p != nil {
		p.Scores.Kills++
		p.CurrentGold += 300
	}
	if p := m.find(victim); p != nil {
		p.Scores.Deaths++
		p.IsDead = true
	}
	for _, assister := range assisters {
		if p := m.find(assister); p != nil {
			p.Scores.Assists++
		}
	}

	m.appendEvent(matchEvent{
		EventName:  "ChampionKill",
		KillerName: killer,
		VictimName: victim,
		Assisters:  assisters,
	})
}

// Respawn brings a dead player back.
func (m *Match) Respawn(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.find(name); p != nil {
		p.IsDead = false
	}
	m.appendEvent(matchEvent{EventName: "Respawn", SummonerName: name})
}

// Announce appends a named match event (GameStart, DragonKill, ...).
func (m *Match) Announce(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendEvent(matchEvent{EventName: name})
}

// appendEvent must hold m.mu.
func (m *Match) appendEvent(ev matchEvent) {
	ev.EventID = m.nextEvent
	ev.EventTime = time.Since(m.started).Seconds()
	m.nextEvent++
	m.events = append(m.events, ev)
}

// Reset clears the match back to an empty lobby. The event counter
// restarts at zero, which is what triggers a new-match replay in
// consumers watching the event feed.
func (m *Match) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players = nil
	m.active = ""
	m.abilities = map[string]ability{"Q": {}, "W": {}, "E": {}, "R": {}}
	m.events = nil
	m.nextEvent = 0
	m.phase = "Lobby"
	m.started = time.Now()
}

// SetPhase moves the gameflow phase and notifies socket subscribers.
func (m *Match) SetPhase(phase string) {
	m.mu.Lock()
	m.phase = phase
	subs := make([]chan string, 0, len(m.phaseSubs))
	for ch := range m.phaseSubs {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- phase:
		default:
		}
	}
}

func (m *Match) subscribePhases() chan string {
	ch := make(chan string, 8)
	m.mu.Lock()
	m.phaseSubs[ch] = struct{}{}
	m.mu.Unlock()
	return ch
}

func (m *Match) unsubscribePhases(ch chan string) {
	m.mu.Lock()
	delete(m.phaseSubs, ch)
	m.mu.Unlock()
}

// Simulator serves a Match over the live client's wire surface.
type Simulator struct {
	match *Match
	log   logger.Logger

	addr     string
	lockfile string
	password string

	server   *http.Server
	listener net.Listener
}

// New returns a simulator for match.
func New(match *Match, opts ...Option) *Simulator {
	s := &Simulator{
		match:    match,
		log:      logger.Named("simulator"),
		addr:     "127.0.0.1:0",
		password: "simulated",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the listener, optionally writes the lockfile, and serves
// until Stop.
func (s *Simulator) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("bind simulator listener: %w", err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/liveclientdata/playerlist", s.handlePlayerList)
	mux.HandleFunc("/liveclientdata/activeplayer", s.handleActivePlayer)
	mux.HandleFunc("/liveclientdata/eventdata", s.handleEventData)
	mux.HandleFunc("/lol-gameflow/v1/gameflow-phase", s.handlePhase)
	mux.HandleFunc("/", s.handleSocket)

	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	if s.lockfile != "" {
		if err := s.writeLockfile(); err != nil {
			listener.Close()
			return err
		}
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("simulator server failed", logger.Error(err))
		}
	}()

	s.log.Info("simulator listening", logger.String("url", s.BaseURL()))
	return nil
}

// Stop shuts the simulator down and removes its lockfile.
func (s *Simulator) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
	}
	if s.lockfile != "" {
		_ = os.Remove(s.lockfile)
	}
}

// BaseURL returns the bound address as a browsable URL.
func (s *Simulator) BaseURL() string {
	if s.listener == nil {
		return ""
	}
	return "http://" + s.listener.Addr().String()
}

// Port returns the bound TCP port.
func (s *Simulator) Port() int {
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// writeLockfile publishes discovery material in the client's format.
func (s *Simulator) writeLockfile() error {
	contents := fmt.Sprintf("MatchSim:%d:%d:%s:http", os.Getpid(), s.Port(), s.password)
	if err := os.WriteFile(s.lockfile, []byte(contents), 0o600); err != nil {
		return fmt.Errorf("write lockfile: %w", err)
	}
	s.log.Info("lockfile written", logger.String("path", s.lockfile))
	return nil
}

func (s *Simulator) handlePlayerList(w http.ResponseWriter, _ *http.Request) {
	s.match.mu.Lock()
	defer s.match.mu.Unlock()
	writeJSON(w, s.match.players)
}

func (s *Simulator) handleActivePlayer(w http.ResponseWriter, _ *http.Request) {
	s.match.mu.Lock()
	defer s.match.mu.Unlock()
	writeJSON(w, map[string]any{
		"summonerName": s.match.active,
		"abilities":    s.match.abilities,
	})
}

func (s *Simulator) handleEventData(w http.ResponseWriter, _ *http.Request) {
	s.match.mu.Lock()
	defer s.match.mu.Unlock()
	writeJSON(w, map[string]any{"Events": s.match.events})
}

func (s *Simulator) handlePhase(w http.ResponseWriter, _ *http.Request) {
	s.match.mu.Lock()
	defer s.match.mu.Unlock()
	writeJSON(w, s.match.phase)
}

// handleSocket serves the push surface: it accepts a websocket, drains
// subscription frames, and forwards phase transitions in the client's
// envelope shape.
func (s *Simulator) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "simulator stopping")

	phases := s.match.subscribePhases()
	defer s.match.unsubscribePhases(phases)

	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case phase := <-phases:
			frame := fmt.Sprintf(
				`[8,"OnJsonApiEvent",{"uri":"/lol-gameflow/v1/gameflow-phase","eventType":"Update","data":%q}]`,
				phase)
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, []byte(frame))
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
