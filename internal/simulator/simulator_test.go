package simulator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/riftfeed/riftfeed/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", url, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestSimulatorEndpoints(t *testing.T) {
	Convey("Given a running simulator with a seeded match", t, func() {
		match := NewMatch()
		match.AddPlayer("Ana", "ORDER")
		match.AddPlayer("Eve", "CHAOS")
		match.SetActive("Ana")

		lockfile := filepath.Join(t.TempDir(), "lockfile")
		sim := New(match, WithLockfile(lockfile), WithPassword("hunter2"))
		So(sim.Start(), ShouldBeNil)
		defer sim.Stop()

		Convey("The lockfile carries the bound port and password", func() {
			contents, err := os.ReadFile(lockfile)
			So(err, ShouldBeNil)
			parts := strings.Split(string(contents), ":")
			So(parts, ShouldHaveLength, 5)
			So(parts[3], ShouldEqual, "hunter2")
			So(parts[4], ShouldEqual, "http")
		})

		Convey("The player list reflects match mutations", func() {
			match.LevelUp("Ana")
			match.EarnGold("Ana", 123)

			var players []map[string]any
			getJSON(t, sim.BaseURL()+"/liveclientdata/playerlist", &players)
			So(players, ShouldHaveLength, 2)
			So(players[0]["summonerName"], ShouldEqual, "Ana")
			So(players[0]["level"], ShouldEqual, 2)
			So(players[0]["currentGold"], ShouldEqual, 623)
		})

		Convey("Kills show up in both the scoreboard and the event list", func() {
			match.Kill("Ana", "Eve")

			var players []map[string]any
			getJSON(t, sim.BaseURL()+"/liveclientdata/playerlist", &players)
			scores := players[0]["scores"].(map[string]any)
			So(scores["kills"], ShouldEqual, 1)
			So(players[1]["isDead"], ShouldEqual, true)

			var events map[string][]map[string]any
			getJSON(t, sim.BaseURL()+"/liveclientdata/eventdata", &events)
			So(events["Events"], ShouldHaveLength, 1)
			So(events["Events"][0]["EventName"], ShouldEqual, "ChampionKill")
			So(events["Events"][0]["KillerName"], ShouldEqual, "Ana")
		})

		Convey("The gameflow endpoint tracks the phase", func() {
			var phase string
			getJSON(t, sim.BaseURL()+"/lol-gameflow/v1/gameflow-phase", &phase)
			So(phase, ShouldEqual, "Lobby")

			match.SetPhase("InProgress")
			getJSON(t, sim.BaseURL()+"/lol-gameflow/v1/gameflow-phase", &phase)
			So(phase, ShouldEqual, "InProgress")
		})
	})
}

func TestSimulatorSocket(t *testing.T) {
	Convey("Given a connected push socket", t, func() {
		match := NewMatch()
		sim := New(match)
		So(sim.Start(), ShouldBeNil)
		defer sim.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		wsURL := "ws://" + strings.TrimPrefix(sim.BaseURL(), "http://")
		conn, _, err := websocket.Dial(ctx, wsURL, nil)
		So(err, ShouldBeNil)
		defer conn.Close(websocket.StatusNormalClosure, "done")

		So(conn.Write(ctx, websocket.MessageText, []byte(`["subscribe","OnJsonApiEvent"]`)), ShouldBeNil)

		Convey("Phase changes arrive as gameflow frames", func() {
			// Give the server a beat to register the subscriber.
			time.Sleep(50 * time.Millisecond)
			match.SetPhase("ChampSelect")

			_, payload, err := conn.Read(ctx)
			So(err, ShouldBeNil)

			var frame []any
			So(json.Unmarshal(payload, &frame), ShouldBeNil)
			So(frame, ShouldHaveLength, 3)
			So(frame[1], ShouldEqual, "OnJsonApiEvent")
			body := frame[2].(map[string]any)
			So(body["uri"], ShouldEqual, "/lol-gameflow/v1/gameflow-phase")
			So(body["data"], ShouldEqual, "ChampSelect")
		})
	})
}

func TestScriptPlayback(t *testing.T) {
	Convey("Given the default script played at high speed", t, func() {
		match := NewMatch()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		So(Play(ctx, match, DefaultScript(), 200), ShouldBeNil)

		Convey("The match ends with the scripted history", func() {
			match.mu.Lock()
			defer match.mu.Unlock()
			So(match.phase, ShouldEqual, "EndOfGame")
			So(match.players, ShouldHaveLength, 4)
			So(match.players[0].Level, ShouldEqual, 2)
			So(match.players[0].Scores.Kills, ShouldEqual, 1)
			So(match.players[2].Scores.Deaths, ShouldEqual, 1)

			names := make([]string, 0, len(match.events))
			for _, ev := range match.events {
				names = append(names, ev.EventName)
			}
			So(names, ShouldContain, "GameStart")
			So(names, ShouldContain, "FirstBlood")
			So(names, ShouldContain, "GameEnd")
		})

		Convey("Cancelled playback stops early", func() {
			cancelled, stop := context.WithCancel(context.Background())
			stop()
			err := Play(cancelled, NewMatch(), DefaultScript(), 1)
			So(err, ShouldEqual, context.Canceled)
		})
	})
}
