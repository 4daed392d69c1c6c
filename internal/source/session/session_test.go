package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/riftfeed/riftfeed/internal/domain/model"
	"github.com/riftfeed/riftfeed/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		os.Exit(1)
	}
	os.Exit(m.Run())
}

type captureSink struct {
	mu      sync.Mutex
	batches []model.Batch
}

func (s *captureSink) Enqueue(_ context.Context, b model.Batch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, b)
	return true
}

func (s *captureSink) statuses() []model.SourceStatusDelta {
	s.mu.Lock()
	defer s.mu.Unlock()
	var statuses []model.SourceStatusDelta
	for _, batch := range s.batches {
		for _, delta := range batch.Deltas {
			if status, ok := delta.(model.SourceStatusDelta); ok {
				statuses = append(statuses, status)
			}
		}
	}
	return statuses
}

func (s *captureSink) phases() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var phases []string
	for _, batch := range s.batches {
		for _, delta := range batch.Deltas {
			if phase, ok := delta.(model.PhaseDelta); ok {
				phases = append(phases, phase.Phase)
			}
		}
	}
	return phases
}

func TestParseLockfile(t *testing.T) {
	Convey("Given lockfile contents", t, func() {
		Convey("When the line is well formed", func() {
			creds, err := parseLockfile("LeagueClient:1234:5678:secret:HTTPS\n")

			Convey("Then port, password and protocol are extracted", func() {
				So(err, ShouldBeNil)
				So(creds.Port, ShouldEqual, 5678)
				So(creds.Password, ShouldEqual, "secret")
				So(creds.Protocol, ShouldEqual, "https")
			})

			Convey("Then the derived URLs use the secure schemes", func() {
				So(creds.WebsocketURL(), ShouldEqual, "wss://127.0.0.1:5678/")
				So(creds.BaseURL(), ShouldEqual, "https://127.0.0.1:5678")
				So(creds.BasicAuth(), ShouldStartWith, "Basic ")
			})
		})

		Convey("When the line has too few fields", func() {
			_, err := parseLockfile("LeagueClient:1234:5678")
			So(err, ShouldEqual, ErrLockfileCorrupt)
		})

		Convey("When the file is empty", func() {
			_, err := parseLockfile("  \n")
			So(err, ShouldEqual, ErrLockfileEmpty)
		})

		Convey("When the port is not numeric", func() {
			_, err := parseLockfile("LeagueClient:1234:nope:secret:https")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestLockfileCandidates(t *testing.T) {
	Convey("Given discovery path sources", t, func() {
		Convey("When a configured path and the env override are both set", func() {
			t.Setenv(lockfileEnvVar, "/env/lockfile")
			candidates := lockfileCandidates("/configured/lockfile")

			Convey("Then the configured path is probed first, the override second", func() {
				So(len(candidates), ShouldBeGreaterThanOrEqualTo, 2)
				So(candidates[0], ShouldEqual, "/configured/lockfile")
				So(candidates[1], ShouldEqual, "/env/lockfile")
			})
		})

		Convey("When config and override point at the same file", func() {
			t.Setenv(lockfileEnvVar, "/same/lockfile")
			candidates := lockfileCandidates("/same/lockfile")

			Convey("Then the duplicate is dropped", func() {
				count := 0
				for _, path := range candidates {
					if path == "/same/lockfile" {
						count++
					}
				}
				So(count, ShouldEqual, 1)
			})
		})
	})
}

func TestExtractPhase(t *testing.T) {
	Convey("Given the push message shapes the client emits", t, func() {
		Convey("When the payload is a bare topic triple", func() {
			phase, ok := parsePhaseMessage(
				[]byte(`["OnJsonApiEvent","/lol-gameflow/v1/gameflow-phase","Lobby"]`))
			So(ok, ShouldBeTrue)
			So(phase, ShouldEqual, "Lobby")
		})

		Convey("When the payload wraps a string data field", func() {
			phase, ok := parsePhaseMessage(
				[]byte(`[8,"OnJsonApiEvent",{"uri":"/lol-gameflow/v1/gameflow-phase","eventType":"Update","data":"ChampSelect"}]`))
			So(ok, ShouldBeTrue)
			So(phase, ShouldEqual, "ChampSelect")
		})

		Convey("When the payload wraps an object data field", func() {
			phase, ok := parsePhaseMessage(
				[]byte(`[8,"OnJsonApiEvent",{"uri":"/lol-gameflow/v1/gameflow-phase","eventType":"Update","data":{"phase":"ReadyCheck"}}]`))
			So(ok, ShouldBeTrue)
			So(phase, ShouldEqual, "ReadyCheck")
		})

		Convey("When the payload is for a different topic", func() {
			_, ok := parsePhaseMessage(
				[]byte(`[8,"OnJsonApiEvent",{"uri":"/lol-chat/v1/me","data":"online"}]`))
			So(ok, ShouldBeFalse)
		})

		Convey("When the payload is not JSON", func() {
			_, ok := parsePhaseMessage([]byte(`not json`))
			So(ok, ShouldBeFalse)
		})
	})
}

func TestBackoff(t *testing.T) {
	Convey("Given a backoff schedule without jitter", t, func() {
		b := newBackoff(100*time.Millisecond, time.Second)
		b.jitter = func(d time.Duration) time.Duration { return d }

		Convey("When attempts fail repeatedly", func() {
			delays := []time.Duration{b.next(), b.next(), b.next(), b.next(), b.next()}

			Convey("Then delays double up to the cap", func() {
				So(delays[0], ShouldEqual, 100*time.Millisecond)
				So(delays[1], ShouldEqual, 200*time.Millisecond)
				So(delays[2], ShouldEqual, 400*time.Millisecond)
				So(delays[3], ShouldEqual, 800*time.Millisecond)
				So(delays[4], ShouldEqual, time.Second)
			})
		})

		Convey("When a connection succeeds", func() {
			b.next()
			b.next()
			b.reset()

			Convey("Then the schedule restarts from the minimum", func() {
				So(b.next(), ShouldEqual, 100*time.Millisecond)
			})
		})
	})

	Convey("Given the default jitter", t, func() {
		b := newBackoff(100*time.Millisecond, time.Second)

		Convey("Then a delay never falls below its base", func() {
			delay := b.next()
			So(delay, ShouldBeGreaterThanOrEqualTo, 100*time.Millisecond)
			So(delay, ShouldBeLessThanOrEqualTo, 125*time.Millisecond)
		})
	})
}

func TestFetchCurrentPhase(t *testing.T) {
	Convey("Given a client REST surface", t, func() {
		var status int
		var body string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		}))
		defer server.Close()

		serverURL, err := url.Parse(server.URL)
		So(err, ShouldBeNil)
		creds := credsForServer(serverURL)

		Convey("When the endpoint returns a quoted phase", func() {
			status, body = http.StatusOK, `"Lobby"`
			phase, err := fetchCurrentPhase(context.Background(), server.Client(), creds)
			So(err, ShouldBeNil)
			So(phase, ShouldEqual, "Lobby")
		})

		Convey("When the endpoint is missing", func() {
			status, body = http.StatusNotFound, ""
			phase, err := fetchCurrentPhase(context.Background(), server.Client(), creds)
			So(err, ShouldBeNil)
			So(phase, ShouldBeEmpty)
		})

		Convey("When the endpoint errors", func() {
			status, body = http.StatusInternalServerError, ""
			_, err := fetchCurrentPhase(context.Background(), server.Client(), creds)
			So(err, ShouldNotBeNil)
		})
	})
}

func credsForServer(serverURL *url.URL) Credentials {
	var port uint16
	_, _ = fmt.Sscanf(serverURL.Port(), "%d", &port)
	return Credentials{Port: port, Password: "secret", Protocol: serverURL.Scheme}
}

func TestSourceLifecycle(t *testing.T) {
	Convey("Given a fake client socket and a discoverable lockfile", t, func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == gameflowURI {
				w.Write([]byte(`"Lobby"`))
				return
			}

			conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
				InsecureSkipVerify: true,
			})
			if err != nil {
				return
			}
			defer conn.Close(websocket.StatusNormalClosure, "done")

			ctx := r.Context()
			// Drain the two subscription frames.
			conn.Read(ctx)
			conn.Read(ctx)

			conn.Write(ctx, websocket.MessageText,
				[]byte(`[8,"OnJsonApiEvent",{"uri":"/lol-gameflow/v1/gameflow-phase","data":"ChampSelect"}]`))
			conn.Write(ctx, websocket.MessageText,
				[]byte(`[8,"OnJsonApiEvent",{"uri":"/lol-gameflow/v1/gameflow-phase","data":"ChampSelect"}]`))
			conn.Write(ctx, websocket.MessageText,
				[]byte(`[8,"OnJsonApiEvent",{"uri":"/lol-gameflow/v1/gameflow-phase","data":"InProgress"}]`))
			<-ctx.Done()
		}))
		defer server.Close()

		serverURL, err := url.Parse(server.URL)
		So(err, ShouldBeNil)

		lockfile := filepath.Join(t.TempDir(), "lockfile")
		contents := fmt.Sprintf("LeagueClient:1:%s:secret:http", serverURL.Port())
		So(os.WriteFile(lockfile, []byte(contents), 0o600), ShouldBeNil)

		sink := &captureSink{}
		source, err := NewSource(sink,
			WithLockfilePath(lockfile),
			WithHTTPClient(server.Client()),
			WithDiscoveryInterval(10*time.Millisecond),
		)
		So(err, ShouldBeNil)

		Convey("When the source runs against it", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			defer cancel()
			source.Run(ctx)

			Convey("Then phases arrive in order with repeats suppressed", func() {
				So(sink.phases(), ShouldResemble, []string{"Lobby", "ChampSelect", "InProgress"})
			})

			Convey("Then a connectivity marker was emitted", func() {
				var sawUp bool
				for _, batch := range sink.batches {
					for _, delta := range batch.Deltas {
						if status, ok := delta.(model.SourceStatusDelta); ok && status.Up {
							sawUp = true
						}
					}
				}
				So(sawUp, ShouldBeTrue)
			})
		})

		Convey("When constructed without a sink", func() {
			_, err := NewSource(nil)
			So(err, ShouldEqual, ErrNilSink)
		})
	})
}

func TestSourceReconnect(t *testing.T) {
	Convey("Given a client socket that dies after the first connection", t, func() {
		var connections int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// No REST phase here: only pushed transitions flow, keeping
			// the expected sequence independent of reconnect timing.
			if r.URL.Path == gameflowURI {
				w.WriteHeader(http.StatusNotFound)
				return
			}

			conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
				InsecureSkipVerify: true,
			})
			if err != nil {
				return
			}

			ctx := r.Context()
			conn.Read(ctx)
			conn.Read(ctx)

			if atomic.AddInt32(&connections, 1) == 1 {
				conn.Write(ctx, websocket.MessageText,
					[]byte(`[8,"OnJsonApiEvent",{"uri":"/lol-gameflow/v1/gameflow-phase","data":"ChampSelect"}]`))
				conn.Close(websocket.StatusInternalError, "simulated crash")
				return
			}

			defer conn.Close(websocket.StatusNormalClosure, "done")
			conn.Write(ctx, websocket.MessageText,
				[]byte(`[8,"OnJsonApiEvent",{"uri":"/lol-gameflow/v1/gameflow-phase","data":"InProgress"}]`))
			<-ctx.Done()
		}))
		defer server.Close()

		serverURL, err := url.Parse(server.URL)
		So(err, ShouldBeNil)

		lockfile := filepath.Join(t.TempDir(), "lockfile")
		contents := fmt.Sprintf("LeagueClient:1:%s:secret:http", serverURL.Port())
		So(os.WriteFile(lockfile, []byte(contents), 0o600), ShouldBeNil)

		sink := &captureSink{}
		source, err := NewSource(sink,
			WithLockfilePath(lockfile),
			WithHTTPClient(server.Client()),
			WithDiscoveryInterval(10*time.Millisecond),
			WithReconnectBackoff(10*time.Millisecond, 50*time.Millisecond),
		)
		So(err, ShouldBeNil)

		Convey("When the source runs through the crash", func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			source.Run(ctx)

			Convey("Then the stream resumes on a fresh connection", func() {
				So(atomic.LoadInt32(&connections), ShouldBeGreaterThanOrEqualTo, 2)
				So(sink.phases(), ShouldResemble, []string{"ChampSelect", "InProgress"})
			})

			Convey("Then the outage is bracketed by status markers", func() {
				statuses := sink.statuses()
				So(len(statuses), ShouldBeGreaterThanOrEqualTo, 3)
				So(statuses[0].Up, ShouldBeTrue)
				So(statuses[1].Up, ShouldBeFalse)
				So(statuses[1].Reason, ShouldNotBeEmpty)
				So(statuses[2].Up, ShouldBeTrue)
			})
		})
	})
}

func TestStatusEdges(t *testing.T) {
	Convey("Given a source with a captured sink", t, func() {
		sink := &captureSink{}
		source, err := NewSource(sink)
		So(err, ShouldBeNil)
		ctx := context.Background()

		Convey("When the connection flaps", func() {
			source.markUp(ctx)
			source.markDown(ctx, errors.New("socket closed"))
			source.markDown(ctx, errors.New("dial refused"))
			source.markDown(ctx, errors.New("dial refused"))
			source.markUp(ctx)

			Convey("Then only the edges emit markers", func() {
				statuses := sink.statuses()
				So(statuses, ShouldHaveLength, 3)
				So(statuses[0].Up, ShouldBeTrue)
				So(statuses[1].Up, ShouldBeFalse)
				So(statuses[1].Reason, ShouldEqual, "socket closed")
				So(statuses[2].Up, ShouldBeTrue)
			})
		})
	})
}
