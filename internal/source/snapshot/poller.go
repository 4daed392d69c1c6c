// Package snapshot polls the live client REST surface on an adaptive
// cadence, diffs consecutive snapshots into raw deltas, and feeds them
// to the fan-in queue.
package snapshot

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/riftfeed/riftfeed/internal/domain/model"
	"github.com/riftfeed/riftfeed/pkg/logger"
	"github.com/riftfeed/riftfeed/pkg/metrics"
)

// REST endpoints of the live client data surface.
const (
	endpointActivePlayer = "/liveclientdata/activeplayer"
	endpointPlayerList   = "/liveclientdata/playerlist"
	endpointEventData    = "/liveclientdata/eventdata"
)

// freshMatchWindow is how early into a match a zero event id is taken as
// proof of a restart rather than a stale feed.
const freshMatchWindow = 5 * time.Second

// Sink receives the batches produced by the poller.
type Sink interface {
	Enqueue(ctx context.Context, b model.Batch) bool
}

// Poller drives the snapshot source: one goroutine fetching the three
// REST endpoints, short-circuiting on unchanged payload digests, and
// diffing what changed into raw deltas.
type Poller struct {
	sink   Sink
	log    logger.Logger
	client *http.Client

	baseURL           string
	requestTimeout    time.Duration
	heartbeatInterval time.Duration
	errorBackoff      time.Duration
	errorBackoffMax   time.Duration

	regime *regimeState

	mu           sync.Mutex
	paused       bool
	up           bool
	digests      map[string]uint64
	watermark    uint64
	watermarkSet bool
	pollSeq      uint64

	registry  *playerRegistry
	abilities *abilityTracker

	wake chan struct{}
	now  func() time.Time
}

// New returns a poller feeding sink. Unset options fall back to the
// local live client defaults.
func New(sink Sink, opts ...Option) (*Poller, error) {
	if sink == nil {
		return nil, ErrNilSink
	}

	p := &Poller{
		sink:              sink,
		log:               logger.Named("snapshot"),
		baseURL:           defaultBaseURL,
		requestTimeout:    defaultRequestTimeout,
		heartbeatInterval: defaultHeartbeatInterval,
		errorBackoff:      defaultErrorBackoff,
		errorBackoffMax:   defaultErrorBackoffMax,
		digests:           make(map[string]uint64, 3),
		registry:          newPlayerRegistry(),
		abilities:         newAbilityTracker(),
		wake:              make(chan struct{}, 1),
		now:               time.Now,
	}

	var cfg pollerConfig
	cfg.intervals = Intervals{
		Combat: defaultCombatInterval,
		Normal: defaultNormalInterval,
		Idle:   defaultIdleInterval,
	}
	cfg.combatCooldown = defaultCombatCooldown
	cfg.idleCooldown = defaultIdleCooldown
	for _, opt := range opts {
		opt(p, &cfg)
	}

	p.regime = newRegimeState(cfg.intervals, cfg.combatCooldown, cfg.idleCooldown, p.now)

	if p.client == nil {
		// The live client serves a self-signed certificate on loopback.
		p.client = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
	}

	return p, nil
}

// Run polls until ctx is cancelled. It owns a heartbeat goroutine whose
// cadence is fixed and independent of the adaptive poll interval.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info("snapshot poller starting",
		logger.String("base_url", p.baseURL),
		logger.Duration("heartbeat", p.heartbeatInterval))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.runHeartbeat(ctx)
	}()

	backoff := p.errorBackoff
	for {
		if p.Paused() {
			select {
			case <-ctx.Done():
				wg.Wait()
				return
			case <-p.wake:
				continue
			}
		}

		deltas, err := p.pollOnce(ctx)
		if err != nil {
			metrics.RecordPollError()
			p.regime.onError()
			// Endpoints processed before the failure already committed
			// their digests; their deltas must ship now or never.
			if len(deltas) > 0 {
				p.enqueue(ctx, deltas)
			}
			p.markDown(ctx, err)
			p.log.Debug("poll cycle failed",
				logger.Error(err),
				logger.Duration("backoff", backoff))
			if !p.sleep(ctx, backoff) {
				wg.Wait()
				return
			}
			backoff = min(backoff*2, p.errorBackoffMax)
			continue
		}
		backoff = p.errorBackoff
		p.markUp(ctx)
		metrics.RecordPoll()

		if len(deltas) > 0 {
			p.enqueue(ctx, deltas)
		}

		interval := p.regime.onPoll(len(deltas) > 0)
		metrics.UpdatePollInterval(float64(interval.Milliseconds()))
		if !p.sleep(ctx, interval) {
			wg.Wait()
			return
		}
	}
}

// pollOnce fetches the three endpoints and diffs what changed. Each
// endpoint commits its digest and registry state independently, so a
// failure partway through a cycle never discards deltas an earlier
// endpoint already produced: those are returned alongside the error.
// Malformed payloads are logged and treated as no change for the cycle;
// only transport failures propagate as errors.
func (p *Poller) pollOnce(ctx context.Context) ([]model.Delta, error) {
	var deltas []model.Delta

	for _, endpoint := range [...]string{endpointPlayerList, endpointActivePlayer, endpointEventData} {
		body, digest, changed, err := p.fetch(ctx, endpoint)
		if err != nil {
			return deltas, err
		}
		if !changed {
			continue
		}

		var produced []model.Delta
		switch endpoint {
		case endpointPlayerList:
			entries, perr := parsePlayerList(body)
			if perr != nil {
				p.noteMalformed(endpoint, perr)
				continue
			}
			produced = p.registry.apply(entries)
		case endpointActivePlayer:
			active, perr := parseActivePlayer(body)
			if perr != nil {
				p.noteMalformed(endpoint, perr)
				continue
			}
			produced = p.abilities.apply(active, p.registry)
		case endpointEventData:
			events, perr := parseEventList(body)
			if perr != nil {
				p.noteMalformed(endpoint, perr)
				continue
			}
			produced = translateMatchEvents(p.advanceWatermark(events), p.registry)
		}

		p.commitDigest(endpoint, digest)
		deltas = append(deltas, produced...)
	}

	return deltas, nil
}

// fetch GETs one endpoint and reports whether its payload changed since
// the last committed digest. The digest is returned, not recorded: the
// caller commits it only once the payload has been processed.
func (p *Poller) fetch(ctx context.Context, endpoint string) ([]byte, uint64, bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, p.baseURL+endpoint, nil)
	if err != nil {
		return nil, 0, false, fmt.Errorf("build request for %s: %w", endpoint, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, false, fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, false, fmt.Errorf("fetch %s: %w (%d)", endpoint, ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, false, fmt.Errorf("read %s body: %w", endpoint, err)
	}

	digest := xxhash.Sum64(body)
	p.mu.Lock()
	unchanged := p.digests[endpoint] == digest
	p.mu.Unlock()

	if unchanged {
		metrics.RecordPollShortCircuit()
		return nil, 0, false, nil
	}
	return body, digest, true, nil
}

func (p *Poller) commitDigest(endpoint string, digest uint64) {
	p.mu.Lock()
	p.digests[endpoint] = digest
	p.mu.Unlock()
}

// noteMalformed records a payload that fetched fine but did not parse.
// Its digest stays uncommitted so the next cycle re-examines it. The
// client is still reachable, so source health is untouched.
func (p *Poller) noteMalformed(endpoint string, err error) {
	p.log.Warn("malformed payload, skipping endpoint this cycle",
		logger.String("endpoint", endpoint),
		logger.Error(err))
}

// advanceWatermark filters the recent-events list down to the entries not
// yet processed, and detects a match restart: the id sequence restarting
// at zero within the first seconds of game time.
func (p *Poller) advanceWatermark(events []rawMatchEvent) []rawMatchEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.watermarkSet && p.watermark > 0 && len(events) > 0 {
		first := events[0]
		if first.EventID == 0 && first.EventTime < freshMatchWindow.Seconds() {
			p.log.Info("event id sequence restarted, assuming new match")
			p.watermark = 0
			p.watermarkSet = false
			p.registry.reset()
			p.abilities.reset()
		}
	}

	var fresh []rawMatchEvent
	for _, raw := range events {
		if !p.watermarkSet || raw.EventID > p.watermark {
			fresh = append(fresh, raw)
			p.watermark = raw.EventID
			p.watermarkSet = true
		}
	}

	return fresh
}

// runHeartbeat emits a liveness tick at a fixed cadence.
func (p *Poller) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()

	var count uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count++
			p.enqueue(ctx, []model.Delta{model.HeartbeatDelta{Count: count}})
		}
	}
}

func (p *Poller) enqueue(ctx context.Context, deltas []model.Delta) {
	p.mu.Lock()
	p.pollSeq++
	seq := p.pollSeq
	p.mu.Unlock()

	batch := model.Batch{
		Source:     model.SourceSnapshot,
		PollSeq:    seq,
		CapturedAt: p.now(),
		Deltas:     deltas,
	}
	if !p.sink.Enqueue(ctx, batch) {
		p.log.Warn("fan-in queue rejected snapshot batch",
			logger.Int("deltas", len(deltas)))
	}
}

// markDown emits a single unavailability marker on the up-to-down edge.
func (p *Poller) markDown(ctx context.Context, cause error) {
	p.mu.Lock()
	wasUp := p.up
	p.up = false
	p.mu.Unlock()
	if !wasUp {
		return
	}
	p.log.Warn("live client unreachable", logger.Error(cause))
	p.enqueue(ctx, []model.Delta{model.SourceStatusDelta{Up: false, Reason: cause.Error()}})
}

// markUp emits a single recovery marker on the down-to-up edge.
func (p *Poller) markUp(ctx context.Context) {
	p.mu.Lock()
	wasUp := p.up
	p.up = true
	p.mu.Unlock()
	if wasUp {
		return
	}
	p.log.Info("live client reachable")
	p.enqueue(ctx, []model.Delta{model.SourceStatusDelta{Up: true}})
}

// sleep waits for d, a control wake-up, or cancellation. It returns
// false only when ctx is done.
func (p *Poller) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-p.wake:
		return true
	case <-timer.C:
		return true
	}
}

// Pause suspends polling. The heartbeat keeps ticking.
func (p *Poller) Pause() {
	p.mu.Lock()
	already := p.paused
	p.paused = true
	p.mu.Unlock()
	if !already {
		p.log.Info("polling paused")
	}
}

// Resume restarts polling after a Pause.
func (p *Poller) Resume() {
	p.mu.Lock()
	wasPaused := p.paused
	p.paused = false
	p.mu.Unlock()
	if wasPaused {
		p.log.Info("polling resumed")
		p.signalWake()
	}
}

// Paused reports whether polling is suspended.
func (p *Poller) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// SetInterval overrides one regime's poll interval at runtime and wakes
// the poll loop so the new cadence applies immediately.
func (p *Poller) SetInterval(regime Regime, d time.Duration) error {
	if d <= 0 {
		return ErrInvalidInterval
	}
	p.regime.setInterval(regime, d)
	p.log.Info("poll interval updated",
		logger.String("regime", string(regime)),
		logger.Duration("interval", d))
	p.signalWake()
	return nil
}

// CurrentRegime returns the active polling regime.
func (p *Poller) CurrentRegime() Regime {
	return p.regime.current()
}

func (p *Poller) signalWake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}
