package snapshot

import (
	"sync"
	"time"
)

// Regime names one of the adaptive polling cadences.
type Regime string

// Polling regimes, fastest first.
const (
	RegimeCombat Regime = "combat"
	RegimeNormal Regime = "normal"
	RegimeIdle   Regime = "idle"
)

// ParseRegime returns the Regime matching s.
func ParseRegime(s string) (Regime, bool) {
	switch Regime(s) {
	case RegimeCombat, RegimeNormal, RegimeIdle:
		return Regime(s), true
	default:
		return "", false
	}
}

// Intervals holds the poll interval for each regime.
type Intervals struct {
	Combat time.Duration
	Normal time.Duration
	Idle   time.Duration
}

// regimeState selects the active polling interval from recent activity.
// Activity tightens the interval immediately; the interval widens only
// after a cooldown of sustained inactivity, to avoid oscillation.
type regimeState struct {
	mu           sync.Mutex
	level        Regime
	lastActivity time.Time
	intervals    Intervals

	combatCooldown time.Duration
	idleCooldown   time.Duration

	now func() time.Time
}

func newRegimeState(intervals Intervals, combatCooldown, idleCooldown time.Duration, now func() time.Time) *regimeState {
	if now == nil {
		now = time.Now
	}
	return &regimeState{
		level:          RegimeIdle,
		lastActivity:   now(),
		intervals:      intervals,
		combatCooldown: combatCooldown,
		idleCooldown:   idleCooldown,
		now:            now,
	}
}

// onPoll records the outcome of one poll cycle and returns the interval
// to sleep before the next one.
func (r *regimeState) onPoll(hadActivity bool) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	if hadActivity {
		r.level = RegimeCombat
		r.lastActivity = now
	} else {
		switch r.level {
		case RegimeCombat:
			if now.Sub(r.lastActivity) >= r.combatCooldown {
				r.level = RegimeNormal
				r.lastActivity = now
			}
		case RegimeNormal:
			if now.Sub(r.lastActivity) >= r.idleCooldown {
				r.level = RegimeIdle
				r.lastActivity = now
			}
		case RegimeIdle:
		}
	}

	return r.interval(r.level)
}

// onError drops straight to the idle regime.
func (r *regimeState) onError() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.level = RegimeIdle
	r.lastActivity = r.now()
}

// current returns the active regime.
func (r *regimeState) current() Regime {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.level
}

// setInterval overrides one regime's interval at runtime.
func (r *regimeState) setInterval(regime Regime, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch regime {
	case RegimeCombat:
		r.intervals.Combat = d
	case RegimeNormal:
		r.intervals.Normal = d
	case RegimeIdle:
		r.intervals.Idle = d
	}
}

// interval maps a regime to its configured duration. Must hold r.mu.
func (r *regimeState) interval(regime Regime) time.Duration {
	switch regime {
	case RegimeCombat:
		return r.intervals.Combat
	case RegimeNormal:
		return r.intervals.Normal
	default:
		return r.intervals.Idle
	}
}
