package simulator

import (
	"context"
	"time"
)

// Step is one scripted beat: After elapses relative to the previous
// step, then Apply mutates the match.
type Step struct {
	After time.Duration
	Apply func(*Match)
}

// Play runs steps in order, scaling each gap by speed (2 halves the
// waits). It returns when the script finishes or ctx is cancelled.
func Play(ctx context.Context, match *Match, steps []Step, speed float64) error {
	if speed <= 0 {
		speed = 1
	}
	for _, step := range steps {
		wait := time.Duration(float64(step.After) / speed)
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		step.Apply(match)
	}
	return nil
}

// DefaultScript is a short two-versus-two skirmish touching every
// delta the daemon knows how to translate.
func DefaultScript() []Step {
	return []Step{
		{Apply: func(m *Match) {
			m.AddPlayer("Ana", "ORDER")
			m.AddPlayer("Bob", "ORDER")
			m.AddPlayer("Eve", "CHAOS")
			m.AddPlayer("Mal", "CHAOS")
			m.SetActive("Ana")
		}},
		{After: time.Second, Apply: func(m *Match) {
			m.SetPhase("ChampSelect")
		}},
		{After: 2 * time.Second, Apply: func(m *Match) {
			m.SetPhase("InProgress")
			m.Announce("GameStart")
		}},
		{After: 2 * time.Second, Apply: func(m *Match) {
			m.Announce("MinionsSpawning")
			m.EarnGold("Ana", 50)
			m.EarnGold("Eve", 50)
		}},
		{After: 3 * time.Second, Apply: func(m *Match) {
			m.LevelUp("Ana")
			m.RankAbility("Q")
		}},
		{After: 2 * time.Second, Apply: func(m *Match) {
			m.BuyItem("Ana", 1055, "Doran's Blade", 450)
		}},
		{After: 3 * time.Second, Apply: func(m *Match) {
			m.Kill("Ana", "Eve", "Bob")
			m.Announce("FirstBlood")
		}},
		{After: 4 * time.Second, Apply: func(m *Match) {
			m.Respawn("Eve")
			m.LevelUp("Eve")
		}},
		{After: 3 * time.Second, Apply: func(m *Match) {
			m.Announce("FirstBrick")
			m.EarnGold("Bob", 250)
		}},
		{After: 3 * time.Second, Apply: func(m *Match) {
			m.Kill("Mal", "Bob")
		}},
		{After: 4 * time.Second, Apply: func(m *Match) {
			m.Announce("DragonKill")
			m.Respawn("Bob")
		}},
		{After: 3 * time.Second, Apply: func(m *Match) {
			m.Announce("GameEnd")
			m.SetPhase("EndOfGame")
		}},
	}
}
