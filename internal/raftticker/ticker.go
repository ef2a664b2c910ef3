// Package raftticker implements the randomized election/heartbeat
// timer from spec.md §4.G: an explicit decrementing counter rather than
// a free-running time.Timer, so a single-threaded node can drive it
// from its own tick loop without a second goroutine's callback racing
// term/vote state.
//
// Adapted from the randomized-timeout helpers in the pack's
// bernerdschaefer-raft server.go (ElectionTimeout/BroadcastInterval),
// restated as the stateful countdown spec.md actually specifies.
package raftticker

import "math/rand"

// Event is what firing the ticker means to interpret, role-dependent.
type Event int

const (
	// NoEvent: the tick decremented the counter but it has not
	// reached zero.
	NoEvent Event = iota
	// Expired: the counter reached zero this tick.
	Expired
)

// Ticker is a randomized countdown timer. Non-leader resets draw
// uniformly from [TickMin, TickMax]; leader resets use
// max(1, TickMin-1) so heartbeats precede any follower timeout.
type Ticker struct {
	TickMin int
	TickMax int

	remaining int
	rng       *rand.Rand
}

// New constructs a Ticker with the given bounds (in tick units) and
// resets it for a non-leader (follower/candidate) start.
func New(tickMin, tickMax int, rng *rand.Rand) *Ticker {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	t := &Ticker{TickMin: tickMin, TickMax: tickMax, rng: rng}
	t.Reset(false)
	return t
}

// Reset draws a new countdown. asLeader selects the heartbeat-interval
// branch; otherwise a jittered election timeout is drawn.
func (t *Ticker) Reset(asLeader bool) {
	if asLeader {
		t.remaining = maxInt(1, t.TickMin-1)
		return
	}
	span := t.TickMax - t.TickMin
	if span <= 0 {
		t.remaining = t.TickMin
		return
	}
	t.remaining = t.TickMin + t.rng.Intn(span+1)
}

// Tick decrements the counter by one and reports whether it expired.
func (t *Ticker) Tick() Event {
	if t.remaining > 0 {
		t.remaining--
	}
	if t.remaining == 0 {
		return Expired
	}
	return NoEvent
}

// Remaining exposes the current countdown value, for tests and
// diagnostics.
func (t *Ticker) Remaining() int { return t.remaining }

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
