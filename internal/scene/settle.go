package scene

import "time"

// Phase is a settle state machine phase.
type Phase int

// Settle phases.
const (
	// PhaseIdleOff: not active, no window open.
	PhaseIdleOff Phase = iota

	// PhaseOptimisticOn: an activation trigger fired; published true
	// while the settle window runs.
	PhaseOptimisticOn

	// PhaseSettling: the window elapsed, raw-active disagreed once and a
	// hysteresis retry is pending.
	PhaseSettling

	// PhaseSuppressedOff: a deactivation trigger fired; raw-active is
	// ignored while the suppression window runs.
	PhaseSuppressedOff

	// PhaseConfirmed: raw-active verified; steady-state tracking.
	PhaseConfirmed
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseOptimisticOn:
		return "optimistic_on"
	case PhaseSettling:
		return "settling"
	case PhaseSuppressedOff:
		return "suppressed_off"
	case PhaseConfirmed:
		return "confirmed"
	default:
		return "idle_off"
	}
}

// Settle retry behaviour. After the settle window ends, some devices emit
// a final burst of state updates; evaluating exactly at the window edge
// can produce a brief OFF blip. One short retry absorbs a single late
// out-of-order update without reintroducing arbitrary delay.
const (
	SettleRetryDelay = 750 * time.Millisecond
	maxSettleRetries = 1
)

// Timer is a deadline request produced by a settle transition. The engine
// schedules it and feeds the firing back with the same epoch; firings
// whose epoch no longer matches are stale and silently discarded.
type Timer struct {
	Epoch uint64
	Delay time.Duration
}

// valid reports whether the timer should actually be scheduled.
func (t Timer) valid() bool {
	return t.Epoch != 0
}

// SettleController converts raw-active transitions plus explicit
// activation/deactivation triggers into a debounced boolean, suppressing
// transient flaps. One controller per scene; mutated only from the
// engine's event loop.
//
// The externally published boolean is a pure function of the phase (and,
// while settling, of which trigger opened the window): true in
// Optimistic-On and Confirmed, true in Settling after an activation,
// false otherwise.
type SettleController struct {
	phase Phase

	// epoch is bumped on every state transition; timer firings carry the
	// epoch they were scheduled under and are discarded when it no longer
	// matches. This replaces explicit timer cancellation.
	epoch uint64

	// optimistic records which trigger opened the current window:
	// true after activation, false after deactivation.
	optimistic bool

	retries int
}

// NewSettleController creates a controller in Idle-Off.
func NewSettleController() *SettleController {
	return &SettleController{phase: PhaseIdleOff}
}

// Published returns the externally-observable boolean.
//
// Settling carries its trigger's origin: true while settling after an
// activation, false while settling after a deactivation. A settle window
// opened by turning the scene off must stay published-false — reporting
// true there would bounce the switch OFF→ON→OFF while entities wind
// down, which is exactly the flap the suppression window exists to
// absorb.
func (c *SettleController) Published() bool {
	switch c.phase {
	case PhaseOptimisticOn, PhaseConfirmed:
		return true
	case PhaseSettling:
		return c.optimistic
	default:
		return false
	}
}

// Phase returns the current phase.
func (c *SettleController) Phase() Phase {
	return c.phase
}

// TriggerActivate opens (or re-opens) the optimistic window. Valid from
// any state; a trigger arriving while a window is already open resets the
// deadline — latest trigger wins.
func (c *SettleController) TriggerActivate(settle time.Duration) Timer {
	c.epoch++
	c.phase = PhaseOptimisticOn
	c.optimistic = true
	c.retries = maxSettleRetries
	return Timer{Epoch: c.epoch, Delay: settle}
}

// TriggerDeactivate opens (or re-opens) the suppression window. Valid
// from any state.
func (c *SettleController) TriggerDeactivate(settle time.Duration) Timer {
	c.epoch++
	c.phase = PhaseSuppressedOff
	c.optimistic = false
	c.retries = maxSettleRetries
	return Timer{Epoch: c.epoch, Delay: settle}
}

// DeadlineElapsed processes a timer firing scheduled under the given
// epoch against the current raw-active value.
//
// Returns a retry timer to schedule (zero when none) and whether the
// firing was current. Stale firings — superseded by a later trigger — are
// reported stale and cause no transition.
func (c *SettleController) DeadlineElapsed(epoch uint64, rawActive bool) (retry Timer, ok bool) {
	if epoch != c.epoch {
		return Timer{}, false
	}

	switch c.phase {
	case PhaseOptimisticOn, PhaseSuppressedOff:
		c.epoch++
		c.phase = PhaseSettling
	case PhaseSettling:
		// Hysteresis retry firing; evaluate below.
	default:
		return Timer{}, false
	}

	if rawActive {
		c.epoch++
		c.phase = PhaseConfirmed
		return Timer{}, true
	}

	if c.retries > 0 {
		// Stay in Settling; absorb one late straggler event.
		c.retries--
		return Timer{Epoch: c.epoch, Delay: SettleRetryDelay}, true
	}

	c.epoch++
	c.phase = PhaseIdleOff
	return Timer{}, true
}

// RawActiveChanged feeds a raw-active transition into the controller.
// Only the steady states react: Confirmed drops to Idle-Off the moment
// raw-active is lost (no optimism once confirmed), and Idle-Off rises to
// Confirmed when the scene starts matching without any trigger. Open
// windows ignore raw transitions until their deadline evaluates them.
//
// Returns whether the published boolean changed.
func (c *SettleController) RawActiveChanged(rawActive bool) bool {
	switch c.phase {
	case PhaseConfirmed:
		if !rawActive {
			c.epoch++
			c.phase = PhaseIdleOff
			return true
		}
	case PhaseIdleOff:
		if rawActive {
			c.epoch++
			c.phase = PhaseConfirmed
			return true
		}
	}
	return false
}

// Reset re-initialises the controller after a scene (re)load. Reload does
// not fabricate activation: the controller lands in Confirmed only when
// raw-active is immediately true, otherwise Idle-Off.
func (c *SettleController) Reset(rawActive bool) {
	c.epoch++
	c.retries = 0
	if rawActive {
		c.phase = PhaseConfirmed
	} else {
		c.phase = PhaseIdleOff
	}
}
