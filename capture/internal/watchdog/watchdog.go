// Package watchdog tracks capture health and decides when a session
// must be reopened and when recovery should stop for good.
//
// The counters have deliberate scopes: the empty-read streak resets on
// every delivered frame and on every reopen attempt, while the
// reconnect count is a lifetime budget for the whole run. The budget
// never resets, which is what stops a flapping device from looping
// open/fail forever across an otherwise long session.
package watchdog

// State is the watchdog's position in its recovery cycle.
type State int

const (
	// Healthy means the last read delivered a frame.
	Healthy State = iota
	// Degraded means reads are coming up empty but the streak is still
	// below the reopen threshold.
	Degraded
	// ReopenPending means the streak hit the threshold; the session
	// must be closed and reopened before further reads.
	ReopenPending
	// Reconnecting means the last reopen attempt failed and another is
	// allowed.
	Reconnecting
	// Exhausted is terminal: the reconnect budget is spent.
	Exhausted
)

func (s State) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case ReopenPending:
		return "reopen-pending"
	case Reconnecting:
		return "reconnecting"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Action tells the supervisor what to do next.
type Action int

const (
	// Continue polling (or, after a successful reopen, resume polling).
	Continue Action = iota
	// Reopen the session against the same device descriptor.
	Reopen
	// GiveUp permanently; no further reads or reopens.
	GiveUp
)

// Config bounds the recovery behaviour.
type Config struct {
	// MaxEmpty is how many consecutive empty or failed reads are
	// tolerated before a reopen is forced.
	MaxEmpty int
	// MaxReconnects is the lifetime budget of failed reopen attempts.
	MaxReconnects int
}

// DefaultConfig matches the tool's long-standing defaults: roughly a
// second of dead polls before reopening, five failed reopens total.
func DefaultConfig() Config {
	return Config{MaxEmpty: 60, MaxReconnects: 5}
}

// Watchdog is not safe for concurrent use; it is fed from the single
// supervision loop.
type Watchdog struct {
	cfg              Config
	state            State
	consecutiveEmpty int
	reconnects       int
}

func New(cfg Config) *Watchdog {
	def := DefaultConfig()
	if cfg.MaxEmpty <= 0 {
		cfg.MaxEmpty = def.MaxEmpty
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = def.MaxReconnects
	}
	return &Watchdog{cfg: cfg, state: Healthy}
}

// ObserveFrame records a successful read: the empty streak ends and the
// watchdog returns to Healthy.
func (w *Watchdog) ObserveFrame() {
	if w.state == Exhausted {
		return
	}
	w.consecutiveEmpty = 0
	w.state = Healthy
}

// ObserveEmpty records an empty or failed read. Fatal-looking read
// errors are fed through here too: some backends report spurious
// handle errors that clear on their own, so they count toward the
// reopen threshold instead of terminating immediately.
func (w *Watchdog) ObserveEmpty() Action {
	if w.state == Exhausted {
		return GiveUp
	}
	w.consecutiveEmpty++
	if w.consecutiveEmpty >= w.cfg.MaxEmpty {
		w.state = ReopenPending
		return Reopen
	}
	w.state = Degraded
	return Continue
}

// ObserveReopen records the outcome of a reopen attempt. The empty
// streak resets regardless of outcome. A failed attempt consumes one
// unit of the lifetime reconnect budget; spending the last unit is
// terminal.
func (w *Watchdog) ObserveReopen(ok bool) Action {
	if w.state == Exhausted {
		return GiveUp
	}
	w.consecutiveEmpty = 0
	if ok {
		w.state = Healthy
		return Continue
	}
	w.reconnects++
	if w.reconnects >= w.cfg.MaxReconnects {
		w.state = Exhausted
		return GiveUp
	}
	w.state = Reconnecting
	return Reopen
}

func (w *Watchdog) State() State { return w.state }

// ConsecutiveEmpty returns the current empty-read streak.
func (w *Watchdog) ConsecutiveEmpty() int { return w.consecutiveEmpty }

// Reconnects returns how much of the lifetime budget has been spent.
func (w *Watchdog) Reconnects() int { return w.reconnects }
