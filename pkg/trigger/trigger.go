package trigger

import (
	"math"
	"time"

	"github.com/menta2k/skin-analyzer/pkg/types"
)

// State of the capture trigger
type State int

const (
	Idle State = iota
	Accumulating
	Fired
)

// String returns the state name
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Accumulating:
		return "accumulating"
	case Fired:
		return "fired"
	default:
		return "unknown"
	}
}

// Default dwell timing: two seconds of good frames at one tick per second.
const (
	DefaultDwell    = 2 * time.Second
	DefaultInterval = time.Second
)

// RequiredTicks converts a dwell duration into a count of consecutive ticks
func RequiredTicks(dwell, interval time.Duration) int {
	if interval <= 0 || dwell <= 0 {
		return 1
	}
	n := int(math.Ceil(float64(dwell) / float64(interval)))
	if n < 1 {
		n = 1
	}
	return n
}

// Trigger accumulates consecutive Good/Good ticks and fires a single capture.
// It is not safe for concurrent use; one goroutine must own it.
type Trigger struct {
	required  int
	count     int
	state     State
	capturing bool
	analyzing bool
}

// New creates a Trigger firing after the given number of consecutive good ticks
func New(required int) *Trigger {
	if required < 1 {
		required = 1
	}
	return &Trigger{required: required}
}

// NewForDwell creates a Trigger for a dwell duration at a tick interval
func NewForDwell(dwell, interval time.Duration) *Trigger {
	return New(RequiredTicks(dwell, interval))
}

// Observe feeds one tick's verdict and reports whether a capture must start now
func (t *Trigger) Observe(v types.QualityVerdict) bool {
	if t.state == Fired {
		return false
	}

	if !v.Ready() {
		t.count = 0
		t.state = Idle
		return false
	}

	t.count++
	if t.count < t.required || t.capturing || t.analyzing {
		t.state = Accumulating
		return false
	}

	t.state = Fired
	return true
}

// BeginCapture marks a capture as in flight
func (t *Trigger) BeginCapture() {
	t.capturing = true
}

// EndCapture clears the capture flag. A failed capture returns the trigger to Idle.
func (t *Trigger) EndCapture(err error) {
	t.capturing = false
	if err != nil {
		t.toIdle()
	}
}

// BeginAnalysis marks an analysis call as in flight
func (t *Trigger) BeginAnalysis() {
	t.analyzing = true
}

// EndAnalysis clears the analysis flag. A failed analysis returns the trigger to
// Idle so the user can re-capture; a successful one leaves it Fired.
func (t *Trigger) EndAnalysis(err error) {
	t.analyzing = false
	if err != nil {
		t.toIdle()
	}
}

// Reset re-arms the trigger for a new capture
func (t *Trigger) Reset() {
	t.toIdle()
	t.capturing = false
	t.analyzing = false
}

func (t *Trigger) toIdle() {
	t.count = 0
	t.state = Idle
}

// State returns the current state
func (t *Trigger) State() State {
	return t.state
}

// Count returns the number of consecutive good ticks observed
func (t *Trigger) Count() int {
	return t.count
}

// Required returns the dwell threshold in ticks
func (t *Trigger) Required() int {
	return t.required
}

// InFlight reports whether a capture or analysis is outstanding
func (t *Trigger) InFlight() bool {
	return t.capturing || t.analyzing
}

// Progress returns dwell progress in [0,1] for preview countdowns
func (t *Trigger) Progress() float64 {
	if t.state == Fired {
		return 1
	}
	return math.Min(1, float64(t.count)/float64(t.required))
}
