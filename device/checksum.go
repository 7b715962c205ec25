package device

import (
	"sync"
	"time"

	"github.com/openfab/fabdrive/logger"
)

// Defaults for the checksum failure window.
const (
	// DefaultRunawayThreshold is the failure count above which the sticky
	// runaway flag is set.
	DefaultRunawayThreshold = 100

	// DefaultDecayDelay is how long each recorded failure stays in the window
	// before it decays.
	DefaultDecayDelay = 2000 * time.Millisecond
)

// ChecksumWindow is a decaying counter of checksum-retry signals with a sticky
// runaway flag.
//
// Each Increment schedules its own decay after the configured delay. Once the
// count exceeds the threshold, the runaway flag is set and never cleared
// automatically: further checksum-retry signals are no longer treated specially,
// which breaks infinite resend loops. Only an explicit Reset clears the flag.
//
// The window lives as long as its Device; decay timers scheduled before a device
// reset fire harmlessly afterwards.
type ChecksumWindow struct {
	mu        sync.Mutex
	count     int
	runaway   bool
	threshold int
	decay     time.Duration
	logger    logger.Logger
}

// NewChecksumWindow creates a ChecksumWindow.
//
// A non-positive threshold or decay selects the defaults.
func NewChecksumWindow(l logger.Logger, threshold int, decay time.Duration) *ChecksumWindow {
	if l == nil {
		l = logger.GetLogger()
	}
	if threshold <= 0 {
		threshold = DefaultRunawayThreshold
	}
	if decay <= 0 {
		decay = DefaultDecayDelay
	}

	return &ChecksumWindow{threshold: threshold, decay: decay, logger: l}
}

// Increment records one checksum-retry signal and schedules its decay.
//
// It returns true on the single call that trips the runaway flag.
func (w *ChecksumWindow) Increment() bool {
	w.mu.Lock()
	w.count++

	tripped := false
	if w.count > w.threshold && !w.runaway {
		w.runaway = true
		tripped = true
	}
	w.mu.Unlock()

	if tripped {
		w.logger.Warn("checksum retry runaway threshold exceeded, checksum resends disabled",
			"threshold", w.threshold)
	}

	time.AfterFunc(w.decay, w.decrement)

	return tripped
}

func (w *ChecksumWindow) decrement() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.count > 0 {
		w.count--
	}
}

// Count returns the current failure count.
func (w *ChecksumWindow) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.count
}

// Runaway returns true once the sticky runaway flag has been set.
func (w *ChecksumWindow) Runaway() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.runaway
}

// Reset clears the failure count and the runaway flag.
//
// This is the only way to clear the flag; it is exposed as an explicit
// operation, never inferred.
func (w *ChecksumWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.count = 0
	w.runaway = false
}
