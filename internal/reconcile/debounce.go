// Package reconcile contains the state reconciliation core: it
// arbitrates between locally issued intents and asynchronously
// arriving poll results, coalesces outgoing writes, holds back stale
// poll data after a write, and compensates for firmware side-effects.
package reconcile

import (
	"sync"
	"time"

	"airbridge/internal/clock"
	"airbridge/internal/device"

	"go.uber.org/zap"
)

// Timing constants for the reconciliation core.
const (
	// DebounceWindow is the quiescence delay during which repeated
	// intents coalesce into one outgoing command.
	DebounceWindow = 500 * time.Millisecond

	// CooldownWindow is how long poll results are withheld from the
	// control surface after a command is dispatched, while the backing
	// store may still serve pre-write values.
	CooldownWindow = 3 * time.Second

	// CompensationDelay is how long after a triggering write the quirk
	// compensator checks whether the firmware side-effect still needs
	// undoing.
	CompensationDelay = 1500 * time.Millisecond

	// OfflineThreshold is the number of consecutive poll failures after
	// which the device group is declared offline.
	OfflineThreshold = 3
)

// Dispatcher receives the coalesced patch when the debounce window
// closes.
type Dispatcher func(patch device.Patch)

// Debouncer accumulates capability writes and dispatches them as a
// single command once no further writes arrive for a full window.
// Within one window, the last enqueued value for a key wins.
type Debouncer struct {
	mu       sync.Mutex
	clock    clock.Clock
	window   time.Duration
	dispatch Dispatcher
	logger   *zap.Logger

	pending device.Patch
	timer   clock.Timer
}

// NewDebouncer creates a debouncer that calls dispatch with the
// accumulated batch after window of quiescence.
func NewDebouncer(c clock.Clock, window time.Duration, dispatch Dispatcher, logger *zap.Logger) *Debouncer {
	return &Debouncer{
		clock:    c,
		window:   window,
		dispatch: dispatch,
		logger:   logger,
		pending:  make(device.Patch),
	}
}

// Enqueue merges patch into the pending batch and restarts the
// quiescence timer.
func (d *Debouncer) Enqueue(patch device.Patch) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for k, v := range patch {
		d.pending[k] = v
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.clock.AfterFunc(d.window, d.flush)

	d.logger.Debug("Enqueued command patch",
		zap.Int("patch_keys", len(patch)),
		zap.Int("pending_keys", len(d.pending)))
}

// flush fires when the window closes with no further enqueues. It is a
// no-op when nothing is pending.
func (d *Debouncer) flush() {
	d.mu.Lock()
	if len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	batch := d.pending
	d.pending = make(device.Patch)
	d.timer = nil
	d.mu.Unlock()

	// Dispatch outside the lock so a slow send cannot block new intents.
	d.dispatch(batch)
}

// Stop cancels the pending window without dispatching.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = make(device.Patch)
}
