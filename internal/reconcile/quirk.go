package reconcile

import (
	"sync"
	"time"

	"airbridge/internal/clock"

	"go.uber.org/zap"
)

// FlagState is the tagged state of one suppression flag.
type FlagState int

const (
	// FlagIdle means no compensation is pending and getters report the
	// shadow as-is.
	FlagIdle FlagState = iota

	// FlagArmed means a triggering intent was seen and the compensating
	// action is scheduled but has not fired.
	FlagArmed

	// FlagCompensated is reached only by session-scoped flags: the
	// action has fired once, and the flag stays set until the owning
	// session ends because the firmware re-asserts the side-effect on
	// every poll for the session's duration.
	FlagCompensated
)

// Scope distinguishes one-shot quirks from session-scoped ones.
type Scope int

const (
	// OneShot flags clear themselves when the compensating action fires.
	OneShot Scope = iota

	// Session flags persist after the action fires, until EndSession.
	Session
)

type quirkFlag struct {
	state FlagState
	scope Scope
	timer clock.Timer
}

// Compensator undoes firmware auto-behaviors: a triggering intent arms
// a named flag and schedules a compensating command; a genuine user
// intent for the same sub-feature cancels it. While a flag is set,
// getters for the affected sub-feature report the pre-quirk value.
type Compensator struct {
	mu     sync.Mutex
	clock  clock.Clock
	logger *zap.Logger
	flags  map[string]*quirkFlag
}

// NewCompensator creates a compensator with no armed flags.
func NewCompensator(c clock.Clock, logger *zap.Logger) *Compensator {
	return &Compensator{
		clock:  c,
		logger: logger,
		flags:  make(map[string]*quirkFlag),
	}
}

// Schedule arms flagID and schedules action after delay. At fire time
// the flag is checked: if it was canceled in the meantime the action is
// skipped. On success a one-shot flag returns to idle and a session
// flag moves to compensated. If the action fails it is logged and the
// flag is left as-is; there is no retry, only a fresh triggering
// intent re-arms it.
func (q *Compensator) Schedule(flagID string, scope Scope, delay time.Duration, action func() error) {
	q.mu.Lock()

	if f, ok := q.flags[flagID]; ok && f.timer != nil {
		f.timer.Stop()
	}

	f := &quirkFlag{state: FlagArmed, scope: scope}
	f.timer = q.clock.AfterFunc(delay, func() {
		q.fire(flagID, action)
	})
	q.flags[flagID] = f
	q.mu.Unlock()

	q.logger.Debug("Armed suppression flag",
		zap.String("flag", flagID),
		zap.Duration("delay", delay))
}

func (q *Compensator) fire(flagID string, action func() error) {
	q.mu.Lock()
	f, ok := q.flags[flagID]
	if !ok || f.state != FlagArmed {
		// Canceled by a genuine user intent before the check.
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()

	if err := action(); err != nil {
		q.logger.Warn("Compensating command failed, leaving flag armed",
			zap.String("flag", flagID),
			zap.Error(err))
		return
	}

	q.mu.Lock()
	if f, ok := q.flags[flagID]; ok {
		switch f.scope {
		case OneShot:
			f.state = FlagIdle
		case Session:
			f.state = FlagCompensated
		}
	}
	q.mu.Unlock()

	q.logger.Info("Compensating command sent", zap.String("flag", flagID))
}

// Cancel clears flagID without firing its action. Cancellation is
// advisory: if the timer already fired, it has no retroactive effect.
func (q *Compensator) Cancel(flagID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	f, ok := q.flags[flagID]
	if !ok || f.state == FlagIdle {
		return
	}
	if f.timer != nil {
		f.timer.Stop()
	}
	f.state = FlagIdle

	q.logger.Debug("Canceled suppression flag", zap.String("flag", flagID))
}

// Suppressed reports whether flagID is currently set, meaning getters
// for the affected sub-feature must report the pre-quirk value.
func (q *Compensator) Suppressed(flagID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	f, ok := q.flags[flagID]
	return ok && f.state != FlagIdle
}

// State returns the current state of flagID.
func (q *Compensator) State(flagID string) FlagState {
	q.mu.Lock()
	defer q.mu.Unlock()

	if f, ok := q.flags[flagID]; ok {
		return f.state
	}
	return FlagIdle
}

// EndSession force-clears every flag. Called when the owning feature
// session ends (the fan is turned off).
func (q *Compensator) EndSession() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for id, f := range q.flags {
		if f.timer != nil {
			f.timer.Stop()
		}
		f.state = FlagIdle
		q.logger.Debug("Session ended, cleared suppression flag", zap.String("flag", id))
	}
}
