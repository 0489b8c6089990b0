package reconcile

import (
	"errors"
	"sync"

	"airbridge/internal/clock"
	"airbridge/internal/device"
	"airbridge/internal/shadow"

	"go.uber.org/zap"
)

// ErrOffline is returned by a CommandSender when the device group is
// offline and the command was deliberately suppressed rather than
// transmitted.
var ErrOffline = errors.New("device group offline")

// Suppression flag identifiers for the known firmware quirks.
const (
	// quirkAutoLight: turning the fan on makes the firmware switch the
	// display light on as a side-effect. One-shot.
	quirkAutoLight = "auto-light"

	// quirkAutoTimer: while a fan session runs, the firmware re-asserts
	// the off-timer as enabled on every poll. Session-scoped.
	quirkAutoTimer = "auto-timer"
)

// CommandSender transmits a coalesced patch to the appliance. It
// returns ErrOffline when the group is offline and the command was
// suppressed.
type CommandSender func(patch device.Patch) error

// Derived is the full set of exposed property values, computed from
// the shadow through the lens of the active suppression flags.
type Derived struct {
	FanOn             bool `json:"fan_on"`
	FanSpeedPercent   int  `json:"fan_speed_percent"`
	LightOn           bool `json:"light_on"`
	BrightnessPercent int  `json:"brightness_percent"`
	ColorTempMired    int  `json:"color_temp_mired"`
	PurifierOn        bool `json:"purifier_on"`
	PurifierState     int  `json:"purifier_state"`
	FilterWorn        bool `json:"filter_worn"`
	FilterLifePercent int  `json:"filter_life_percent"`
	TimerOn           bool `json:"timer_on"`
	Fault             bool `json:"fault"`
}

// Publisher receives derived values for the control surface whenever
// they change.
type Publisher interface {
	Publish(deviceID string, d Derived)
}

// NopPublisher discards pushes. Used while no control surface is
// attached.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(string, Derived) {}

// Reconciler orchestrates one appliance's shadow, debouncer, cooldown
// gate, and quirk compensator. It owns them exclusively; nothing is
// shared across devices except the group-level connectivity monitor.
type Reconciler struct {
	deviceID string
	shadow   *shadow.Shadow
	debounce *Debouncer
	gate     *Gate
	quirks   *Compensator
	send     CommandSender
	logger   *zap.Logger

	mu            sync.Mutex
	publisher     Publisher
	fault         bool
	lastPublished *Derived
}

// NewReconciler creates the reconciler for one appliance.
func NewReconciler(deviceID string, c clock.Clock, send CommandSender, pub Publisher, logger *zap.Logger) *Reconciler {
	log := logger.Named("reconcile").With(zap.String("device", deviceID))
	r := &Reconciler{
		deviceID:  deviceID,
		shadow:    shadow.New(),
		gate:      NewGate(c),
		quirks:    NewCompensator(c, log),
		send:      send,
		publisher: pub,
		logger:    log,
	}
	r.debounce = NewDebouncer(c, DebounceWindow, r.dispatch, log)
	return r
}

// DeviceID returns the appliance identifier this reconciler owns.
func (r *Reconciler) DeviceID() string {
	return r.deviceID
}

// ApplyIntent applies a local request from the control surface: the
// shadow is updated optimistically, the physical write is enqueued for
// debounced dispatch, and known firmware quirks are armed or canceled.
func (r *Reconciler) ApplyIntent(patch device.Patch) {
	patch = patch.Clone()

	r.mu.Lock()

	// The user's explicit wish for a sub-feature always overrides a
	// pending compensation for it.
	if _, ok := patch[device.KeyLight]; ok {
		r.quirks.Cancel(quirkAutoLight)
	}
	if _, ok := patch[device.KeyTimer]; ok {
		r.quirks.Cancel(quirkAutoTimer)
	}

	prevPower := r.shadow.Get(device.KeyPower)
	if v, ok := patch[device.KeyPower]; ok {
		if v != 0 && prevPower == 0 {
			r.startSession(patch)
		} else if v == 0 && prevPower != 0 {
			r.endSession()
		}
	}

	r.shadow.Merge(patch)
	r.debounce.Enqueue(patch)
	r.mu.Unlock()

	r.logger.Debug("Applied intent", zap.Int("keys", len(patch)))
	r.publishIfChanged()
}

// startSession runs when the fan is switched on. It restores the last
// known speed when the intent carries none, and arms compensation for
// the firmware side-effects the power-on is known to trigger.
func (r *Reconciler) startSession(patch device.Patch) {
	if _, ok := patch[device.KeySpeed]; !ok && r.shadow.Get(device.KeySpeed) == 0 {
		patch[device.KeySpeed] = r.shadow.LastSpeed()
	}

	if patch[device.KeyLight] == 0 && r.shadow.Get(device.KeyLight) == 0 {
		r.quirks.Schedule(quirkAutoLight, OneShot, CompensationDelay,
			r.compensate(device.Patch{device.KeyLight: 0}))
	}

	if patch[device.KeyTimer] == 0 && r.shadow.Get(device.KeyTimer) == 0 {
		r.quirks.Schedule(quirkAutoTimer, Session, CompensationDelay,
			r.compensate(device.Patch{device.KeyTimer: 0}))
	}
}

// endSession runs when the fan is switched off: session suppression
// flags are force-cleared and sub-feature keys whose remote value is
// stale in the off state are zeroed locally before the next poll, so a
// spurious compensation cannot fire during shutdown.
func (r *Reconciler) endSession() {
	r.quirks.EndSession()
	r.shadow.Set(device.KeyTimer, 0)
	r.shadow.Set(device.KeyTimerActive, 0)
}

// compensate builds the compensating action for a quirk: a direct
// outward command that also keeps the shadow consistent when it lands.
func (r *Reconciler) compensate(patch device.Patch) func() error {
	return func() error {
		if err := r.send(patch); err != nil {
			return err
		}
		r.shadow.Merge(patch)
		return nil
	}
}

// dispatch is the debouncer's flush target: it sends the coalesced
// batch and, once the write lands, opens the cooldown window. A failed
// send is logged but the optimistic shadow is not rolled back; the
// next successful poll corrects it.
func (r *Reconciler) dispatch(batch device.Patch) {
	err := r.send(batch)
	switch {
	case errors.Is(err, ErrOffline):
		r.logger.Info("Command suppressed while offline",
			zap.Int("keys", len(batch)))
	case err != nil:
		r.logger.Error("Command dispatch failed", zap.Error(err))
	default:
		r.gate.Arm(CooldownWindow)
		r.logger.Debug("Command dispatched", zap.Int("keys", len(batch)))
	}
}

// ApplyPoll merges a poll result into the shadow. While the cooldown
// gate is active the merged values are not pushed outward, so the
// control surface does not flicker back to pre-write state.
func (r *Reconciler) ApplyPoll(capabilities device.Patch) {
	r.shadow.Merge(capabilities)

	if r.gate.Active() {
		r.logger.Debug("Poll merged during cooldown, push withheld")
		return
	}
	r.publishIfChanged()
}

// SetFault flips the connectivity fault indicator and pushes it
// immediately, so the surface never sees one more offline-consistent
// read after the transition.
func (r *Reconciler) SetFault(fault bool) {
	r.mu.Lock()
	r.fault = fault
	r.mu.Unlock()

	r.publishIfChanged()
}

// SetPublisher swaps the push sink. Pass NopPublisher to detach.
func (r *Reconciler) SetPublisher(pub Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publisher = pub
}

// Derived computes the exposed property values from the shadow through
// the suppression lens. It is a pure function of the shadow, the fault
// flag, and the flag states.
func (r *Reconciler) Derived() Derived {
	fanOn := r.shadow.Get(device.KeyPower) != 0

	speedPercent := 0
	if fanOn {
		speedPercent = device.SpeedToPercent(r.shadow.Get(device.KeySpeed))
	}

	lightOn := r.shadow.Get(device.KeyLight) != 0 && !r.quirks.Suppressed(quirkAutoLight)
	timerOn := r.shadow.Get(device.KeyTimer) != 0 && !r.quirks.Suppressed(quirkAutoTimer)

	filterLife := r.shadow.Get(device.KeyFilterLife)

	r.mu.Lock()
	fault := r.fault
	r.mu.Unlock()

	return Derived{
		FanOn:             fanOn,
		FanSpeedPercent:   speedPercent,
		LightOn:           lightOn,
		BrightnessPercent: r.shadow.Get(device.KeyBrightness),
		ColorTempMired:    device.KelvinToMired(r.shadow.Get(device.KeyColorTemp)),
		PurifierOn:        r.shadow.Get(device.KeyPurifier) != 0,
		PurifierState:     r.shadow.Get(device.KeyPurifierState),
		FilterWorn:        device.FilterWorn(filterLife),
		FilterLifePercent: filterLife,
		TimerOn:           timerOn,
		Fault:             fault,
	}
}

// Snapshot returns a copy of the raw shadow, for the debug API.
func (r *Reconciler) Snapshot() device.Patch {
	return r.shadow.Snapshot()
}

// Stop cancels the pending debounce window. Compensation timers are
// one-shot and self-expire.
func (r *Reconciler) Stop() {
	r.debounce.Stop()
}

// publishIfChanged pushes the derived values when they differ from the
// last push. Re-applying an identical poll result therefore produces
// no extra push.
func (r *Reconciler) publishIfChanged() {
	d := r.Derived()

	r.mu.Lock()
	if r.lastPublished != nil && *r.lastPublished == d {
		r.mu.Unlock()
		return
	}
	r.lastPublished = &d
	pub := r.publisher
	r.mu.Unlock()

	pub.Publish(r.deviceID, d)
}
