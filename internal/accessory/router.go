package accessory

import (
	"airbridge/internal/reconcile"

	"go.uber.org/zap"
)

// Sink receives one per-property value push for the hub.
type Sink interface {
	PushValue(deviceID, property string, value int)
}

// Fanout converts a reconciler's derived-state push into per-property
// value pushes on a Sink. It implements reconcile.Publisher.
type Fanout struct {
	sink Sink
}

// NewFanout wraps sink as a reconcile.Publisher.
func NewFanout(sink Sink) *Fanout {
	return &Fanout{sink: sink}
}

// Publish implements reconcile.Publisher.
func (f *Fanout) Publish(deviceID string, d reconcile.Derived) {
	f.sink.PushValue(deviceID, PropFanOn, boolToInt(d.FanOn))
	f.sink.PushValue(deviceID, PropFanSpeed, d.FanSpeedPercent)
	f.sink.PushValue(deviceID, PropLightOn, boolToInt(d.LightOn))
	f.sink.PushValue(deviceID, PropBrightness, d.BrightnessPercent)
	f.sink.PushValue(deviceID, PropColorTemp, d.ColorTempMired)
	f.sink.PushValue(deviceID, PropPurifierOn, boolToInt(d.PurifierOn))
	f.sink.PushValue(deviceID, PropPurifierState, d.PurifierState)
	f.sink.PushValue(deviceID, PropFilterWorn, boolToInt(d.FilterWorn))
	f.sink.PushValue(deviceID, PropFilterLife, d.FilterLifePercent)
	f.sink.PushValue(deviceID, PropTimerOn, boolToInt(d.TimerOn))
	f.sink.PushValue(deviceID, PropFault, boolToInt(d.Fault))
}

// ReconcilerSource resolves a device ID to its reconciler.
type ReconcilerSource interface {
	Reconciler(deviceID string) (*reconcile.Reconciler, bool)
}

// Router delivers set requests arriving from the hub to the matching
// property write.
type Router struct {
	src    ReconcilerSource
	logger *zap.Logger
}

// NewRouter creates a router over src.
func NewRouter(src ReconcilerSource, logger *zap.Logger) *Router {
	return &Router{
		src:    src,
		logger: logger.Named("accessory"),
	}
}

// HandleSet applies one hub set request as an intent.
func (r *Router) HandleSet(deviceID, property string, value int) {
	rec, ok := r.src.Reconciler(deviceID)
	if !ok {
		r.logger.Warn("Set for unknown device",
			zap.String("device", deviceID),
			zap.String("property", property))
		return
	}

	prop, err := Find(ForDevice(rec), property)
	if err != nil {
		r.logger.Warn("Set for unknown property",
			zap.String("device", deviceID),
			zap.String("property", property))
		return
	}
	if prop.Write == nil {
		r.logger.Warn("Set for read-only property",
			zap.String("device", deviceID),
			zap.String("property", property))
		return
	}

	prop.Write(value)
}
