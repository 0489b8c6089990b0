// Package accessory exposes each appliance to the host automation hub
// as a flat set of named properties, one read/write pair per
// characteristic, and fans derived-value pushes out to the hub.
package accessory

import (
	"fmt"

	"airbridge/internal/device"
	"airbridge/internal/reconcile"
)

// Property names exposed per appliance. Booleans are carried as 0/1.
const (
	PropFanOn         = "fan_on"
	PropFanSpeed      = "fan_speed_percent"
	PropLightOn       = "light_on"
	PropBrightness    = "brightness_percent"
	PropColorTemp     = "color_temp_mired"
	PropPurifierOn    = "purifier_on"
	PropPurifierState = "purifier_state"
	PropFilterWorn    = "filter_worn"
	PropFilterLife    = "filter_life_percent"
	PropTimerOn       = "timer_on"
	PropFault         = "fault"
)

// Property is one exposed characteristic: Read is a pure function of
// the shadow at read time, Write turns a hub value into an intent.
// Write is nil for read-only properties.
type Property struct {
	Name  string
	Read  func() int
	Write func(value int)
}

// ForDevice builds the property set for one reconciler.
func ForDevice(rec *reconcile.Reconciler) []Property {
	return []Property{
		{
			Name: PropFanOn,
			Read: func() int { return boolToInt(rec.Derived().FanOn) },
			Write: func(v int) {
				rec.ApplyIntent(device.Patch{device.KeyPower: clampBit(v)})
			},
		},
		{
			Name: PropFanSpeed,
			Read: func() int { return rec.Derived().FanSpeedPercent },
			Write: func(v int) {
				level := device.PercentToSpeed(v)
				if level == 0 {
					rec.ApplyIntent(device.Patch{device.KeyPower: 0})
					return
				}
				rec.ApplyIntent(device.Patch{
					device.KeyPower: 1,
					device.KeySpeed: level,
				})
			},
		},
		{
			Name: PropLightOn,
			Read: func() int { return boolToInt(rec.Derived().LightOn) },
			Write: func(v int) {
				rec.ApplyIntent(device.Patch{device.KeyLight: clampBit(v)})
			},
		},
		{
			Name: PropBrightness,
			Read: func() int { return rec.Derived().BrightnessPercent },
			Write: func(v int) {
				rec.ApplyIntent(device.Patch{
					device.KeyLight:      1,
					device.KeyBrightness: clampPercent(v),
				})
			},
		},
		{
			Name: PropColorTemp,
			Read: func() int { return rec.Derived().ColorTempMired },
			Write: func(v int) {
				rec.ApplyIntent(device.Patch{
					device.KeyColorTemp: device.MiredToKelvin(v),
				})
			},
		},
		{
			Name: PropPurifierOn,
			Read: func() int { return boolToInt(rec.Derived().PurifierOn) },
			Write: func(v int) {
				rec.ApplyIntent(device.Patch{device.KeyPurifier: clampBit(v)})
			},
		},
		{
			Name: PropPurifierState,
			Read: func() int { return rec.Derived().PurifierState },
		},
		{
			Name: PropFilterWorn,
			Read: func() int { return boolToInt(rec.Derived().FilterWorn) },
		},
		{
			Name: PropFilterLife,
			Read: func() int { return rec.Derived().FilterLifePercent },
		},
		{
			Name: PropTimerOn,
			Read: func() int { return boolToInt(rec.Derived().TimerOn) },
			Write: func(v int) {
				if v == 0 {
					rec.ApplyIntent(device.Patch{device.KeyTimer: 0})
					return
				}
				rec.ApplyIntent(device.Patch{
					device.KeyTimer:         1,
					device.KeyTimerDuration: device.DefaultTimerDurationMinutes,
				})
			},
		},
		{
			Name: PropFault,
			Read: func() int { return boolToInt(rec.Derived().Fault) },
		},
	}
}

// Find returns the named property from props.
func Find(props []Property, name string) (Property, error) {
	for _, p := range props {
		if p.Name == name {
			return p, nil
		}
	}
	return Property{}, fmt.Errorf("unknown property %q", name)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func clampBit(v int) int {
	if v != 0 {
		return 1
	}
	return 0
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
