// Package device defines the capability vocabulary shared by the cloud
// API, the shadow, and the exposed accessory properties, plus the
// stateless unit conversions between them.
package device

// Capability is a stable identifier for one controllable or observable
// attribute of an appliance. Values are bounded integers.
type Capability string

const (
	// KeyPower is the main fan switch (0/1).
	KeyPower Capability = "power"

	// KeySpeed is the fan speed level, 0 (off) through MaxSpeedLevel.
	KeySpeed Capability = "speed"

	// KeyLight is the display light switch (0/1).
	KeyLight Capability = "light"

	// KeyBrightness is the light brightness percentage (0-100).
	KeyBrightness Capability = "brightness"

	// KeyColorTemp is the light color temperature in Kelvin.
	KeyColorTemp Capability = "color_temp"

	// KeyPurifier is the air purification switch (0/1).
	KeyPurifier Capability = "purifier"

	// KeyPurifierState is the reported purification activity
	// (0 inactive, 1 idle, 2 purifying).
	KeyPurifierState Capability = "purifier_state"

	// KeyFilterLife is the remaining filter life percentage (0-100).
	KeyFilterLife Capability = "filter_life"

	// KeyFilterHours is the filter usage counter in hours.
	KeyFilterHours Capability = "filter_used_hours"

	// KeyTimer is the off-timer switch (0/1).
	KeyTimer Capability = "timer"

	// KeyTimerActive reports whether a countdown is currently running (0/1).
	KeyTimerActive Capability = "timer_active"

	// KeyTimerDuration is the off-timer duration in minutes.
	KeyTimerDuration Capability = "timer_duration"
)

// Patch is a partial capability update: keys present overwrite, keys
// absent are left untouched.
type Patch map[Capability]int

const (
	// MaxSpeedLevel is the highest fan speed level the appliance accepts.
	MaxSpeedLevel = 4

	// MinColorTempKelvin and MaxColorTempKelvin bound the light's color
	// temperature range.
	MinColorTempKelvin = 2700
	MaxColorTempKelvin = 6500

	// DefaultTimerDurationMinutes is used when the timer is enabled
	// without an explicit duration.
	DefaultTimerDurationMinutes = 60

	// FilterWornThresholdPercent is the remaining-life percentage at or
	// below which the filter is reported as worn.
	FilterWornThresholdPercent = 10
)

// defaults holds the value reported for a capability that has never
// been observed. Keys whose zero-value is only meaningful while the
// appliance is off get a sane floor instead of 0.
var defaults = Patch{
	KeyColorTemp:     4000,
	KeyFilterLife:    100,
	KeyTimerDuration: DefaultTimerDurationMinutes,
}

// Default returns the value reported for key when no value has been
// observed yet. Most keys default to 0.
func Default(key Capability) int {
	return defaults[key]
}

// Clone returns an independent copy of p.
func (p Patch) Clone() Patch {
	out := make(Patch, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
