package device

// SpeedToPercent converts a fan speed level to the percentage exposed
// on the control surface. Each level is worth an equal slice of 100%.
func SpeedToPercent(level int) int {
	if level <= 0 {
		return 0
	}
	if level > MaxSpeedLevel {
		level = MaxSpeedLevel
	}
	return level * 100 / MaxSpeedLevel
}

// PercentToSpeed converts a control-surface percentage to the nearest
// speed level that covers it. Any nonzero percentage maps to at least
// level 1.
func PercentToSpeed(percent int) int {
	if percent <= 0 {
		return 0
	}
	if percent > 100 {
		percent = 100
	}
	step := 100 / MaxSpeedLevel
	level := (percent + step - 1) / step
	if level > MaxSpeedLevel {
		level = MaxSpeedLevel
	}
	return level
}

// KelvinToMired converts a color temperature in Kelvin to mireds,
// clamping to the appliance's supported range first.
func KelvinToMired(kelvin int) int {
	kelvin = clampKelvin(kelvin)
	return 1000000 / kelvin
}

// MiredToKelvin converts mireds back to Kelvin, clamped to the
// appliance's supported range.
func MiredToKelvin(mired int) int {
	if mired <= 0 {
		return MaxColorTempKelvin
	}
	return clampKelvin(1000000 / mired)
}

func clampKelvin(kelvin int) int {
	if kelvin < MinColorTempKelvin {
		return MinColorTempKelvin
	}
	if kelvin > MaxColorTempKelvin {
		return MaxColorTempKelvin
	}
	return kelvin
}

// FilterWorn reports whether the remaining filter life warrants the
// change-filter indicator.
func FilterWorn(lifePercent int) bool {
	return lifePercent <= FilterWornThresholdPercent
}
