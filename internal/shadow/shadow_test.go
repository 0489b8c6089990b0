package shadow

import (
	"testing"

	"airbridge/internal/device"
)

func TestGet_UnsetKeyReturnsDefault(t *testing.T) {
	s := New()

	if got := s.Get(device.KeyPower); got != 0 {
		t.Fatalf("Unset power = %d, want 0", got)
	}
	if got := s.Get(device.KeyColorTemp); got != device.Default(device.KeyColorTemp) {
		t.Fatalf("Unset color temp = %d, want default %d", got, device.Default(device.KeyColorTemp))
	}
}

func TestMerge_OverwritesOnlyPresentKeys(t *testing.T) {
	s := New()
	s.Set(device.KeyPower, 1)
	s.Set(device.KeyLight, 1)

	s.Merge(device.Patch{device.KeyLight: 0, device.KeyBrightness: 40})

	if got := s.Get(device.KeyPower); got != 1 {
		t.Errorf("Merge touched absent key power: %d", got)
	}
	if got := s.Get(device.KeyLight); got != 0 {
		t.Errorf("Merge did not overwrite light: %d", got)
	}
	if got := s.Get(device.KeyBrightness); got != 40 {
		t.Errorf("Merge did not set brightness: %d", got)
	}
}

func TestLastSpeed_UpdatedOnNonzeroOnly(t *testing.T) {
	s := New()

	if got := s.LastSpeed(); got != 1 {
		t.Fatalf("LastSpeed with no history = %d, want 1", got)
	}

	s.Set(device.KeySpeed, 3)
	s.Set(device.KeySpeed, 0)

	if got := s.LastSpeed(); got != 3 {
		t.Fatalf("LastSpeed after zeroing = %d, want 3", got)
	}

	// Poll results update it through Merge too.
	s.Merge(device.Patch{device.KeySpeed: 2})
	if got := s.LastSpeed(); got != 2 {
		t.Fatalf("LastSpeed after merge = %d, want 2", got)
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := New()
	s.Set(device.KeyPower, 1)

	snap := s.Snapshot()
	snap[device.KeyPower] = 0

	if got := s.Get(device.KeyPower); got != 1 {
		t.Fatalf("Mutating snapshot changed shadow: %d", got)
	}
}
