package lock

import (
	"errors"
	"testing"
)

func TestCompatible(t *testing.T) {
	tests := []struct {
		required string
		want     bool
	}{
		{"v0.1.0", true},
		{"0.3.0", true},
		{"v" + Version, true},
		{"v0.3.1", false},
		{"v0.4.0", false},
		{"v1.0.0", false},
		{"not-a-version", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := Compatible(tt.required); got != tt.want {
			t.Errorf("Compatible(%q) = %v, want %v", tt.required, got, tt.want)
		}
	}
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	if info.Version != Version {
		t.Errorf("GetInfo().Version = %q, want %q", info.Version, Version)
	}
	if info.WakeOrder != "FIFO" {
		t.Errorf("GetInfo().WakeOrder = %q, want FIFO", info.WakeOrder)
	}
}

func TestErrorsAreSentinels(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatal(err)
	}
	defer Reset()

	m, err := MutexCreate(false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := MutexRelease(m); !errors.Is(err, ErrNotOwned) {
		t.Errorf("MutexRelease of unowned mutex: got %v, want ErrNotOwned", err)
	}
	if err := MonitorPulse(m); !errors.Is(err, ErrWrongKind) {
		t.Errorf("MonitorPulse on a mutex: got %v, want ErrWrongKind", err)
	}
	if _, err := MutexEnter(0, 0); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("MutexEnter(0): got %v, want ErrInvalidHandle", err)
	}
}
