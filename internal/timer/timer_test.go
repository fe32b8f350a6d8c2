package timer

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew_Kinds(t *testing.T) {
	tests := []struct {
		kind    Kind
		wantErr bool
	}{
		{KindVirtual, false},
		{KindWall, false},
		{"", false},
		{"sundial", true},
	}
	for _, tt := range tests {
		d, err := New(tt.kind)
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%q) error = %v, wantErr %v", tt.kind, err, tt.wantErr)
		}
		if err == nil && d == nil {
			t.Errorf("New(%q) returned nil driver", tt.kind)
		}
	}
}

func TestManual_FireOnlyWhenArmed(t *testing.T) {
	m := NewManual()
	var fired atomic.Int32
	if m.Fire() {
		t.Error("Fire before Start delivered")
	}
	if err := m.Start(10*time.Millisecond, func() { fired.Add(1) }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if m.Interval() != 10*time.Millisecond {
		t.Errorf("Interval() = %v, want 10ms", m.Interval())
	}
	if !m.Fire() {
		t.Error("Fire on armed timer not delivered")
	}
	m.Disarm()
	if m.Fire() {
		t.Error("Fire on disarmed timer delivered")
	}
	m.Rearm()
	m.Fire()
	if fired.Load() != 2 {
		t.Errorf("fired %d times, want 2", fired.Load())
	}
	disarms, rearms := m.Counts()
	if disarms != 1 || rearms != 1 {
		t.Errorf("Counts() = (%d, %d), want (1, 1)", disarms, rearms)
	}
	m.Stop()
	if m.Armed() {
		t.Error("Armed() after Stop")
	}
}

func TestManual_StartErrors(t *testing.T) {
	m := NewManual()
	if err := m.Start(0, func() {}); !errors.Is(err, ErrInterval) {
		t.Errorf("Start(0) error = %v, want ErrInterval", err)
	}
	if err := m.Disarm(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Disarm before Start error = %v, want ErrNotStarted", err)
	}
	m.Start(time.Millisecond, func() {})
	if err := m.Start(time.Millisecond, func() {}); !errors.Is(err, ErrBusy) {
		t.Errorf("second Start error = %v, want ErrBusy", err)
	}
}

func TestWall_FiresPeriodically(t *testing.T) {
	w := NewWall()
	fired := make(chan struct{}, 16)
	if err := w.Start(2*time.Millisecond, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	for i := 0; i < 3; i++ {
		select {
		case <-fired:
		case <-time.After(2 * time.Second):
			t.Fatalf("tick %d not delivered", i)
		}
	}
}

func TestWall_DisarmSuppressesTicks(t *testing.T) {
	w := NewWall()
	var fired atomic.Int32
	w.Start(time.Millisecond, func() { fired.Add(1) })
	defer w.Stop()

	if err := w.Disarm(); err != nil {
		t.Fatalf("Disarm: %v", err)
	}
	time.Sleep(5 * time.Millisecond) // let an in-flight tick drain
	before := fired.Load()
	time.Sleep(20 * time.Millisecond)
	if after := fired.Load(); after != before {
		t.Errorf("ticks delivered while disarmed: %d -> %d", before, after)
	}
	if err := w.Rearm(); err != nil {
		t.Fatalf("Rearm: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for fired.Load() == before && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if fired.Load() == before {
		t.Error("no tick after Rearm")
	}
}

func TestWall_Errors(t *testing.T) {
	w := NewWall()
	if err := w.Rearm(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Rearm before Start error = %v, want ErrNotStarted", err)
	}
	if err := w.Start(-time.Second, func() {}); !errors.Is(err, ErrInterval) {
		t.Errorf("Start(-1s) error = %v, want ErrInterval", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop before Start error = %v", err)
	}
}
