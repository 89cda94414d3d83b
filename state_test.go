package glowbadge

import (
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"libdb.so/glowbadge/internal/anim"
	"libdb.so/glowbadge/internal/badge"
	"libdb.so/glowbadge/internal/led"
	"libdb.so/glowbadge/internal/strip"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stepLog []string

type logSink struct {
	log   *stepLog
	shown led.LEDs
}

func (s *logSink) Show(leds led.LEDs) error {
	*s.log = append(*s.log, "show")
	s.shown = append(s.shown[:0], leds...)
	return nil
}

func (s *logSink) Close() error { return nil }

type logUpdater struct{ log *stepLog }

func (u logUpdater) Handle() { *u.log = append(*u.log, "update") }

type logPoller struct{ log *stepLog }

func (p logPoller) Poll() bool {
	*p.log = append(*p.log, "poll")
	return false
}

func newTestState(t *testing.T) *DeviceState {
	t.Helper()

	state, err := NewDeviceState(badge.Default(), anim.TrailConfig{
		Pixels: 4,
		Fade:   100 * time.Millisecond,
	}, &strip.Null{}, rand.New(rand.NewSource(1)), discardLogger())
	if err != nil {
		t.Fatal("NewDeviceState:", err)
	}
	return state
}

func TestNewDeviceStateFillsBadgeColor(t *testing.T) {
	state := newTestState(t)

	want := led.Gamma(badge.DefaultColor)
	for i, c := range state.Pool.LEDs() {
		if c != want {
			t.Errorf("pixel %d = %v, want %v", i, c, want)
		}
	}
	if n := state.Pool.Cap(); n%2 != 1 {
		t.Errorf("pool capacity %d is not odd", n)
	}
}

func TestIterateOrder(t *testing.T) {
	state := newTestState(t)

	var log stepLog
	sink := &logSink{log: &log}
	state.Sink = sink
	state.Updater = logUpdater{&log}
	state.Control = logPoller{&log}

	if err := state.Events.Register("event", time.Millisecond, func() {
		log = append(log, "event")
	}); err != nil {
		t.Fatal("Register:", err)
	}

	if !state.Pool.Fade(0, led.RGB(255, 0, 0), led.Off, 10*time.Millisecond, 0, nil) {
		t.Fatal("no channel for fade")
	}

	state.Iterate(10 * time.Millisecond)

	if diff := cmp.Diff(stepLog{"show", "update", "poll", "event"}, log); diff != "" {
		t.Error("unexpected iteration order (-want +got):", diff)
	}
	if sink.shown[0] != led.Off {
		t.Errorf("shown pixel 0 = %v, want the fade advanced before the flush", sink.shown[0])
	}
	if state.Iterations() != 1 {
		t.Errorf("iterations = %d, want 1", state.Iterations())
	}
}

func TestIterateWithoutControl(t *testing.T) {
	state := newTestState(t)
	state.Updater = nil

	if err := state.Trail.Start(0); err != nil {
		t.Fatal("Start:", err)
	}

	step := anim.TrailConfig{Pixels: 4}.Step()
	for now := time.Duration(0); now <= 4*step; now += step {
		state.Iterate(now)
	}

	if laps := state.Trail.Laps(); laps != 1 {
		t.Errorf("laps = %d, want 1", laps)
	}
	if front := state.Trail.Front(); front != 0 {
		t.Errorf("front = %d, want 0", front)
	}
}
