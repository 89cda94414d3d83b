package connectivity

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeClock struct {
	now time.Duration
}

func (c *fakeClock) Now() time.Duration    { return c.now }
func (c *fakeClock) Sleep(d time.Duration) { c.now += d }

type fakeRadio struct {
	clock    *fakeClock
	joinedAt time.Duration // negative: never
	joinErr  error

	joins []string
	ap    string
}

func (r *fakeRadio) Join(ssid, pass string) error {
	r.joins = append(r.joins, ssid)
	return r.joinErr
}

func (r *fakeRadio) Joined() bool {
	return r.joinedAt >= 0 && r.clock.now >= r.joinedAt
}

func (r *fakeRadio) StartAccessPoint(name string) error {
	r.ap = name
	return nil
}

func (r *fakeRadio) Addr() string {
	if r.ap != "" {
		return DefaultAPAddr
	}
	return "10.13.37.42"
}

func (r *fakeRadio) Signal() int { return -60 }

type fakeServices struct {
	operational  []Outcome
	provisioning []Outcome
}

func (s *fakeServices) StartOperational(out Outcome) error {
	s.operational = append(s.operational, out)
	return nil
}

func (s *fakeServices) StartProvisioning(out Outcome) error {
	s.provisioning = append(s.provisioning, out)
	return nil
}

type machineTest struct {
	clock    *fakeClock
	radio    *fakeRadio
	services *fakeServices
	machine  *Machine
	polls    int
}

func newMachineTest(timeout, poll, joinedAt time.Duration) *machineTest {
	mt := &machineTest{
		clock:    &fakeClock{},
		services: &fakeServices{},
	}
	mt.radio = &fakeRadio{clock: mt.clock, joinedAt: joinedAt}
	mt.machine = NewMachine(Config{
		Timeout: timeout,
		Poll:    poll,
		APName:  "glowbadge-abcdef",
		OnPoll:  func(n int) { mt.polls = n },
	}, mt.radio, mt.services, mt.clock, discard)
	return mt
}

func TestMachineConfigAbsent(t *testing.T) {
	for _, in := range []Input{{}, {SSID: ""}, {SSID: "ignored", Absent: true}} {
		mt := newMachineTest(30*time.Second, 500*time.Millisecond, 0)
		out := mt.machine.Run(in)

		if out.Mode != Provisioning || out.Result != ConfigAbsent {
			t.Fatalf("%+v: got %v/%v, want provisioning/config absent", in, out.Mode, out.Result)
		}
		want := []State{StateIdle, StateFallback}
		if diff := cmp.Diff(want, mt.machine.History()); diff != "" {
			t.Fatalf("%+v: states (-want +got):\n%s", in, diff)
		}
		if len(mt.radio.joins) != 0 {
			t.Fatalf("%+v: radio joined %v", in, mt.radio.joins)
		}
		if mt.radio.ap != "glowbadge-abcdef" || len(mt.services.provisioning) != 1 {
			t.Fatalf("%+v: provisioning surface not started", in)
		}
		if out.Addr != DefaultAPAddr {
			t.Fatalf("%+v: addr = %q", in, out.Addr)
		}
	}
}

func TestMachineConfigInvalid(t *testing.T) {
	mt := newMachineTest(30*time.Second, 500*time.Millisecond, 0)
	out := mt.machine.Run(Input{SSID: "lab", Invalid: true})

	if out.Result != ConfigInvalid || mt.machine.State() != StateFallback {
		t.Fatalf("got %v in %v", out.Result, mt.machine.State())
	}
	if len(mt.services.operational) != 0 {
		t.Fatal("operational surface started")
	}
}

func TestMachineTimeout(t *testing.T) {
	tests := []struct {
		timeout time.Duration
		poll    time.Duration
	}{
		{30 * time.Second, 500 * time.Millisecond},
		{1200 * time.Millisecond, 500 * time.Millisecond},
		{time.Second, 3 * time.Second},
	}

	for _, test := range tests {
		mt := newMachineTest(test.timeout, test.poll, -1)
		out := mt.machine.Run(Input{SSID: "lab", Pass: "hunter2"})

		if out.Mode != Provisioning || out.Result != TimedOut {
			t.Fatalf("%+v: got %v/%v, want provisioning/timed out", test, out.Mode, out.Result)
		}
		if out.At < test.timeout || out.At >= test.timeout+test.poll {
			t.Fatalf("%+v: timed out at %v, want in [T, T+poll)", test, out.At)
		}
		want := []State{StateIdle, StateAttempting, StateFallback}
		if diff := cmp.Diff(want, mt.machine.History()); diff != "" {
			t.Fatalf("%+v: states (-want +got):\n%s", test, diff)
		}
		if out.Attempt.Deadline != test.timeout || out.Attempt.Credential != "hunter2" {
			t.Fatalf("%+v: attempt = %+v", test, out.Attempt)
		}
		if mt.polls == 0 {
			t.Fatalf("%+v: poll callback never ran", test)
		}
	}
}

func TestMachineConnects(t *testing.T) {
	tests := []time.Duration{0, 1, 499 * time.Millisecond, 10 * time.Second, 29999 * time.Millisecond}

	for _, joinedAt := range tests {
		mt := newMachineTest(30*time.Second, 500*time.Millisecond, joinedAt)
		out := mt.machine.Run(Input{SSID: "lab"})

		if out.Mode != Operational || out.Result != Connected {
			t.Fatalf("joined at %v: got %v/%v", joinedAt, out.Mode, out.Result)
		}
		if out.At < joinedAt || out.At >= joinedAt+500*time.Millisecond {
			t.Fatalf("joined at %v: connected at %v", joinedAt, out.At)
		}
		if len(mt.services.operational) != 1 || len(mt.services.provisioning) != 0 {
			t.Fatalf("joined at %v: wrong service surface started", joinedAt)
		}
		if mt.radio.ap != "" {
			t.Fatalf("joined at %v: access point started", joinedAt)
		}
		if diff := cmp.Diff([]string{"lab"}, mt.radio.joins); diff != "" {
			t.Fatalf("joins (-want +got):\n%s", diff)
		}
	}
}

func TestMachineJoinRejected(t *testing.T) {
	mt := newMachineTest(30*time.Second, 500*time.Millisecond, 0)
	mt.radio.joinErr = io.ErrUnexpectedEOF

	out := mt.machine.Run(Input{SSID: "lab"})
	if out.Result != ConfigInvalid || out.Mode != Provisioning {
		t.Fatalf("got %v/%v", out.Mode, out.Result)
	}
}

func TestMachineRunsOnce(t *testing.T) {
	mt := newMachineTest(time.Second, time.Second, 0)
	mt.machine.Run(Input{SSID: "lab"})

	defer func() {
		if recover() == nil {
			t.Fatal("second run did not panic")
		}
	}()
	mt.machine.Run(Input{SSID: "lab"})
}

func TestAPName(t *testing.T) {
	a := APName("glowbadge", "00:11:22:33:44:55")
	b := APName("glowbadge", "00:11:22:33:44:56")

	if a == b {
		t.Fatalf("hardware ids collide: %q", a)
	}
	if len(a) != len("glowbadge-")+6 {
		t.Fatalf("unexpected name %q", a)
	}
	if a != APName("glowbadge", "00:11:22:33:44:55") {
		t.Fatal("name is not stable")
	}
}
