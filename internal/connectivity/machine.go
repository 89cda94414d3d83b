package connectivity

import (
	"log/slog"
	"time"
)

// Clock is the time source of the Machine. Now is monotonic time since boot.
type Clock interface {
	Now() time.Duration
	Sleep(d time.Duration)
}

// SystemClock is a Clock on the process monotonic clock.
type SystemClock struct {
	boot time.Time
}

// NewSystemClock returns a clock whose zero is now.
func NewSystemClock() SystemClock {
	return SystemClock{boot: time.Now()}
}

func (c SystemClock) Now() time.Duration     { return time.Since(c.boot) }
func (c SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// Radio is the network interface of the device.
type Radio interface {
	// Join starts joining a network. It does not wait for the result.
	Join(ssid, pass string) error
	// Joined reports whether the device is on the joined network.
	Joined() bool
	// StartAccessPoint makes the device its own access point.
	StartAccessPoint(name string) error
	// Addr returns the current device address, or "" if it has none.
	Addr() string
	// Signal returns the received signal strength in dBm.
	Signal() int
}

// Services starts the service surface for the terminal mode. Exactly one of
// its methods is called, once.
type Services interface {
	StartOperational(out Outcome) error
	StartProvisioning(out Outcome) error
}

// Config configures a Machine.
type Config struct {
	// Timeout bounds the time spent attempting to join.
	Timeout time.Duration
	// Poll is the interval between connection status checks.
	Poll time.Duration
	// APName is advertised in provisioning mode.
	APName string
	// OnPoll is called after every unsuccessful status check with the number
	// of checks so far. It may be nil.
	OnPoll func(polls int)
}

// Default attempt timing.
const (
	DefaultTimeout = 30 * time.Second
	DefaultPoll    = 500 * time.Millisecond
)

// Machine is the connectivity state machine. It runs once per process.
type Machine struct {
	cfg      Config
	radio    Radio
	services Services
	clock    Clock
	logger   *slog.Logger

	state   State
	history []State
}

// NewMachine creates a machine in the idle state.
func NewMachine(cfg Config, radio Radio, services Services, clock Clock, logger *slog.Logger) *Machine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Poll <= 0 {
		cfg.Poll = DefaultPoll
	}
	return &Machine{
		cfg:      cfg,
		radio:    radio,
		services: services,
		clock:    clock,
		logger:   logger,
		state:    StateIdle,
		history:  []State{StateIdle},
	}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// History returns every state the machine has been in, in order.
func (m *Machine) History() []State {
	return append([]State(nil), m.history...)
}

// Run drives the machine from idle to a terminal state and starts the
// matching service surface. It blocks for at most the configured timeout
// plus one poll interval. Run never fails: every error ends in provisioning
// mode.
func (m *Machine) Run(in Input) Outcome {
	if m.state != StateIdle {
		panic("connectivity: machine already ran")
	}

	switch {
	case in.Invalid:
		return m.fallback(Attempt{SSID: in.SSID, Result: ConfigInvalid})
	case in.Absent || in.SSID == "":
		return m.fallback(Attempt{SSID: in.SSID, Result: ConfigAbsent})
	}

	attempt := m.attempt(in)
	if attempt.Result != Connected {
		return m.fallback(attempt)
	}

	m.enter(StateConnected)
	out := Outcome{
		Mode:    Operational,
		Result:  Connected,
		At:      m.clock.Now(),
		Attempt: attempt,
		Addr:    m.radio.Addr(),
	}
	m.logger.Info(
		"joined network",
		"ssid", in.SSID,
		"addr", out.Addr,
		"after", out.At)

	if err := m.services.StartOperational(out); err != nil {
		m.logger.Warn(
			"failed to start operational services",
			"error", err)
	}
	return out
}

func (m *Machine) attempt(in Input) Attempt {
	m.enter(StateAttempting)

	start := m.clock.Now()
	attempt := Attempt{
		SSID:       in.SSID,
		Credential: in.Pass,
		Deadline:   start + m.cfg.Timeout,
		Result:     Pending,
	}

	m.logger.Info(
		"joining network",
		"ssid", in.SSID,
		"timeout", m.cfg.Timeout)

	if err := m.radio.Join(in.SSID, in.Pass); err != nil {
		m.logger.Warn(
			"radio rejected network configuration",
			"ssid", in.SSID,
			"error", err)
		attempt.Result = ConfigInvalid
		return attempt
	}

	for polls := 1; ; polls++ {
		if m.radio.Joined() {
			attempt.Result = Connected
			return attempt
		}
		if m.clock.Now()-start >= m.cfg.Timeout {
			attempt.Result = TimedOut
			return attempt
		}
		if m.cfg.OnPoll != nil {
			m.cfg.OnPoll(polls)
		}
		m.clock.Sleep(m.cfg.Poll)
	}
}

func (m *Machine) fallback(attempt Attempt) Outcome {
	m.enter(StateFallback)

	out := Outcome{
		Mode:    Provisioning,
		Result:  attempt.Result,
		At:      m.clock.Now(),
		Attempt: attempt,
		APName:  m.cfg.APName,
	}

	m.logger.Info(
		"falling back to provisioning mode",
		"reason", attempt.Result,
		"ap", m.cfg.APName,
		"after", out.At)

	if err := m.radio.StartAccessPoint(m.cfg.APName); err != nil {
		m.logger.Warn(
			"failed to start access point",
			"ap", m.cfg.APName,
			"error", err)
	}
	out.Addr = m.radio.Addr()

	if err := m.services.StartProvisioning(out); err != nil {
		m.logger.Warn(
			"failed to start provisioning services",
			"error", err)
	}
	return out
}

func (m *Machine) enter(s State) {
	m.logger.Debug(
		"connectivity transition",
		"from", m.state,
		"to", s)
	m.state = s
	m.history = append(m.history, s)
}
