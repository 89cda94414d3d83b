// Package connectivity brings the network up once at boot: it joins the
// configured network within a deadline or falls back to a local provisioning
// access point.
package connectivity

import (
	"fmt"
	"hash/crc32"
	"time"
)

// Mode is the service mode the device runs in for the rest of the process.
type Mode uint8

const (
	Provisioning Mode = iota
	Operational
)

// String returns a string representation of the mode.
func (m Mode) String() string {
	switch m {
	case Provisioning:
		return "provisioning"
	case Operational:
		return "operational"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// Result is the outcome of a connection attempt.
type Result uint8

const (
	Pending Result = iota
	Connected
	TimedOut
	ConfigInvalid
	ConfigAbsent
)

// String returns a string representation of the result.
func (r Result) String() string {
	switch r {
	case Pending:
		return "pending"
	case Connected:
		return "connected"
	case TimedOut:
		return "timed out"
	case ConfigInvalid:
		return "config invalid"
	case ConfigAbsent:
		return "config absent"
	default:
		return fmt.Sprintf("Result(%d)", r)
	}
}

// State is a state of the Machine.
type State uint8

const (
	StateIdle State = iota
	StateAttempting
	StateConnected
	StateFallback
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttempting:
		return "attempting"
	case StateConnected:
		return "connected"
	case StateFallback:
		return "fallback"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Input is the network configuration as loaded at boot.
type Input struct {
	SSID string
	Pass string
	// Absent is set when no network configuration exists.
	Absent bool
	// Invalid is set when a configuration exists but could not be parsed.
	Invalid bool
}

// Attempt records one connection attempt. Deadline is measured on the
// machine's clock.
type Attempt struct {
	SSID       string
	Credential string
	Deadline   time.Duration
	Result     Result
}

// Outcome is the terminal result of Machine.Run.
type Outcome struct {
	Mode    Mode
	Result  Result
	At      time.Duration
	Attempt Attempt
	// APName is the advertised access point name in provisioning mode.
	APName string
	// Addr is the device address on the joined network or its access point.
	Addr string
}

// APName derives the provisioning access point name from a hardware
// identifier.
func APName(prefix, hardwareID string) string {
	return fmt.Sprintf("%s-%06x", prefix, crc32.ChecksumIEEE([]byte(hardwareID))&0xFFFFFF)
}
