// Package control implements the badge command protocol received over UDP
// multicast while the badge is operational.
package control

import (
	"fmt"

	"github.com/pkg/errors"
	"libdb.so/glowbadge/internal/badge"
	"libdb.so/glowbadge/internal/led"
)

// Command is the first byte of a command packet.
type Command uint8

const (
	CmdTeamChange Command = iota + 1
	CmdColorChange
	CmdTeamColorChange
	CmdNameChange
	CmdEcho

	cmdEnd
)

// String returns a string representation of the command.
func (c Command) String() string {
	switch c {
	case CmdTeamChange:
		return "team-change"
	case CmdColorChange:
		return "color-change"
	case CmdTeamColorChange:
		return "team-color-change"
	case CmdNameChange:
		return "name-change"
	case CmdEcho:
		return "echo"
	default:
		return fmt.Sprintf("Command(%d)", c)
	}
}

// Valid reports whether c is a known command.
func (c Command) Valid() bool {
	return c >= CmdTeamChange && c < cmdEnd
}

var (
	// ErrUnknownCommand is returned for packets whose command byte is not a
	// known Command.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrShortPacket is returned when a packet ends before its arguments.
	ErrShortPacket = errors.New("short packet")
	// ErrEmptyPacket is returned for packets without a command byte.
	ErrEmptyPacket = errors.New("empty packet")
)

// Handlers is what commands act upon.
type Handlers struct {
	// Badge is changed in place by commands.
	Badge *badge.Badge
	// Save persists Badge. It may be nil.
	Save func(badge.Badge) error
	// Reply sends a packet back to the command server. It may be nil.
	Reply func([]byte) error
}

// Outcome describes what a dispatched command did.
type Outcome struct {
	Command Command
	// Changed is set when the badge was modified.
	Changed bool
	// Replied is set when a reply was sent.
	Replied bool
}

type handlerFunc func(h *Handlers, cmd Command, args []byte) (Outcome, error)

var handlers = map[Command]handlerFunc{
	CmdTeamChange:      handleTeamChange,
	CmdColorChange:     handleColorChange,
	CmdTeamColorChange: handleTeamColorChange,
	CmdNameChange:      handleNameChange,
	CmdEcho:            handleEcho,
}

// Dispatch decodes a packet and runs its command. Unknown commands return
// ErrUnknownCommand without touching the badge.
func (h *Handlers) Dispatch(packet []byte) (Outcome, error) {
	if len(packet) == 0 {
		return Outcome{}, ErrEmptyPacket
	}

	cmd := Command(packet[0])
	if !cmd.Valid() {
		return Outcome{Command: cmd}, errors.Wrapf(ErrUnknownCommand, "command %d", packet[0])
	}

	out, err := handlers[cmd](h, cmd, packet[1:])
	out.Command = cmd
	if err != nil {
		return out, errors.Wrap(err, cmd.String())
	}

	if out.Changed && h.Save != nil {
		if err := h.Save(*h.Badge); err != nil {
			return out, errors.Wrapf(err, "%s: failed to save badge", cmd)
		}
	}
	return out, nil
}

func handleTeamChange(h *Handlers, _ Command, args []byte) (Outcome, error) {
	if len(args) < 2 {
		return Outcome{}, ErrShortPacket
	}
	h.Badge.Team = constrain(args[0], 1, badge.MaxTeam)
	h.Badge.ID = constrain(args[1], 1, badge.MaxID)
	return Outcome{Changed: true}, nil
}

func handleColorChange(h *Handlers, _ Command, args []byte) (Outcome, error) {
	if len(args) < 3 {
		return Outcome{}, ErrShortPacket
	}
	h.Badge.Color = led.RGB(args[0], args[1], args[2])
	return Outcome{Changed: true}, nil
}

func handleTeamColorChange(h *Handlers, cmd Command, args []byte) (Outcome, error) {
	if len(args) < 1 {
		return Outcome{}, ErrShortPacket
	}
	if constrain(args[0], 1, badge.MaxTeam) != h.Badge.Team {
		return Outcome{}, nil
	}
	return handleColorChange(h, cmd, args[1:])
}

func handleNameChange(h *Handlers, _ Command, args []byte) (Outcome, error) {
	name, _ := badge.NewName(string(args))
	h.Badge.Name = name
	return Outcome{Changed: true}, nil
}

// echoMaxTeam is the highest team that answers echo requests.
const echoMaxTeam = 8

func handleEcho(h *Handlers, cmd Command, _ []byte) (Outcome, error) {
	if h.Badge.Team > echoMaxTeam || h.Reply == nil {
		return Outcome{}, nil
	}
	if err := h.Reply([]byte{byte(cmd), h.Badge.Team, h.Badge.ID}); err != nil {
		return Outcome{}, errors.Wrap(err, "failed to reply")
	}
	return Outcome{Replied: true}, nil
}

func constrain(v, lo, hi uint8) uint8 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
