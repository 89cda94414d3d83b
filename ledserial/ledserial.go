// Package ledserial implements the serial protocol spoken between the badge
// and its LED strip controller.
//
// Every packet is a type byte, a type-specific body and a little-endian
// CRC-32 (IEEE) of the type byte and body.
package ledserial

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
)

// Endianness defines the endianness of the protocol.
var Endianness = binary.LittleEndian

// ErrChecksum is returned when a packet's checksum does not match its
// contents.
var ErrChecksum = errors.New("packet checksum mismatch")

// MaxMessageLen is the longest message an outgoing packet may carry.
const MaxMessageLen = 0xFFFF

// IncomingPacketType is the type of a packet sent to the controller.
type IncomingPacketType uint8

const (
	TypeInitializePacket IncomingPacketType = iota
	TypeClearPacket
	TypeSetPacket
)

// String returns a string representation of the packet type.
func (t IncomingPacketType) String() string {
	switch t {
	case TypeInitializePacket:
		return "initialize"
	case TypeClearPacket:
		return "clear"
	case TypeSetPacket:
		return "set"
	default:
		return fmt.Sprintf("IncomingPacketType(%d)", t)
	}
}

// IncomingPacket is a packet sent to the controller.
type IncomingPacket interface {
	// Type returns the type of packet.
	Type() IncomingPacketType
}

// InitializePacket sizes the strip.
type InitializePacket struct {
	NumLEDs uint16
}

// ClearPacket turns every pixel off.
type ClearPacket struct{}

// SetPacket sets every pixel of the strip. Pix holds 3 bytes per pixel.
type SetPacket struct {
	Pix []uint8
}

func (p InitializePacket) Type() IncomingPacketType { return TypeInitializePacket }
func (p ClearPacket) Type() IncomingPacketType      { return TypeClearPacket }
func (p SetPacket) Type() IncomingPacketType        { return TypeSetPacket }

// OutgoingPacketType is the type of a packet sent by the controller.
type OutgoingPacketType uint8

const (
	TypeAckPacket OutgoingPacketType = iota
	TypeErrorPacket
	TypePanicPacket
	TypeLogPacket
)

// String returns a string representation of the packet type.
func (t OutgoingPacketType) String() string {
	switch t {
	case TypeAckPacket:
		return "ack"
	case TypeErrorPacket:
		return "error"
	case TypePanicPacket:
		return "panic"
	case TypeLogPacket:
		return "log"
	default:
		return fmt.Sprintf("OutgoingPacketType(%d)", t)
	}
}

// OutgoingPacket is a packet sent by the controller.
type OutgoingPacket interface {
	// Type returns the type of packet.
	Type() OutgoingPacketType
}

// AckPacket acknowledges an incoming packet.
type AckPacket struct {
	IncomingPacketType IncomingPacketType
}

// ErrorPacket reports a recoverable error.
type ErrorPacket struct {
	Message string
}

// PanicPacket reports that the controller cannot recover.
type PanicPacket struct {
	Message string
}

// LogPacket carries a log line.
type LogPacket struct {
	Message string
}

func (p AckPacket) Type() OutgoingPacketType   { return TypeAckPacket }
func (p ErrorPacket) Type() OutgoingPacketType { return TypeErrorPacket }
func (p PanicPacket) Type() OutgoingPacketType { return TypePanicPacket }
func (p LogPacket) Type() OutgoingPacketType   { return TypeLogPacket }

// ReadContext holds what the reader must know to size packet bodies.
type ReadContext struct {
	// NumLEDs is the number of LEDs in the strip.
	NumLEDs uint16
}

// frameReader checksums everything read through it.
type frameReader struct {
	r    io.Reader
	hash hash.Hash32
}

func newFrameReader(r io.Reader) *frameReader {
	h := crc32.NewIEEE()
	return &frameReader{r: io.TeeReader(r, h), hash: h}
}

func (f *frameReader) byte() (uint8, error) {
	var b [1]byte
	_, err := io.ReadFull(f.r, b[:])
	return b[0], err
}

func (f *frameReader) message() (string, error) {
	var length uint16
	if err := binary.Read(f.r, Endianness, &length); err != nil {
		return "", fmt.Errorf("failed to read message length: %w", err)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(f.r, buf); err != nil {
		return "", fmt.Errorf("failed to read message: %w", err)
	}
	return string(buf), nil
}

// verify reads the trailing checksum. It must be called after the body.
func (f *frameReader) verify() error {
	sum := f.hash.Sum32()
	var checksum uint32
	// sum covers the type byte and body only.
	if err := binary.Read(f.r, Endianness, &checksum); err != nil {
		return fmt.Errorf("failed to read packet checksum: %w", err)
	}
	if checksum != sum {
		return ErrChecksum
	}
	return nil
}

// frameWriter buffers a frame so it reaches the port in a single write.
type frameWriter struct {
	buf []byte
}

func (f *frameWriter) byte(b uint8) {
	f.buf = append(f.buf, b)
}

func (f *frameWriter) bytes(b []byte) {
	f.buf = append(f.buf, b...)
}

func (f *frameWriter) uint16(v uint16) {
	f.buf = Endianness.AppendUint16(f.buf, v)
}

func (f *frameWriter) message(s string) {
	f.uint16(uint16(len(s)))
	f.buf = append(f.buf, s...)
}

func (f *frameWriter) flush(w io.Writer) error {
	f.buf = Endianness.AppendUint32(f.buf, crc32.ChecksumIEEE(f.buf))
	if _, err := w.Write(f.buf); err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}
	return nil
}

// ReadIncomingPacket reads a packet sent to the controller.
func ReadIncomingPacket(r io.Reader, context ReadContext) (IncomingPacket, error) {
	f := newFrameReader(r)

	t, err := f.byte()
	if err != nil {
		return nil, fmt.Errorf("failed to read incoming packet type: %w", err)
	}

	var packet IncomingPacket

	switch ptype := IncomingPacketType(t); ptype {
	case TypeInitializePacket:
		var p InitializePacket
		if err := binary.Read(f.r, Endianness, &p.NumLEDs); err != nil {
			return nil, fmt.Errorf("failed to read number of LEDs: %w", err)
		}
		packet = p

	case TypeClearPacket:
		packet = ClearPacket{}

	case TypeSetPacket:
		p := SetPacket{Pix: make([]uint8, 3*int(context.NumLEDs))}
		if _, err := io.ReadFull(f.r, p.Pix); err != nil {
			return nil, fmt.Errorf("failed to read pixel data: %w", err)
		}
		packet = p

	default:
		return nil, fmt.Errorf("unknown packet type: %s", ptype)
	}

	if err := f.verify(); err != nil {
		return nil, err
	}

	return packet, nil
}

// WriteIncomingPacket writes a packet for the controller.
func WriteIncomingPacket(w io.Writer, p IncomingPacket) error {
	var f frameWriter
	f.byte(uint8(p.Type()))

	switch p := p.(type) {
	case InitializePacket:
		f.uint16(p.NumLEDs)
	case ClearPacket:
	case SetPacket:
		f.bytes(p.Pix)
	default:
		return fmt.Errorf("unknown packet type: %T", p)
	}

	return f.flush(w)
}

// ReadOutgoingPacket reads a packet sent by the controller.
func ReadOutgoingPacket(r io.Reader) (OutgoingPacket, error) {
	f := newFrameReader(r)

	t, err := f.byte()
	if err != nil {
		return nil, fmt.Errorf("failed to read outgoing packet type: %w", err)
	}

	var packet OutgoingPacket

	switch ptype := OutgoingPacketType(t); ptype {
	case TypeAckPacket:
		acked, err := f.byte()
		if err != nil {
			return nil, fmt.Errorf("failed to read acked packet type: %w", err)
		}
		packet = AckPacket{IncomingPacketType: IncomingPacketType(acked)}

	case TypeErrorPacket, TypePanicPacket, TypeLogPacket:
		msg, err := f.message()
		if err != nil {
			return nil, fmt.Errorf("%s packet: %w", ptype, err)
		}
		switch ptype {
		case TypeErrorPacket:
			packet = ErrorPacket{Message: msg}
		case TypePanicPacket:
			packet = PanicPacket{Message: msg}
		default:
			packet = LogPacket{Message: msg}
		}

	default:
		return nil, fmt.Errorf("unknown packet type: %s", ptype)
	}

	if err := f.verify(); err != nil {
		return nil, err
	}

	return packet, nil
}

// WriteOutgoingPacket writes a packet as the controller would.
func WriteOutgoingPacket(w io.Writer, p OutgoingPacket) error {
	var f frameWriter
	f.byte(uint8(p.Type()))

	var msg string
	switch p := p.(type) {
	case AckPacket:
		f.byte(uint8(p.IncomingPacketType))
		return f.flush(w)
	case ErrorPacket:
		msg = p.Message
	case PanicPacket:
		msg = p.Message
	case LogPacket:
		msg = p.Message
	default:
		return fmt.Errorf("unknown packet type: %T", p)
	}

	if len(msg) > MaxMessageLen {
		msg = msg[:MaxMessageLen]
	}
	f.message(msg)
	return f.flush(w)
}
