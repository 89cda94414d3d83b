// Package strip pushes frames to the LED strip.
package strip

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"libdb.so/glowbadge/internal/led"
	"libdb.so/glowbadge/ledserial"
)

// Sink shows frames on a strip.
type Sink interface {
	// Show displays leds. It may skip frames the strip is not ready for.
	Show(leds led.LEDs) error
	// Close releases the strip.
	Close() error
}

// Null is a sink that keeps the last frame in memory.
type Null struct {
	Frames int
	Last   led.LEDs
}

var _ Sink = (*Null)(nil)

// Show implements Sink.
func (n *Null) Show(leds led.LEDs) error {
	n.Frames++
	n.Last = append(n.Last[:0], leds...)
	return nil
}

// Close implements Sink.
func (n *Null) Close() error { return nil }

// ErrControllerPanic is returned by Serial.Run when the controller reports
// that it cannot recover.
var ErrControllerPanic = errors.New("controller panicked")

// Serial is a sink driving a strip controller over ledserial. A frame is only
// written once the controller has acknowledged the previous packet, and only
// if it differs from the last written frame.
type Serial struct {
	port   io.ReadWriteCloser
	logger *slog.Logger

	last   led.LEDs
	ready  atomic.Bool
	resend atomic.Bool
	acks   atomic.Int64
}

var _ Sink = (*Serial)(nil)

// OpenSerial opens the controller on device and sizes the strip.
func OpenSerial(device string, baud, numLEDs int, logger *slog.Logger) (*Serial, error) {
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open serial port")
	}

	if err := port.SetReadTimeout(serial.NoTimeout); err != nil {
		port.Close()
		return nil, errors.Wrap(err, "failed to reset read timeout")
	}

	s, err := NewSerial(port, numLEDs, logger)
	if err != nil {
		port.Close()
		return nil, err
	}

	return s, nil
}

// NewSerial initializes a controller on an already open port.
func NewSerial(port io.ReadWriteCloser, numLEDs int, logger *slog.Logger) (*Serial, error) {
	s := &Serial{
		port:   port,
		logger: logger,
	}

	logger.Debug(
		"sending initialize packet",
		"leds", numLEDs)

	if err := ledserial.WriteIncomingPacket(port, ledserial.InitializePacket{
		NumLEDs: uint16(numLEDs),
	}); err != nil {
		return nil, errors.Wrap(err, "failed to initialize LEDs")
	}

	return s, nil
}

// Show implements Sink.
func (s *Serial) Show(leds led.LEDs) error {
	if !s.ready.Load() {
		return nil
	}
	if !s.resend.Load() && s.last != nil && s.last.Equal(leds) {
		return nil
	}

	if err := ledserial.WriteIncomingPacket(s.port, ledserial.SetPacket{
		Pix: leds.AsPixels(),
	}); err != nil {
		return errors.Wrap(err, "failed to write frame")
	}

	s.ready.Store(false)
	s.resend.Store(false)
	s.last = append(s.last[:0], leds...)
	return nil
}

// Acks returns the number of acknowledgements received.
func (s *Serial) Acks() int64 { return s.acks.Load() }

// Run reads controller packets until ctx is canceled or the controller
// panics. It closes the port on return.
func (s *Serial) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			s.logger.Debug("closing serial port")
			s.port.Close()
		case <-done:
		}
	}()

	for ctx.Err() == nil {
		p, err := ledserial.ReadOutgoingPacket(s.port)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// A short read indicates a timeout. Try again.
			if errors.Is(err, io.EOF) {
				continue
			}
			return errors.Wrap(err, "failed to read packet")
		}

		if err := s.handle(p); err != nil {
			return err
		}
	}

	return ctx.Err()
}

func (s *Serial) handle(p ledserial.OutgoingPacket) error {
	switch p := p.(type) {
	case ledserial.AckPacket:
		s.logger.Debug(
			"received ack packet from controller",
			"acked_for", p.IncomingPacketType)
		s.acks.Add(1)
		s.ready.Store(true)

	case ledserial.ErrorPacket:
		s.logger.Warn(
			"received error packet from controller",
			"message", p.Message)
		// The frame was rejected. Send the next one even if unchanged.
		s.resend.Store(true)
		s.ready.Store(true)

	case ledserial.PanicPacket:
		s.logger.Error(
			"controller unrecoverably panicked",
			"message", p.Message)
		return errors.Wrap(ErrControllerPanic, p.Message)

	case ledserial.LogPacket:
		s.logger.Info(
			"received log packet from controller",
			"message", p.Message)
	}

	return nil
}

// Close implements Sink.
func (s *Serial) Close() error {
	return s.port.Close()
}
