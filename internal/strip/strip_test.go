package strip

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"libdb.so/glowbadge/internal/led"
	"libdb.so/glowbadge/ledserial"
)

type fakePort struct {
	written bytes.Buffer
	r       *io.PipeReader
}

func (p *fakePort) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *fakePort) Write(b []byte) (int, error) { return p.written.Write(b) }
func (p *fakePort) Close() error                { return p.r.Close() }

func newFakePort() (*fakePort, *io.PipeWriter) {
	r, w := io.Pipe()
	return &fakePort{r: r}, w
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNull(t *testing.T) {
	var n Null
	leds := led.NewLEDs(2)
	leds.Set(0, led.RGB(1, 2, 3))

	n.Show(leds)
	leds.Set(1, led.RGB(4, 5, 6))

	if n.Frames != 1 {
		t.Errorf("frames = %d, want 1", n.Frames)
	}
	if diff := cmp.Diff(led.LEDs{led.RGB(1, 2, 3), led.Off}, n.Last); diff != "" {
		t.Error("last frame aliases the caller's buffer (-want +got):", diff)
	}
}

func TestSerial(t *testing.T) {
	port, controller := newFakePort()

	s, err := NewSerial(port, 2, discardLogger())
	if err != nil {
		t.Fatal("NewSerial:", err)
	}

	p, err := ledserial.ReadIncomingPacket(&port.written, ledserial.ReadContext{})
	if err != nil {
		t.Fatal("no initialize packet:", err)
	}
	if diff := cmp.Diff(ledserial.InitializePacket{NumLEDs: 2}, p); diff != "" {
		t.Error("unexpected initialize packet (-want +got):", diff)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	ack := func(n int64) {
		t.Helper()
		if err := ledserial.WriteOutgoingPacket(controller, ledserial.AckPacket{
			IncomingPacketType: ledserial.TypeInitializePacket,
		}); err != nil {
			t.Fatal("failed to ack:", err)
		}
		deadline := time.Now().Add(5 * time.Second)
		for s.Acks() < n {
			if time.Now().After(deadline) {
				t.Fatal("timed out waiting for ack")
			}
			time.Sleep(time.Millisecond)
		}
	}

	frame := led.LEDs{led.RGB(1, 2, 3), led.RGB(4, 5, 6)}

	if err := s.Show(frame); err != nil {
		t.Fatal("Show:", err)
	}
	if port.written.Len() != 0 {
		t.Fatal("frame written before the controller acknowledged")
	}

	ack(1)

	if err := s.Show(frame); err != nil {
		t.Fatal("Show:", err)
	}
	p, err = ledserial.ReadIncomingPacket(&port.written, ledserial.ReadContext{NumLEDs: 2})
	if err != nil {
		t.Fatal("no set packet:", err)
	}
	if diff := cmp.Diff(ledserial.SetPacket{Pix: []uint8{1, 2, 3, 4, 5, 6}}, p); diff != "" {
		t.Error("unexpected set packet (-want +got):", diff)
	}

	ack(2)

	if err := s.Show(frame); err != nil {
		t.Fatal("Show:", err)
	}
	if port.written.Len() != 0 {
		t.Error("unchanged frame written again")
	}
}

func TestSerialPanic(t *testing.T) {
	port, controller := newFakePort()

	s, err := NewSerial(port, 1, discardLogger())
	if err != nil {
		t.Fatal("NewSerial:", err)
	}

	go ledserial.WriteOutgoingPacket(controller, ledserial.PanicPacket{Message: "oom"})

	err = s.Run(context.Background())
	if !errors.Is(err, ErrControllerPanic) {
		t.Fatalf("Run = %v, want %v", err, ErrControllerPanic)
	}
}
