package control

import (
	"context"
	"log/slog"
	"net"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// maxPacket bounds a command packet: a command byte and a full name.
const maxPacket = 1 + 256

// queueLen is how many packets may wait for the main loop.
const queueLen = 8

// ListenConfig configures Listen.
type ListenConfig struct {
	// Group is the multicast group, e.g. "239.13.37.1".
	Group string
	// Port is the UDP port of the group.
	Port int
	// Server is the host:port echo replies are sent to.
	Server string
	// Interface is the interface to join the group on. Empty lets the
	// system choose.
	Interface string
}

// Listener receives command packets on a background reader and hands them to
// the main loop through Poll.
type Listener struct {
	conn     net.PacketConn
	server   net.Addr
	handlers *Handlers
	logger   *slog.Logger
	packets  chan []byte
}

// Listen joins the command multicast group.
func Listen(cfg ListenConfig, h *Handlers, logger *slog.Logger) (*Listener, error) {
	group := net.ParseIP(cfg.Group)
	if group == nil || !group.IsMulticast() {
		return nil, errors.Errorf("invalid multicast group %q", cfg.Group)
	}

	server, err := net.ResolveUDPAddr("udp4", cfg.Server)
	if err != nil {
		return nil, errors.Wrap(err, "invalid command server address")
	}

	var iface *net.Interface
	if cfg.Interface != "" {
		iface, err = net.InterfaceByName(cfg.Interface)
		if err != nil {
			return nil, errors.Wrap(err, "invalid multicast interface")
		}
	}

	conn, err := net.ListenMulticastUDP("udp4", iface, &net.UDPAddr{IP: group, Port: cfg.Port})
	if err != nil {
		return nil, errors.Wrap(err, "failed to join command group")
	}

	return NewListener(conn, server, h, logger), nil
}

// NewListener creates a listener reading commands from conn. Echo replies go
// to server. If h has no Reply function, replies are sent over conn.
func NewListener(conn net.PacketConn, server net.Addr, h *Handlers, logger *slog.Logger) *Listener {
	l := &Listener{
		conn:     conn,
		server:   server,
		handlers: h,
		logger:   logger,
		packets:  make(chan []byte, queueLen),
	}
	if h.Reply == nil {
		h.Reply = l.reply
	}
	return l
}

// Addr returns the local address of the listener.
func (l *Listener) Addr() net.Addr { return l.conn.LocalAddr() }

// Run reads packets until ctx is canceled. It closes the connection on
// return.
func (l *Listener) Run(ctx context.Context) error {
	errg, ctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		<-ctx.Done()
		l.logger.Debug("closing command listener")
		l.conn.Close()
		return ctx.Err()
	})
	errg.Go(func() error {
		return l.readPackets(ctx)
	})
	return errg.Wait()
}

func (l *Listener) readPackets(ctx context.Context) error {
	buf := make([]byte, maxPacket)
	for ctx.Err() == nil {
		n, from, err := l.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "failed to read command packet")
		}

		packet := append([]byte(nil), buf[:n]...)
		select {
		case l.packets <- packet:
		default:
			l.logger.Warn(
				"command queue full, dropping packet",
				"from", from)
		}
	}
	return ctx.Err()
}

// Poll dispatches at most one pending packet without blocking. It reports
// whether a packet was handled.
func (l *Listener) Poll() bool {
	var packet []byte
	select {
	case packet = <-l.packets:
	default:
		return false
	}

	out, err := l.handlers.Dispatch(packet)
	if err != nil {
		l.logger.Warn(
			"failed to handle command",
			"command", out.Command,
			"error", err)
		return true
	}

	l.logger.Debug(
		"handled command",
		"command", out.Command,
		"changed", out.Changed,
		"replied", out.Replied)
	return true
}

func (l *Listener) reply(b []byte) error {
	_, err := l.conn.WriteTo(b, l.server)
	return err
}
