package glowbadge

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
	"libdb.so/glowbadge/internal/badge"
	"libdb.so/glowbadge/internal/connectivity"
	"libdb.so/glowbadge/internal/control"
	"libdb.so/glowbadge/internal/display"
	"libdb.so/glowbadge/internal/web"
)

// Boot screen lines.
const (
	lineBootTitle    = 0
	lineBootDetail   = 1
	lineBootProgress = 2
)

// progressEvery is how many connection polls make up one progress dot.
const progressEvery = 4

// errStoreUnavailable is returned when documents cannot be saved because the
// store failed to open.
var errStoreUnavailable = errors.New("document store unavailable")

// documents is the document store as seen by the surfaces. It is nil if the
// store could not be opened.
type documents interface {
	Read(name string) ([]byte, error)
	Write(name string, data []byte) error
}

// surfaces starts the service surface picked by the connectivity machine.
// The started services are collected and run once the main loop starts.
type surfaces struct {
	cfg    *Config
	state  *DeviceState
	screen *display.Screen
	docs   documents
	logger *slog.Logger

	services []func(context.Context) error
}

var _ connectivity.Services = (*surfaces)(nil)

func (s *surfaces) showConnecting(ssid string) {
	s.screen.Clear()
	s.screen.DrawStatus(lineBootTitle, "SSID: "+ssid)
	s.screen.DrawStatus(lineBootDetail, "Connecting:")
	s.screen.Flush()
}

// bootProgress draws a progress dot every few connection polls.
func (s *surfaces) bootProgress(polls int) {
	if polls%progressEvery != 0 {
		return
	}
	s.screen.DrawStatus(lineBootProgress, strings.Repeat(".", polls/progressEvery))
	s.screen.Flush()
}

func (s *surfaces) StartOperational(out connectivity.Outcome) error {
	s.screen.Clear()
	s.screen.DrawStatus(lineBootTitle, out.Addr)
	s.screen.Flush()

	s.run("web", web.NewOperational(s.cfg.Web.Addr, s.logger).Run)

	handlers := &control.Handlers{
		Badge: s.state.Badge,
		Save:  s.saveBadge,
	}

	listener, err := control.Listen(control.ListenConfig{
		Group:     s.cfg.Net.Group,
		Port:      s.cfg.Net.Port,
		Server:    s.cfg.Net.Server,
		Interface: s.cfg.WiFi.Interface,
	}, handlers, s.logger)
	if err != nil {
		return errors.Wrap(err, "failed to start command listener")
	}

	s.state.Control = listener
	s.run("control", listener.Run)
	return nil
}

func (s *surfaces) StartProvisioning(out connectivity.Outcome) error {
	s.screen.Clear()
	s.screen.DrawStatus(lineBootTitle, "AP: "+out.APName)
	s.screen.DrawStatus(lineBootDetail, out.Addr)
	s.screen.DrawStatus(lineBootProgress, "Setup Mode")
	s.screen.Flush()

	var docs web.DocumentWriter = unavailableDocs{}
	if s.docs != nil {
		docs = s.docs
	}

	s.run("web", web.NewProvisioning(s.cfg.Web.Addr, docs, s.logger).Run)
	return nil
}

// run queues a service. A failing service is logged and stops on its own
// without taking the main loop down.
func (s *surfaces) run(name string, service func(context.Context) error) {
	s.services = append(s.services, func(ctx context.Context) error {
		err := service(ctx)
		if err != nil && ctx.Err() == nil {
			s.logger.Warn(
				"service stopped",
				"service", name,
				"error", err)
		}
		return nil
	})
}

func (s *surfaces) saveBadge(b badge.Badge) error {
	if s.docs == nil {
		return errStoreUnavailable
	}

	data, err := badge.MarshalConf(b)
	if err != nil {
		return errors.Wrap(err, "failed to encode badge")
	}

	return s.docs.Write(badge.ConfFile, data)
}

type unavailableDocs struct{}

func (unavailableDocs) Write(string, []byte) error { return errStoreUnavailable }
