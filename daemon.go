// Package glowbadge is the badge runtime: a ring of pixels chased by a fading
// trail, a small status display and, once the network is up, a command
// listener and web service.
package glowbadge

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"libdb.so/glowbadge/internal/anim"
	"libdb.so/glowbadge/internal/badge"
	"libdb.so/glowbadge/internal/connectivity"
	"libdb.so/glowbadge/internal/display"
	"libdb.so/glowbadge/internal/store"
	"libdb.so/glowbadge/internal/strip"
)

// APPrefix prefixes the provisioning access point name.
const APPrefix = "glowbadge"

// Daemon is the main glowbadge daemon.
type Daemon struct {
	cfg    *Config
	logger *slog.Logger

	// Radio is the network interface. It defaults to the host interface named
	// in the configuration.
	Radio connectivity.Radio
	// Display receives the screen drawn as half blocks. It may be nil.
	Display io.Writer
	// ANSI redraws the terminal screen in place.
	ANSI bool
}

// NewDaemon creates a new glowbadge daemon.
func NewDaemon(cfg *Config, logger *slog.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return &Daemon{
		cfg:    cfg,
		logger: logger,
		Radio:  &connectivity.HostRadio{Interface: cfg.WiFi.Interface},
	}, nil
}

// Run boots the badge and runs the main loop. It blocks until the given
// context is canceled. The connection attempt at boot is not cancelable and
// may take up to the configured wifi timeout.
func (d *Daemon) Run(ctx context.Context) error {
	var docs documents
	st, err := store.Open(d.cfg.Storage)
	if err != nil {
		d.logger.Warn(
			"failed to open document store, running unconfigured",
			"path", d.cfg.Storage,
			"error", err)
	} else {
		defer st.Close()
		docs = st
	}

	b, input := d.loadDocuments(docs)

	sink, err := d.openSink()
	if err != nil {
		return err
	}
	defer sink.Close()

	state, err := NewDeviceState(b, anim.TrailConfig{
		Pixels: d.cfg.Pixels,
		Fade:   d.cfg.Fade.D(),
	}, sink, rand.New(rand.NewSource(time.Now().UnixNano())), d.logger)
	if err != nil {
		return err
	}

	outputs := d.displayOutputs()
	for _, out := range outputs {
		if c, ok := out.(io.Closer); ok {
			defer c.Close()
		}
	}

	screen := display.NewScreen(outputs...)
	clock := connectivity.NewSystemClock()

	surfaces := &surfaces{
		cfg:    d.cfg,
		state:  state,
		screen: screen,
		docs:   docs,
		logger: d.logger,
	}

	machine := connectivity.NewMachine(connectivity.Config{
		Timeout: d.cfg.WiFi.Timeout.D(),
		Poll:    d.cfg.WiFi.Poll.D(),
		APName:  connectivity.APName(APPrefix, d.hardwareID()),
		OnPoll:  surfaces.bootProgress,
	}, d.Radio, surfaces, clock, d.logger)

	if !input.Absent && !input.Invalid {
		surfaces.showConnecting(input.SSID)
	}

	out := machine.Run(input)
	d.logger.Info(
		"booted",
		"mode", out.Mode,
		"result", out.Result,
		"addr", out.Addr)

	screen.Clear()
	renderer := badge.NewRenderer(state.Badge, screen, d.Radio)
	if err := renderer.Register(state.Events); err != nil {
		return errors.Wrap(err, "failed to register renderers")
	}

	if err := state.Trail.Start(clock.Now()); err != nil {
		return errors.Wrap(err, "failed to start trail")
	}

	errg, ctx := errgroup.WithContext(ctx)

	if serial, ok := sink.(*strip.Serial); ok {
		errg.Go(func() error {
			return serial.Run(ctx)
		})
	}

	for _, service := range surfaces.services {
		service := service
		errg.Go(func() error {
			return service(ctx)
		})
	}

	errg.Go(func() error {
		return d.mainLoop(ctx, state, clock)
	})

	return errg.Wait()
}

func (d *Daemon) mainLoop(ctx context.Context, state *DeviceState, clock connectivity.Clock) error {
	ticker := time.NewTicker(time.Second / time.Duration(d.cfg.Rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Debug(
				"main loop stopped",
				"iterations", state.Iterations(),
				"dropped_fades", state.Trail.Dropped())
			return ctx.Err()
		case <-ticker.C:
			state.Iterate(clock.Now())
		}
	}
}

// displayOutputs opens the screen outputs. A panel that fails to open is
// logged and skipped.
func (d *Daemon) displayOutputs() []display.Output {
	var outputs []display.Output
	if d.Display != nil {
		outputs = append(outputs, display.NewTerminal(d.Display, d.ANSI))
	}

	if d.cfg.Display.Bus != "" {
		oled, err := display.OpenOLED(d.cfg.Display.Bus)
		if err != nil {
			d.logger.Warn(
				"failed to open display, continuing without it",
				"bus", d.cfg.Display.Bus,
				"error", err)
		} else {
			outputs = append(outputs, oled)
		}
	}

	return outputs
}

func (d *Daemon) openSink() (strip.Sink, error) {
	if d.cfg.Device == "" {
		d.logger.Debug("no serial device configured, keeping frames in memory")
		return &strip.Null{}, nil
	}

	s, err := strip.OpenSerial(d.cfg.Device, d.cfg.Baud, d.cfg.Pixels, d.logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// loadDocuments loads the badge identity and the network configuration.
// Missing or broken documents never fail the boot.
func (d *Daemon) loadDocuments(docs documents) (badge.Badge, connectivity.Input) {
	b := badge.Default()
	input := connectivity.Input{Absent: true}

	if docs == nil {
		return b, input
	}

	data, err := docs.Read(badge.ConfFile)
	switch {
	case err == nil:
		if b, err = badge.ParseConf(data); err != nil {
			d.logger.Warn(
				"using default badge",
				"error", err)
		}
	case !errors.Is(err, store.ErrNotFound):
		d.logger.Warn(
			"failed to read badge configuration",
			"error", err)
	}

	data, err = docs.Read(badge.WiFiFile)
	switch {
	case err == nil:
		wifi, err := badge.ParseWiFi(data)
		if err != nil {
			d.logger.Warn(
				"invalid network configuration",
				"error", err)
			return b, connectivity.Input{Invalid: true}
		}
		input = connectivity.Input{SSID: wifi.SSID, Pass: wifi.Pass}
	case !errors.Is(err, store.ErrNotFound):
		d.logger.Warn(
			"failed to read network configuration",
			"error", err)
		input = connectivity.Input{Invalid: true}
	}

	return b, input
}

func (d *Daemon) hardwareID() string {
	if d.cfg.HardwareID != "" {
		return d.cfg.HardwareID
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return APPrefix
}
