package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"
	"libdb.so/glowbadge"
)

var (
	config   = "glowbadge.toml"
	verbose  = false
	screen   = false
	setWiFi  = ""
	forget   = false
	listDocs = false
)

func init() {
	pflag.StringVarP(&config, "config", "c", config, "configuration file")
	pflag.BoolVarP(&verbose, "verbose", "v", verbose, "verbose output")
	pflag.BoolVar(&screen, "screen", screen, "draw the badge display on stdout")
	pflag.StringVar(&setWiFi, "set-wifi", setWiFi, "save network `ssid[:pass]` for the next boot and exit")
	pflag.BoolVar(&forget, "forget-wifi", forget, "forget the saved network and exit")
	pflag.BoolVar(&listDocs, "documents", listDocs, "list the stored documents and exit")
}

func main() {
	pflag.Parse()

	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := readConfig()
	if err != nil {
		return err
	}

	switch {
	case setWiFi != "":
		ssid, pass, _ := strings.Cut(setWiFi, ":")
		if err := glowbadge.SetWiFi(cfg.Storage, ssid, pass); err != nil {
			return err
		}
		fmt.Printf("saved network %q for the next boot\n", ssid)
		return nil
	case forget:
		return glowbadge.ForgetWiFi(cfg.Storage)
	case listDocs:
		names, err := glowbadge.Documents(cfg.Storage)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	d, err := glowbadge.NewDaemon(cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if screen {
		d.Display = os.Stdout
		d.ANSI = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	}

	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("daemon failed: %w", err)
	}

	return nil
}

func readConfig() (*glowbadge.Config, error) {
	f, err := os.Open(config)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("no config file, using defaults", "path", config)
			cfg := glowbadge.DefaultConfig()
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	return glowbadge.ParseConfig(f)
}
