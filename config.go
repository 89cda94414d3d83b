package glowbadge

import (
	"encoding"
	"io"
	"net"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"libdb.so/glowbadge/internal/connectivity"
)

// Config is the configuration for the glowbadge daemon.
type Config struct {
	// Device is the path to the strip controller's serial device, usually
	// /dev/ttyUSB0 or /dev/ttyACM0. If empty, frames are kept in memory.
	Device string `toml:"device"`
	// Baud is the baud rate for the serial connection.
	Baud int `toml:"baud"`
	// Rate is the number of main loop iterations per second.
	Rate int `toml:"rate"`
	// Pixels is the number of pixels in the ring.
	Pixels int `toml:"pixels"`
	// Fade is how long a pixel vacated by the trail takes to go dark.
	Fade TOMLDuration `toml:"fade"`
	// Storage is the path to the document store.
	Storage string `toml:"storage"`
	// HardwareID names the device when deriving its access point name. If
	// empty, the host name is used.
	HardwareID string `toml:"hardware_id"`

	WiFi    WiFiConfig    `toml:"wifi"`
	Net     NetConfig     `toml:"net"`
	Web     WebConfig     `toml:"web"`
	Display DisplayConfig `toml:"display"`
}

// WiFiConfig configures the boot-time connection attempt.
type WiFiConfig struct {
	// Timeout bounds the connection attempt.
	Timeout TOMLDuration `toml:"timeout"`
	// Poll is the interval between connection checks.
	Poll TOMLDuration `toml:"poll"`
	// Interface is the host interface standing in for the radio.
	Interface string `toml:"interface"`
}

// NetConfig configures the command protocol.
type NetConfig struct {
	// Group is the multicast group commands are sent to.
	Group string `toml:"group"`
	// Port is the UDP port of the group.
	Port int `toml:"port"`
	// Server is the host:port echo replies go to.
	Server string `toml:"server"`
}

// WebConfig configures the HTTP service.
type WebConfig struct {
	// Addr is the listen address.
	Addr string `toml:"addr"`
}

// DisplayConfig configures the badge OLED.
type DisplayConfig struct {
	// Bus is the I2C bus of an SSD1306 panel, e.g. "/dev/i2c-1". If empty,
	// no panel is driven.
	Bus string `toml:"bus"`
}

// Defaults.
const (
	DefaultBaud    = 115200
	DefaultRate    = 60
	DefaultPixels  = 8
	DefaultFade    = 100 * time.Millisecond
	DefaultStorage = "glowbadge.db"
	DefaultGroup   = "239.13.37.1"
	DefaultPort    = 11337
	DefaultServer  = "10.13.37.100:11337"
	DefaultWebAddr = ":80"
)

// maxPixels is the largest strip the serial protocol can address.
const maxPixels = 0xFFFF

// DefaultConfig returns the configuration used for unset fields.
func DefaultConfig() Config {
	return Config{
		Baud:    DefaultBaud,
		Rate:    DefaultRate,
		Pixels:  DefaultPixels,
		Fade:    TOMLDuration(DefaultFade),
		Storage: DefaultStorage,
		WiFi: WiFiConfig{
			Timeout: TOMLDuration(connectivity.DefaultTimeout),
			Poll:    TOMLDuration(connectivity.DefaultPoll),
		},
		Net: NetConfig{
			Group:  DefaultGroup,
			Port:   DefaultPort,
			Server: DefaultServer,
		},
		Web: WebConfig{
			Addr: DefaultWebAddr,
		},
	}
}

// fillDefaults sets every unset field to its default.
func (c *Config) fillDefaults() {
	def := DefaultConfig()
	setDefault(&c.Baud, def.Baud)
	setDefault(&c.Rate, def.Rate)
	setDefault(&c.Pixels, def.Pixels)
	setDefault(&c.Fade, def.Fade)
	setDefault(&c.Storage, def.Storage)
	setDefault(&c.WiFi.Timeout, def.WiFi.Timeout)
	setDefault(&c.WiFi.Poll, def.WiFi.Poll)
	setDefault(&c.Net.Group, def.Net.Group)
	setDefault(&c.Net.Port, def.Net.Port)
	setDefault(&c.Net.Server, def.Net.Server)
	setDefault(&c.Web.Addr, def.Web.Addr)
}

func setDefault[T comparable](v *T, def T) {
	var zero T
	if *v == zero {
		*v = def
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Pixels < 1 || c.Pixels > maxPixels {
		return errors.Errorf("pixels must be within 1..%d, got %d", maxPixels, c.Pixels)
	}
	if c.Rate < 1 {
		return errors.Errorf("rate must be positive, got %d", c.Rate)
	}
	if c.Fade < 0 {
		return errors.Errorf("fade must not be negative, got %v", c.Fade)
	}
	if c.Device != "" && c.Baud < 1 {
		return errors.Errorf("baud must be positive, got %d", c.Baud)
	}
	if c.WiFi.Timeout <= 0 || c.WiFi.Poll <= 0 {
		return errors.New("wifi timeout and poll must be positive")
	}
	if ip := net.ParseIP(c.Net.Group); ip == nil || !ip.IsMulticast() {
		return errors.Errorf("net group %q is not a multicast address", c.Net.Group)
	}
	if c.Net.Port < 1 || c.Net.Port > 0xFFFF {
		return errors.Errorf("net port out of range: %d", c.Net.Port)
	}
	if _, _, err := net.SplitHostPort(c.Net.Server); err != nil {
		return errors.Wrap(err, "invalid net server")
	}
	return nil
}

// TOMLDuration is a duration that can be parsed from TOML.
type TOMLDuration time.Duration

var (
	_ encoding.TextUnmarshaler = (*TOMLDuration)(nil)
	_ encoding.TextMarshaler   = (*TOMLDuration)(nil)
)

func (d *TOMLDuration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = TOMLDuration(duration)
	return nil
}

func (d TOMLDuration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// D returns d as a time.Duration.
func (d TOMLDuration) D() time.Duration { return time.Duration(d) }

// ParseConfig parses a configuration from a reader. Unset fields take their
// defaults.
func ParseConfig(r io.Reader) (*Config, error) {
	var config Config
	if err := toml.NewDecoder(r).Decode(&config); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	config.fillDefaults()
	return &config, nil
}
