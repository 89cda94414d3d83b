// Package badge holds the badge identity, its persisted documents and the
// display renderers driven by the event table.
package badge

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"libdb.so/glowbadge/internal/led"
)

// ErrInvalid is wrapped by errors from documents that exist but cannot be
// parsed.
var ErrInvalid = errors.New("invalid document")

// Document names in the store.
const (
	ConfFile = "conf.json"
	WiFiFile = "wifi.json"
)

// Team and id limits. Persisted documents accept the full byte range; the
// command protocol uses the tighter event limits.
const (
	MaxTeam = 50
	MaxID   = 99
)

// DefaultColor is the badge color when none is configured.
var DefaultColor = led.RGB(0, 0, 128)

// Badge is the identity of a badge.
type Badge struct {
	Team  uint8
	ID    uint8
	Color led.RGBColor
	Name  Name
}

// Default returns the badge a device has before any configuration.
func Default() Badge {
	return Badge{
		Team:  1,
		ID:    1,
		Color: DefaultColor,
		Name:  DefaultName,
	}
}

// Label returns the short team label, e.g. "01-07".
func (b Badge) Label() string {
	return fmt.Sprintf("%02d-%02d", b.Team, b.ID)
}

type confDoc struct {
	Team  *int   `json:"team"`
	ID    *int   `json:"id"`
	Color []int  `json:"color,omitempty"`
	Name  string `json:"name"`
}

// ParseConf parses a conf.json document. Team and id are clamped to 1..255
// and colour channels to 0..255; a missing or malformed color falls back to
// DefaultColor.
func ParseConf(data []byte) (Badge, error) {
	var doc confDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return Default(), errors.Wrapf(ErrInvalid, "%s: %v", ConfFile, err)
	}

	b := Default()
	b.Team = uint8(clamp(deref(doc.Team), 1, 255))
	b.ID = uint8(clamp(deref(doc.ID), 1, 255))

	if len(doc.Color) == 3 {
		for i, v := range doc.Color {
			b.Color[i] = uint8(clamp(v, 0, 255))
		}
	}

	b.Name, _ = NewName(doc.Name)
	return b, nil
}

// MarshalConf formats b as a conf.json document.
func MarshalConf(b Badge) ([]byte, error) {
	team, id := int(b.Team), int(b.ID)
	doc := confDoc{
		Team:  &team,
		ID:    &id,
		Color: []int{int(b.Color[0]), int(b.Color[1]), int(b.Color[2])},
		Name:  string(b.Name),
	}
	return json.MarshalIndent(doc, "", "  ")
}

// WiFi is the network configuration in wifi.json.
type WiFi struct {
	SSID string `json:"ssid"`
	Pass string `json:"pass,omitempty"`
}

// ParseWiFi parses a wifi.json document.
func ParseWiFi(data []byte) (WiFi, error) {
	var w WiFi
	if err := json.Unmarshal(data, &w); err != nil {
		return WiFi{}, errors.Wrapf(ErrInvalid, "%s: %v", WiFiFile, err)
	}
	return w, nil
}

// MarshalWiFi formats w as a wifi.json document.
func MarshalWiFi(w WiFi) ([]byte, error) {
	return json.MarshalIndent(w, "", "  ")
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
