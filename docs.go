package glowbadge

import (
	"github.com/pkg/errors"
	"libdb.so/glowbadge/internal/badge"
	"libdb.so/glowbadge/internal/store"
)

// SetWiFi saves the network the badge joins on its next boot into the store
// at path.
func SetWiFi(path, ssid, pass string) error {
	data, err := badge.MarshalWiFi(badge.WiFi{SSID: ssid, Pass: pass})
	if err != nil {
		return err
	}

	return withStore(path, func(s *store.Store) error {
		return errors.Wrap(s.Write(badge.WiFiFile, data), "failed to save network")
	})
}

// ForgetWiFi removes the saved network from the store at path, so the badge
// boots into setup mode.
func ForgetWiFi(path string) error {
	return withStore(path, func(s *store.Store) error {
		return errors.Wrap(s.Remove(badge.WiFiFile), "failed to forget network")
	})
}

// Documents returns the names of the documents in the store at path.
func Documents(path string) ([]string, error) {
	var names []string
	err := withStore(path, func(s *store.Store) error {
		var err error
		names, err = s.List()
		return err
	})
	return names, err
}

func withStore(path string, f func(*store.Store) error) error {
	s, err := store.Open(path)
	if err != nil {
		return err
	}
	defer s.Close()

	return f(s)
}
