package connectivity

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Signal strengths reported by HostRadio, in dBm.
const (
	hostSignalJoined = -50
	hostSignalNone   = -100
)

// hostAddrTTL is how long a looked up interface address is reused.
const hostAddrTTL = time.Second

// DefaultAPAddr is the address a badge hands itself as an access point.
const DefaultAPAddr = "192.168.4.1"

// MaxSSIDLen and MaxPassLen are the 802.11 limits on network names and
// WPA passphrases.
const (
	MaxSSIDLen = 32
	MaxPassLen = 63
)

// HostRadio is a Radio backed by a host network interface. The host is
// considered joined once the interface is up with a unicast address; the
// access point is emulated.
type HostRadio struct {
	// Interface is the interface to watch. Empty means any non-loopback
	// interface.
	Interface string

	mu     sync.Mutex
	ssid   string
	apName string

	addr   string
	addrAt time.Time
	cached bool

	// now and lookup default to time.Now and lookupHostAddr.
	now    func() time.Time
	lookup func(iface string) string
}

var _ Radio = (*HostRadio)(nil)

// Join implements Radio.
func (r *HostRadio) Join(ssid, pass string) error {
	if len(ssid) > MaxSSIDLen {
		return errors.Errorf("ssid longer than %d bytes", MaxSSIDLen)
	}
	if len(pass) > MaxPassLen {
		return errors.Errorf("passphrase longer than %d bytes", MaxPassLen)
	}

	r.mu.Lock()
	r.ssid = ssid
	r.apName = ""
	r.cached = false
	r.mu.Unlock()
	return nil
}

// Joined implements Radio.
func (r *HostRadio) Joined() bool {
	r.mu.Lock()
	joining := r.ssid != ""
	r.mu.Unlock()

	return joining && r.hostAddr() != ""
}

// StartAccessPoint implements Radio.
func (r *HostRadio) StartAccessPoint(name string) error {
	if name == "" || len(name) > MaxSSIDLen {
		return errors.Errorf("invalid access point name %q", name)
	}

	r.mu.Lock()
	r.ssid = ""
	r.apName = name
	r.mu.Unlock()
	return nil
}

// Addr implements Radio.
func (r *HostRadio) Addr() string {
	r.mu.Lock()
	ap := r.apName != ""
	r.mu.Unlock()

	if ap {
		return DefaultAPAddr
	}
	return r.hostAddr()
}

// Signal implements Radio.
func (r *HostRadio) Signal() int {
	if r.Joined() {
		return hostSignalJoined
	}
	return hostSignalNone
}

// hostAddr returns the interface address, looking it up again at most once
// every hostAddrTTL.
func (r *HostRadio) hostAddr() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now
	if r.now != nil {
		now = r.now
	}
	t := now()
	if r.cached && t.Sub(r.addrAt) < hostAddrTTL {
		return r.addr
	}

	lookup := lookupHostAddr
	if r.lookup != nil {
		lookup = r.lookup
	}
	r.addr = lookup(r.Interface)
	r.addrAt = t
	r.cached = true
	return r.addr
}

// lookupHostAddr returns the first IPv4 unicast address of an up, non-loopback
// interface. An empty name matches any interface.
func lookupHostAddr(name string) string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}

	for _, iface := range ifaces {
		if name != "" && iface.Name != name {
			continue
		}
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || !ipnet.IP.IsGlobalUnicast() {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				return ip4.String()
			}
		}
	}

	return ""
}
