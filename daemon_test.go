package glowbadge

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"libdb.so/glowbadge/internal/badge"
	"libdb.so/glowbadge/internal/connectivity"
	"libdb.so/glowbadge/internal/display"
	"libdb.so/glowbadge/internal/led"
	"libdb.so/glowbadge/internal/store"
)

type memDocs map[string][]byte

func (m memDocs) Read(name string) ([]byte, error) {
	data, ok := m[name]
	if !ok {
		return nil, errors.Wrap(store.ErrNotFound, name)
	}
	return data, nil
}

func (m memDocs) Write(name string, data []byte) error {
	m[name] = data
	return nil
}

func testDaemon(t *testing.T) *Daemon {
	t.Helper()

	cfg := DefaultConfig()
	d, err := NewDaemon(&cfg, discardLogger())
	if err != nil {
		t.Fatal("NewDaemon:", err)
	}
	return d
}

func TestLoadDocuments(t *testing.T) {
	conf := []byte(`{"team": 3, "id": 12, "color": [255, 0, 0], "name": "Ada"}`)
	wifi := []byte(`{"ssid": "home", "pass": "secret"}`)

	tests := []struct {
		name  string
		docs  documents
		badge badge.Badge
		input connectivity.Input
	}{
		{
			name:  "no store",
			docs:  nil,
			badge: badge.Default(),
			input: connectivity.Input{Absent: true},
		},
		{
			name:  "empty store",
			docs:  memDocs{},
			badge: badge.Default(),
			input: connectivity.Input{Absent: true},
		},
		{
			name: "configured",
			docs: memDocs{
				badge.ConfFile: conf,
				badge.WiFiFile: wifi,
			},
			badge: badge.Badge{Team: 3, ID: 12, Color: led.RGB(255, 0, 0), Name: "Ada"},
			input: connectivity.Input{SSID: "home", Pass: "secret"},
		},
		{
			name: "broken documents",
			docs: memDocs{
				badge.ConfFile: []byte("{"),
				badge.WiFiFile: []byte("not json"),
			},
			badge: badge.Default(),
			input: connectivity.Input{Invalid: true},
		},
	}

	d := testDaemon(t)

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			b, input := d.loadDocuments(test.docs)
			if diff := cmp.Diff(test.badge, b); diff != "" {
				t.Error("unexpected badge (-want +got):", diff)
			}
			if diff := cmp.Diff(test.input, input); diff != "" {
				t.Error("unexpected input (-want +got):", diff)
			}
		})
	}
}

func newTestSurfaces(t *testing.T, docs documents) (*surfaces, *bytes.Buffer) {
	t.Helper()

	var out bytes.Buffer
	cfg := DefaultConfig()
	cfg.Web.Addr = "127.0.0.1:0"

	return &surfaces{
		cfg:    &cfg,
		state:  newTestState(t),
		screen: display.NewScreen(display.NewTerminal(&out, false)),
		docs:   docs,
		logger: discardLogger(),
	}, &out
}

// litBelow reports whether any pixel at or below row y is on.
func litBelow(s *display.Screen, y int) bool {
	img := s.Image()
	b := img.Bounds()
	for ; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.BitAt(x, y) {
				return true
			}
		}
	}
	return false
}

func TestBootProgress(t *testing.T) {
	s, out := newTestSurfaces(t, nil)
	s.showConnecting("home")

	for polls := 1; polls <= 8; polls++ {
		s.bootProgress(polls)
	}

	if got := s.screen.Line(lineBootTitle); got != "SSID: home" {
		t.Errorf("title = %q, want the SSID", got)
	}
	if got := s.screen.Line(lineBootProgress); got != ".." {
		t.Errorf("progress = %q, want 2 dots after 8 polls", got)
	}
	if !litBelow(s.screen, lineBootProgress*display.LinePitch) {
		t.Error("progress dots were not drawn")
	}
	if out.Len() == 0 {
		t.Error("nothing was flushed")
	}
}

func TestStartProvisioning(t *testing.T) {
	s, _ := newTestSurfaces(t, nil)

	err := s.StartProvisioning(connectivity.Outcome{
		Mode:   connectivity.Provisioning,
		Result: connectivity.ConfigAbsent,
		APName: "glowbadge-123abc",
		Addr:   connectivity.DefaultAPAddr,
	})
	if err != nil {
		t.Fatal("StartProvisioning:", err)
	}

	if len(s.services) != 1 {
		t.Fatalf("started %d services, want the web service only", len(s.services))
	}
	if s.state.Control != nil {
		t.Error("provisioning mode started the command listener")
	}

	want := [display.Lines]string{"AP: glowbadge-123abc", connectivity.DefaultAPAddr, "Setup Mode"}
	for line, text := range want {
		if got := s.screen.Line(line); got != text {
			t.Errorf("line %d = %q, want %q", line, got, text)
		}
	}

	// The service shuts down cleanly once canceled.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.services[0](ctx); err != nil {
		t.Error("service returned error:", err)
	}
}

func TestSaveBadge(t *testing.T) {
	docs := memDocs{}
	s, _ := newTestSurfaces(t, docs)

	b := badge.Default()
	b.Name = "Grace"
	if err := s.saveBadge(b); err != nil {
		t.Fatal("saveBadge:", err)
	}

	got, err := badge.ParseConf(docs[badge.ConfFile])
	if err != nil {
		t.Fatal("saved badge does not parse:", err)
	}
	if diff := cmp.Diff(b, got); diff != "" {
		t.Error("unexpected saved badge (-want +got):", diff)
	}

	s, _ = newTestSurfaces(t, nil)
	if err := s.saveBadge(b); !errors.Is(err, errStoreUnavailable) {
		t.Errorf("saveBadge without store = %v, want %v", err, errStoreUnavailable)
	}
}
