package web

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"libdb.so/glowbadge/internal/badge"
)

type memDocs map[string][]byte

func (m memDocs) Write(name string, data []byte) error {
	m[name] = data
	return nil
}

type failingDocs struct{}

func (failingDocs) Write(string, []byte) error { return errors.New("read-only") }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func do(t *testing.T, s *Service, r *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal("failed to decode response:", err)
	}
	return resp
}

func TestRoot(t *testing.T) {
	s := NewOperational("", discardLogger())
	w := do(t, s, httptest.NewRequest("GET", "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != Greeting {
		t.Errorf("body = %q, want %q", got, Greeting)
	}
}

func TestIsSetupMode(t *testing.T) {
	tests := []struct {
		name    string
		service *Service
		want    bool
	}{
		{"operational", NewOperational("", discardLogger()), false},
		{"provisioning", NewProvisioning("", memDocs{}, discardLogger()), true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			w := do(t, test.service, httptest.NewRequest("GET", "/api/v1/setup/isSetupMode", nil))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}

			want := Response{Status: StatusOK, Data: test.want}
			if diff := cmp.Diff(want, decode(t, w)); diff != "" {
				t.Error("unexpected response (-want +got):", diff)
			}
		})
	}
}

func TestNotFound(t *testing.T) {
	s := NewOperational("", discardLogger())
	w := do(t, s, httptest.NewRequest("GET", "/nope?b=2&a=1", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}

	want := "File Not Found\n\n" +
		"URI: /nope\n" +
		"Method: GET\n" +
		"Arguments: 2\n" +
		" a: 1\n" +
		" b: 2\n"
	if diff := cmp.Diff(want, w.Body.String()); diff != "" {
		t.Error("unexpected body (-want +got):", diff)
	}
}

func TestSetWiFiAPOnlyProvisioning(t *testing.T) {
	s := NewOperational("", discardLogger())
	r := postForm("/api/v1/setup/setWiFiAP", url.Values{"ssid": {"home"}})

	if w := do(t, s, r); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestSetWiFiAP(t *testing.T) {
	docs := memDocs{}
	s := NewProvisioning("", docs, discardLogger())

	w := do(t, s, postForm("/api/v1/setup/setWiFiAP", url.Values{
		"ssid": {"home"},
		"pass": {"hunter22"},
	}))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body)
	}

	got, err := badge.ParseWiFi(docs[badge.WiFiFile])
	if err != nil {
		t.Fatal("saved document does not parse:", err)
	}
	if diff := cmp.Diff(badge.WiFi{SSID: "home", Pass: "hunter22"}, got); diff != "" {
		t.Error("unexpected saved network (-want +got):", diff)
	}
}

func TestSetWiFiAPRejects(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
		docs DocumentWriter
		code int
	}{
		{"missing ssid", url.Values{"pass": {"x"}}, memDocs{}, http.StatusBadRequest},
		{"long ssid", url.Values{"ssid": {strings.Repeat("s", 33)}}, memDocs{}, http.StatusBadRequest},
		{"long pass", url.Values{"ssid": {"a"}, "pass": {strings.Repeat("p", 64)}}, memDocs{}, http.StatusBadRequest},
		{"store failure", url.Values{"ssid": {"a"}}, failingDocs{}, http.StatusInternalServerError},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := NewProvisioning("", test.docs, discardLogger())
			w := do(t, s, postForm("/api/v1/setup/setWiFiAP", test.form))
			if w.Code != test.code {
				t.Fatalf("status = %d, want %d", w.Code, test.code)
			}
			if resp := decode(t, w); resp.Status != StatusError {
				t.Errorf("status field = %q, want %q", resp.Status, StatusError)
			}
			if docs, ok := test.docs.(memDocs); ok && len(docs) != 0 {
				t.Error("rejected request saved a document")
			}
		})
	}
}

func postForm(target string, form url.Values) *http.Request {
	r := httptest.NewRequest("POST", target, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}
