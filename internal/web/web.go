// Package web serves the HTTP surface of the badge. The operational service
// answers status requests; the provisioning service also accepts network
// credentials for the next boot.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"libdb.so/glowbadge/internal/badge"
	"libdb.so/glowbadge/internal/connectivity"
)

// DefaultAddr is the address the service listens on when none is configured.
const DefaultAddr = ":80"

// Greeting is the body of GET /.
const Greeting = "Hello from glowbadge!"

// DocumentWriter persists documents. *store.Store implements it.
type DocumentWriter interface {
	Write(name string, data []byte) error
}

// Response is the JSON envelope of API responses.
type Response struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

// Response statuses.
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Service is an HTTP service surface.
type Service struct {
	mode   connectivity.Mode
	docs   DocumentWriter
	logger *slog.Logger
	server *http.Server
}

// NewOperational creates the operational service.
func NewOperational(addr string, logger *slog.Logger) *Service {
	return newService(addr, connectivity.Operational, nil, logger)
}

// NewProvisioning creates the provisioning service. Credentials posted to it
// are written into docs as wifi.json.
func NewProvisioning(addr string, docs DocumentWriter, logger *slog.Logger) *Service {
	return newService(addr, connectivity.Provisioning, docs, logger)
}

func newService(addr string, mode connectivity.Mode, docs DocumentWriter, logger *slog.Logger) *Service {
	if addr == "" {
		addr = DefaultAddr
	}

	s := &Service{
		mode:   mode,
		docs:   docs,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/api/v1/setup/isSetupMode", s.handleIsSetupMode)
	if mode == connectivity.Provisioning {
		mux.HandleFunc("/api/v1/setup/setWiFiAP", s.handleSetWiFiAP)
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Mode returns the mode the service was created for.
func (s *Service) Mode() connectivity.Mode { return s.mode }

// Handler returns the HTTP handler of the service.
func (s *Service) Handler() http.Handler { return s.server.Handler }

// Run serves until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is canceled.
func (s *Service) Serve(ctx context.Context, l net.Listener) error {
	s.logger.Info(
		"serving http",
		"mode", s.mode,
		"addr", l.Addr())

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(l) }()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server stopped")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	s.logger.Debug("shutting down http server")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "failed to shut down http server")
	}
	return ctx.Err()
}

func (s *Service) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" || r.Method != http.MethodGet {
		s.notFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, Greeting)
}

func (s *Service) handleIsSetupMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.notFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Status: StatusOK,
		Data:   s.mode == connectivity.Provisioning,
	})
}

func (s *Service) handleSetWiFiAP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.notFound(w, r)
		return
	}

	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form")
		return
	}

	wifi := badge.WiFi{
		SSID: r.PostForm.Get("ssid"),
		Pass: r.PostForm.Get("pass"),
	}

	switch {
	case wifi.SSID == "":
		writeError(w, http.StatusBadRequest, "missing ssid")
		return
	case len(wifi.SSID) > connectivity.MaxSSIDLen:
		writeError(w, http.StatusBadRequest, "ssid too long")
		return
	case len(wifi.Pass) > connectivity.MaxPassLen:
		writeError(w, http.StatusBadRequest, "pass too long")
		return
	}

	data, err := badge.MarshalWiFi(wifi)
	if err == nil {
		err = s.docs.Write(badge.WiFiFile, data)
	}
	if err != nil {
		s.logger.Warn(
			"failed to save network configuration",
			"ssid", wifi.SSID,
			"error", err)
		writeError(w, http.StatusInternalServerError, "failed to save")
		return
	}

	s.logger.Info(
		"saved network configuration for next boot",
		"ssid", wifi.SSID)

	writeJSON(w, http.StatusOK, Response{Status: StatusOK, Data: true})
}

func (s *Service) notFound(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()

	var b strings.Builder
	b.WriteString("File Not Found\n\n")
	fmt.Fprintf(&b, "URI: %s\n", r.URL.Path)
	fmt.Fprintf(&b, "Method: %s\n", r.Method)

	names := make([]string, 0, len(r.Form))
	for name := range r.Form {
		names = append(names, name)
	}
	sort.Strings(names)

	var args int
	for _, name := range names {
		args += len(r.Form[name])
	}
	fmt.Fprintf(&b, "Arguments: %d\n", args)
	for _, name := range names {
		for _, v := range r.Form[name] {
			fmt.Fprintf(&b, " %s: %s\n", name, v)
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	io.WriteString(w, b.String())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, Response{Status: StatusError, Data: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
