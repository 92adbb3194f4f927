// Package assets hosts the HTTP surface of the asset pipeline: the bundle
// endpoint, raw source serving for debug mode, and a health check.
package assets

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/assetpipe/internal/bundle"
)

const shutdownTimeout = 10 * time.Second

// Config defines the inputs for the assets HTTP server.
type Config struct {
	HTTPAddr string
	// Route is the URL prefix of the bundle endpoint, e.g. "/bundle".
	Route string
	// SourcePrefix is the URL prefix raw source files are served from in
	// debug mode, e.g. "/src".
	SourcePrefix string
	// SourceRoot is the directory behind SourcePrefix.
	SourceRoot string
	// Debug enables raw source serving.
	Debug bool
}

// Server hosts the assets HTTP server.
type Server struct {
	httpAddr   string
	httpServer *http.Server
}

// NewServer wires the bundle endpoint around the given builder.
func NewServer(config Config, builder *bundle.Builder) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	handler, err := NewHandler(config, builder)
	if err != nil {
		return nil, err
	}
	return &Server{
		httpAddr:   httpAddr,
		httpServer: &http.Server{Addr: httpAddr, Handler: handler},
	}, nil
}

// NewHandler assembles the route handlers. It is the test-oriented
// entrypoint; NewServer adds the listener lifecycle on top.
func NewHandler(config Config, builder *bundle.Builder) (http.Handler, error) {
	if builder == nil {
		return nil, errors.New("bundle builder is required")
	}
	route := strings.TrimSuffix(strings.TrimSpace(config.Route), "/")
	if route == "" {
		route = "/bundle"
	}

	mux := http.NewServeMux()
	h := handlers{builder: builder}
	mux.HandleFunc("GET "+route+"/{name}", h.handleBundle)
	mux.HandleFunc("GET /healthz", h.handleHealth)

	if config.Debug {
		prefix := strings.TrimSuffix(strings.TrimSpace(config.SourcePrefix), "/")
		if prefix == "" {
			prefix = "/src"
		}
		if strings.TrimSpace(config.SourceRoot) == "" {
			return nil, errors.New("source root is required in debug mode")
		}
		fileServer := http.FileServer(http.Dir(config.SourceRoot))
		mux.Handle("GET "+prefix+"/", http.StripPrefix(prefix+"/", fileServer))
	}
	return mux, nil
}

// ListenAndServe blocks until ctx is cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("assets server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("assets listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
