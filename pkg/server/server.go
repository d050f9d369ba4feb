package server

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/heyjunin/MP3presso/pkg/bitrate"
	"github.com/heyjunin/MP3presso/pkg/engine"
	"github.com/heyjunin/MP3presso/pkg/jobs"
	"github.com/heyjunin/MP3presso/pkg/logger"
)

//go:embed ui
var uiFS embed.FS

// DefaultMaxUploadBytes caps uploads at 2GB unless configured otherwise.
const DefaultMaxUploadBytes = 2 << 30

// Config holds the settings for the HTTP server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// DataDir is the root directory for uploads, staging and outputs.
	DataDir string
	// MaxUploadBytes limits the accepted upload size.
	MaxUploadBytes int64
	// Policy selects the target-size heuristic applied to every conversion.
	Policy bitrate.SizePolicy
	// MinKbps and MaxKbps clamp computed bitrates.
	MinKbps int
	MaxKbps int
	// Engine is the transcoding capability; defaults to the shared ffmpeg engine.
	Engine engine.Engine
	// Logger defaults to the package logger.
	Logger logger.Logger
}

// Server exposes the upload → convert → download workflow over HTTP, plus the
// embedded single-page UI that drives it.
type Server struct {
	cfg    Config
	store  *jobs.Store
	router *mux.Router
	eng    engine.Engine
	logger logger.Logger
}

// New creates a Server from the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.MinKbps == 0 {
		cfg.MinKbps = bitrate.MinKbps
	}
	if cfg.MaxKbps == 0 {
		cfg.MaxKbps = bitrate.MaxKbps
	}
	if cfg.Engine == nil {
		cfg.Engine = engine.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewLogger()
	}

	for _, dir := range []string{
		cfg.DataDir,
		filepath.Join(cfg.DataDir, "uploads"),
		filepath.Join(cfg.DataDir, "outputs"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	s := &Server{
		cfg:    cfg,
		store:  jobs.NewStore(),
		eng:    cfg.Engine,
		logger: cfg.Logger,
	}
	s.router = s.buildRouter()
	return s, nil
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.healthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/convert", s.convertHandler).Methods("POST")
	api.HandleFunc("/jobs/{id}", s.jobStatusHandler).Methods("GET")
	api.HandleFunc("/jobs/{id}/download", s.downloadHandler).Methods("GET")
	api.HandleFunc("/jobs/{id}", s.resetHandler).Methods("DELETE")

	// Single-page UI at the root
	ui, _ := fs.Sub(uiFS, "ui")
	r.PathPrefix("/").Handler(http.FileServer(http.FS(ui))).Methods("GET")

	r.Use(s.instrument)
	return r
}

// Handler returns the server's root http.Handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // long downloads
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "server", map[string]interface{}{
			"addr": s.cfg.Addr,
		})
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
