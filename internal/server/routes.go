package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /api/generate-video", h.GenerateVideo)
	mux.HandleFunc("GET /api/schema/generate-video", h.Schema)
	mux.HandleFunc("POST /api/extract-audio", h.ExtractAudio)

	mux.HandleFunc("POST /api/jobs", h.CreateJob)
	mux.HandleFunc("GET /api/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)

	mux.HandleFunc("POST /api/captions/import", h.ImportCaptions)
	mux.HandleFunc("POST /api/captions/analyze", h.AnalyzeCaptions)
	mux.HandleFunc("GET /api/templates", h.Templates)

	mux.HandleFunc("GET /videos/{name}", h.Video)

	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)
	return chain(mux)
}
