// Package api serves the TEDS codec and the sensor catalogue over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/teds/internal/db"
	"github.com/banshee-data/teds/internal/httputil"
	"github.com/banshee-data/teds/internal/monitoring"
	"github.com/banshee-data/teds/internal/version"
)

// ANSI escape codes for the request log.
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// maxBodyBytes bounds request bodies. A full TEDS is a few dozen bytes.
const maxBodyBytes = 1 << 20

// WordReader reads raw TEDS words from acquisition hardware.
type WordReader interface {
	ReadWords(ctx context.Context) ([]uint64, error)
}

// Options configures optional server features.
type Options struct {
	// Reader enables POST /api/acquire. Nil disables it.
	Reader WordReader
	// HasPreamble is assumed for hex decode requests that omit has_preamble.
	HasPreamble bool
}

// Server holds the handler dependencies.
type Server struct {
	db   *db.DB
	opts Options
}

// NewServer returns a server backed by database.
func NewServer(database *db.DB, opts Options) *Server {
	return &Server{db: database, opts: opts}
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/teds/decode", s.decode)
	mux.HandleFunc("POST /api/teds/encode", s.encode)
	mux.HandleFunc("GET /api/sensors", s.listSensors)
	mux.HandleFunc("POST /api/sensors", s.createSensor)
	mux.HandleFunc("GET /api/sensors/{id}", s.getSensor)
	mux.HandleFunc("DELETE /api/sensors/{id}", s.deleteSensor)
	mux.HandleFunc("GET /api/sensors/{id}/channel", s.sensorChannel)
	mux.HandleFunc("GET /api/sensors/{id}/dump", s.sensorDump)
	mux.HandleFunc("POST /api/acquire", s.acquire)
	mux.HandleFunc("GET /api/version", s.version)
	return mux
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	code := strconv.Itoa(statusCode)
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + code + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + code + colorReset
	case statusCode >= 400:
		return colorBoldRed + code + colorReset
	default:
		return code
	}
}

// LoggingMiddleware logs method, path, query, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) version(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, version.Info())
}
