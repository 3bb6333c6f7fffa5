package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/teds/internal/acquire"
	"github.com/banshee-data/teds/internal/api"
	"github.com/banshee-data/teds/internal/db"
	"github.com/banshee-data/teds/internal/monitoring"
)

func runServe(e *env, args []string) error {
	fs := e.flags("serve")
	configPath := fs.String("config", "", "JSON config file")
	listen := fs.String("listen", "", "HTTP listen address (overrides listen)")
	dbPath := fs.String("db", "", "database path (overrides database_path)")
	port := fs.String("port", "", "serial port for POST /api/acquire (overrides serial_port)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	database, err := db.NewDB(firstNonEmpty(*dbPath, cfg.GetDatabasePath()))
	if err != nil {
		return err
	}
	defer database.Close()

	opts := api.Options{HasPreamble: cfg.GetHasPreamble()}
	if path := firstNonEmpty(*port, cfg.GetSerialPort()); path != "" {
		reader, err := acquire.Open(path, cfg.PortOptions(), openPort)
		if err != nil {
			return err
		}
		defer reader.Close()
		opts.Reader = reader
		monitoring.Logf("acquisition enabled on %s", path)
	}

	mux := api.NewServer(database, opts).ServeMux()
	if err := database.AttachAdminRoutes(mux); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", firstNonEmpty(*listen, cfg.GetListen()))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, ln, api.LoggingMiddleware(mux))
}

// serve runs h on ln until ctx is cancelled, then shuts the server down.
func serve(ctx context.Context, ln net.Listener, h http.Handler) error {
	server := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var (
		wg       sync.WaitGroup
		serveErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		monitoring.Logf("listening on %s", ln.Addr())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return serveErr
	case <-ctx.Done():
	}

	monitoring.Logf("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}
	wg.Wait()
	monitoring.Logf("graceful shutdown complete")
	return serveErr
}
