package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/banshee-data/sensorsync/internal/api"
	"github.com/banshee-data/sensorsync/internal/config"
	"github.com/banshee-data/sensorsync/internal/monitoring"
	"github.com/banshee-data/sensorsync/internal/store"
)

const shutdownTimeout = 5 * time.Second

func serve(ctx context.Context, args []string, stderr io.Writer) error {
	fs, verbose := newFlagSet("serve", stderr)
	listen := fs.String("listen", ":9998", "Listen address")
	uploads := fs.String("uploads", "uploads", "Directory for uploaded logs")
	out := fs.String("out", "output", "Directory for job outputs")
	dbPath := fs.String("db", "", "SQLite run database (empty disables /api/runs)")
	configPath := fs.String("config", "", "Pipeline config applied to every job")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *listen == "" {
		return errors.New("listen address is required")
	}
	setupLogging(stderr, *verbose)

	defaults := config.EmptyPipelineConfig()
	if *configPath != "" {
		var err error
		if defaults, err = config.LoadPipelineConfig(*configPath); err != nil {
			return err
		}
	}
	opts := api.Options{UploadDir: *uploads, OutputDir: *out, Defaults: defaults}
	if *dbPath != "" {
		db, err := store.Open(*dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		opts.DB = db
		defaults.DatabasePath = dbPath
	}

	s := api.NewServer(opts)
	defer s.Close()
	server := &http.Server{Addr: *listen, Handler: s.Handler()}
	return listenUntilDone(ctx, server)
}

// listenUntilDone serves until ctx is cancelled, then shuts the server
// down gracefully.
func listenUntilDone(ctx context.Context, server *http.Server) error {
	errc := make(chan error, 1)
	go func() {
		monitoring.Logf("listening on %s", server.Addr)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	monitoring.Logf("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
