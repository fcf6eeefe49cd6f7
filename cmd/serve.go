package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geocover/internal/db"
	"github.com/sells-group/geocover/internal/metrics"
	"github.com/sells-group/geocover/internal/runlog"
)

var servePort int

// runLister is the part of *runlog.Log the HTTP surface reads.
type runLister interface {
	List(ctx context.Context, limit int) ([]runlog.Entry, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve health, metrics and run history over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		rl, closeRuns, err := openRunLog(ctx)
		if err != nil {
			return err
		}
		if closeRuns != nil {
			defer closeRuns()
		}

		return serveHTTP(ctx, cfg.Server.Port, buildRouter(rl, cfg.Server.CORSOrigins))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// openRunLog connects the run log when store.database_url is set. Without a
// database it returns a nil lister and /runs answers 503.
func openRunLog(ctx context.Context) (runLister, func(), error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, nil, nil
	}
	pool, err := db.Open(ctx, cfg.Store.DatabaseURL, db.PoolConfig{MaxConns: cfg.Store.MaxConns})
	if err != nil {
		return nil, nil, err
	}
	log := runlog.New(pool)
	if err := log.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return log, pool.Close, nil
}

// buildRouter mounts /health, /metrics and /runs. runs may be nil.
func buildRouter(runs runLister, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
		if runs == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "run log not configured"})
			return
		}
		limit := 0
		if s := req.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}
		entries, err := runs.List(req.Context(), limit)
		if err != nil {
			zap.L().Error("list runs failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list runs failed"})
			return
		}
		if entries == nil {
			entries = []runlog.Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// serveHTTP listens until ctx ends and then shuts down gracefully.
func serveHTTP(ctx context.Context, port int, h http.Handler) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}
