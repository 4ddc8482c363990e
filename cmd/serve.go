package main

import (
	"context"
	"encoding/json"
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

	"github.com/ammosight/catalog-cli/internal/model"
	"github.com/ammosight/catalog-cli/internal/monitoring"
	"github.com/ammosight/catalog-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the operational HTTP server",
	Long:  "Serves health, metrics, run history, and webhook ingestion endpoints, and runs background alert checks.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		collector := monitoring.NewCollector(env.Store)

		// Background alert checker.
		checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
		go checker.Run(ctx)

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.RealIP)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
			lookback := cfg.Monitoring.LookbackWindowHours
			if h := req.URL.Query().Get("lookback_hours"); h != "" {
				if parsed, parseErr := strconv.Atoi(h); parseErr == nil && parsed > 0 {
					lookback = parsed
				}
			}
			snap, collectErr := collector.Collect(req.Context(), lookback)
			if collectErr != nil {
				zap.L().Error("metrics collection failed", zap.Error(collectErr))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "metrics collection failed"})
				return
			}
			writeJSON(w, http.StatusOK, snap)
		})

		r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
			filter := store.RunFilter{
				Status:     model.RunStatus(req.URL.Query().Get("status")),
				RetailerID: req.URL.Query().Get("retailer"),
				Limit:      50,
			}
			if l := req.URL.Query().Get("limit"); l != "" {
				if parsed, parseErr := strconv.Atoi(l); parseErr == nil && parsed > 0 {
					filter.Limit = parsed
				}
			}
			runs, listErr := env.Store.ListRuns(req.Context(), filter)
			if listErr != nil {
				zap.L().Error("list runs failed", zap.Error(listErr))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list runs failed"})
				return
			}
			writeJSON(w, http.StatusOK, runs)
		})

		r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
			run, getErr := env.Store.GetRun(req.Context(), chi.URLParam(req, "id"))
			if getErr != nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
				return
			}
			writeJSON(w, http.StatusOK, run)
		})

		r.Post("/ingest", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				RetailerID string `json:"retailer_id"`
				FeedID     string `json:"feed_id"`
				Format     string `json:"format"`
				URL        string `json:"url"`
			}
			if decodeErr := json.NewDecoder(req.Body).Decode(&body); decodeErr != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			if body.RetailerID == "" || body.FeedID == "" || body.URL == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "retailer_id, feed_id, and url are required"})
				return
			}
			if !model.ValidFormat(model.FeedFormat(body.Format)) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported format"})
				return
			}

			entry := manifestEntry{
				RetailerID: body.RetailerID,
				FeedID:     body.FeedID,
				Format:     body.Format,
				Source:     body.URL,
			}

			// Ingest asynchronously; the webhook caller only needs an ack.
			go func() {
				run, ingestErr := ingestOne(ctx, entry, initFetcher(), env.Pipeline)
				if ingestErr != nil {
					zap.L().Error("webhook ingest failed",
						zap.String("retailer", entry.RetailerID),
						zap.String("feed", entry.FeedID),
						zap.Error(ingestErr),
					)
					return
				}
				zap.L().Info("webhook ingest complete",
					zap.String("run_id", run.ID),
					zap.Int("indexable", run.Result.Indexable),
				)
			}()

			writeJSON(w, http.StatusAccepted, map[string]string{
				"status": "accepted",
				"feed":   body.FeedID,
			})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go drainOnSignal(ctx, srv, 10*time.Second)

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// drainOnSignal shuts the server down once the signal context is cancelled.
// Shutdown gets a fresh timeout context so in-flight requests can finish; the
// signal context is already cancelled at that point and would cut them off.
func drainOnSignal(ctx context.Context, srv *http.Server, timeout time.Duration) {
	<-ctx.Done()
	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
