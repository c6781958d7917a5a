package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadgrid/lead-engine/internal/model"
	"github.com/leadgrid/lead-engine/internal/routing"
	"github.com/leadgrid/lead-engine/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ingest webhook server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/webhook/ingest", func(w http.ResponseWriter, req *http.Request) {
			var records []model.RawContactRecord
			if err := json.NewDecoder(req.Body).Decode(&records); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			if len(records) == 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty batch"})
				return
			}
			for i := range records {
				if records[i].Row == 0 {
					records[i].Row = i + 1
				}
			}

			// Batches run asynchronously; the caller polls the run record.
			go func() {
				result, runErr := env.Pipeline.Run(ctx, "webhook", records)
				if runErr != nil {
					zap.L().Error("webhook ingest failed", zap.Error(runErr))
					return
				}
				zap.L().Info("webhook ingest complete",
					zap.Int("created", result.Created),
					zap.Int("rejected", result.Rejected),
					zap.Int("assignments", result.Assignments),
				)
			}()

			writeJSON(w, http.StatusAccepted, map[string]any{
				"status":  "accepted",
				"records": len(records),
			})
		})

		r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
			run, getErr := env.Store.GetIngestRun(req.Context(), chi.URLParam(req, "id"))
			if getErr != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
				return
			}
			if run == nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
				return
			}
			writeJSON(w, http.StatusOK, run)
		})

		r.Post("/marketplace/acquire", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				LeadID       string `json:"lead_id"`
				SubscriberID string `json:"subscriber_id"`
				WorkspaceID  string `json:"workspace_id"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			if body.LeadID == "" || body.SubscriberID == "" || body.WorkspaceID == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "lead_id, subscriber_id, and workspace_id are required"})
				return
			}

			a, created, acqErr := routing.AcquireLead(req.Context(), env.Store, body.LeadID, body.SubscriberID, body.WorkspaceID)
			switch {
			case eris.Is(acqErr, routing.ErrLeadNotFound):
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "lead not found"})
				return
			case eris.Is(acqErr, routing.ErrSameTenantPurchase):
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "lead was sourced by your workspace"})
				return
			case acqErr != nil:
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "acquisition failed"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"assignment": a, "created": created})
		})

		r.Get("/subscribers/{id}/assignments", func(w http.ResponseWriter, req *http.Request) {
			assignments, listErr := env.Store.ListAssignments(req.Context(), store.AssignmentFilter{
				SubscriberID: chi.URLParam(req, "id"),
			})
			if listErr != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
				return
			}
			writeJSON(w, http.StatusOK, assignments)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			// The signal context is already canceled; give in-flight
			// requests their own drain window.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
