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
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/engine"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		canCompose := cfg.Anthropic.Key != ""
		eng, s, err := initEngine(ctx, canCompose, false)
		if err != nil {
			return err
		}
		defer s.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(eng, s, canCompose),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("server listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	},
}

func newRouter(eng *engine.Engine, s store.Store, canCompose bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/attempts", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			limit, _ := strconv.Atoi(q.Get("limit"))
			offset, _ := strconv.Atoi(q.Get("offset"))
			attempts, err := s.ListAttempts(req.Context(), store.AttemptFilter{
				Wave:      q.Get("wave"),
				CompanyID: q.Get("company"),
				State:     model.AttemptState(q.Get("state")),
				Limit:     limit,
				Offset:    offset,
			})
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, attempts)
		})

		r.Get("/attempts/{id}", func(w http.ResponseWriter, req *http.Request) {
			att, err := s.GetAttempt(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, att)
		})

		r.Get("/budgets", func(w http.ResponseWriter, req *http.Request) {
			usage, err := s.ListBudgetUsage(req.Context(), req.URL.Query().Get("wave"))
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, usage)
		})

		r.Get("/followups/due", func(w http.ResponseWriter, req *http.Request) {
			due, err := s.DueForFollowUp(req.Context(), time.Now().UTC())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, due)
		})

		r.Get("/review/pending", func(w http.ResponseWriter, req *http.Request) {
			pending, err := s.PendingReview(req.Context(), req.URL.Query().Get("wave"))
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, pending)
		})

		r.Post("/attempts/{id}/compose", func(w http.ResponseWriter, req *http.Request) {
			if !canCompose {
				writeError(w, http.StatusServiceUnavailable, fmt.Errorf("message generation is not configured"))
				return
			}
			id := chi.URLParam(req, "id")
			if err := eng.ComposeAttempt(req.Context(), id); err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "composed"})
		})

		r.Post("/waves/{wave}/classify", func(w http.ResponseWriter, req *http.Request) {
			created, err := eng.ClassifyWave(req.Context(), chi.URLParam(req, "wave"))
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]int{"attempts_created": created})
		})

		r.Post("/signals", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				AttendeeID string `json:"attendee_id"`
				Wave       string `json:"wave"`
				Signal     string `json:"signal"`
				At         string `json:"at"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			at := time.Now().UTC()
			if body.At != "" {
				parsed, err := time.Parse(time.RFC3339, body.At)
				if err != nil {
					writeError(w, http.StatusBadRequest, err)
					return
				}
				at = parsed
			}
			sig := model.Signal(body.Signal)
			if body.AttendeeID == "" || body.Wave == "" ||
				(sig != model.SignalReplied && sig != model.SignalClaimed) {
				writeError(w, http.StatusBadRequest, fmt.Errorf("attendee_id, wave, and a valid signal are required"))
				return
			}
			if err := eng.ApplySignal(req.Context(), body.AttendeeID, body.Wave, sig, at); err != nil {
				writeError(w, http.StatusConflict, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
