package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
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

	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/budget"
	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/calerr"
	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/monitoring"
	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/selector"
	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the calibration HTTP API",
	Long:  "Serves standard selection, budget computation, and health endpoints over HTTP.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate before serve")
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildRouter(st, cfg.Monitoring.LookbackHours),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildRouter assembles the API routes. Split out from serveCmd so tests can
// exercise the handlers without binding a port.
func buildRouter(st store.Store, lookbackHours int) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/status", func(w http.ResponseWriter, req *http.Request) {
		snap, err := monitoring.NewCollector(st).Collect(req.Context(), lookbackHours)
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, snap)
	})

	r.Post("/api/jobs/{id}/standards/select", func(w http.ResponseWriter, req *http.Request) {
		jobID, ok := jobIDParam(w, req)
		if !ok {
			return
		}

		// Body is optional: an empty request reselects with the job's stored
		// equipment and date.
		var body struct {
			InwardEqpID  int64             `json:"inward_eqp_id"`
			JobDate      string            `json:"job_date"`
			LabOverrides map[string]string `json:"lab_overrides"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		params := selector.Params{
			JobID:        jobID,
			InwardEqpID:  body.InwardEqpID,
			LabOverrides: body.LabOverrides,
		}
		if body.JobDate != "" {
			d, err := time.Parse("2006-01-02", body.JobDate)
			if err != nil {
				respondJSON(w, http.StatusBadRequest, map[string]string{"error": "job_date must be YYYY-MM-DD"})
				return
			}
			params.JobDate = d
		}

		result, err := selector.New(st).Select(req.Context(), params)
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, result)
	})

	r.Post("/api/jobs/{id}/budget/compute", func(w http.ResponseWriter, req *http.Request) {
		jobID, ok := jobIDParam(w, req)
		if !ok {
			return
		}

		result, err := budget.New(st).Compute(req.Context(), jobID)
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, result)
	})

	r.Get("/api/jobs/{id}/snapshots", func(w http.ResponseWriter, req *http.Request) {
		jobID, ok := jobIDParam(w, req)
		if !ok {
			return
		}

		if _, err := st.GetJob(req.Context(), jobID); err != nil {
			writeError(w, err)
			return
		}
		snaps, err := st.ListStandardSnapshots(req.Context(), jobID)
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, snaps)
	})

	r.Get("/api/jobs/{id}/budget", func(w http.ResponseWriter, req *http.Request) {
		jobID, ok := jobIDParam(w, req)
		if !ok {
			return
		}

		if _, err := st.GetJob(req.Context(), jobID); err != nil {
			writeError(w, err)
			return
		}
		budgets, err := st.ListUncertaintyBudgets(req.Context(), jobID)
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, budgets)
	})

	return r
}

// jobIDParam parses the {id} URL parameter, writing a 400 on failure.
func jobIDParam(w http.ResponseWriter, req *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid job id"})
		return 0, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// writeError maps domain errors onto HTTP statuses: unknown entities are 404,
// missing reference configuration and unmet preconditions are 422, anything
// else is a 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case calerr.IsNotFound(err):
		respondJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case calerr.IsConfigMissing(err), calerr.IsPrecondition(err):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	default:
		zap.L().Error("request failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
