package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/facility-registry/internal/facility"
	"github.com/sells-group/facility-registry/internal/ingest"
	"github.com/sells-group/facility-registry/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the facility registry HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		return startServer(ctx, buildRouter(env), resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort prefers the flag over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves handler until ctx is cancelled, then shuts down gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
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

// buildRouter mounts the API routes over env.
func buildRouter(env *appEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	h := &apiHandler{env: env}
	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.HandlerFor(env.Registry, promhttp.HandlerOpts{}))
	r.Get("/facilities", h.search)
	r.Get("/facilities/match", h.match)
	r.Post("/uploads", h.upload)
	r.Post("/ingest", h.ingest)
	r.Post("/temps/{id}/confirm/{index}", h.confirm)
	return r
}

type apiHandler struct {
	env *appEnv
}

func (h *apiHandler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.env.Store.Ping(r.Context()); err != nil {
		writeError(w, r, model.Unavailable("ping", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *apiHandler) match(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.env.Engine.MatchFacility(r.Context(), q.Get("country"), q.Get("name"), q.Get("address"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *apiHandler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var contributors []string
	for _, v := range q["contributor"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				contributors = append(contributors, id)
			}
		}
	}
	res, err := h.env.Engine.SearchFacilities(r.Context(), facility.SearchQuery{
		Name:           q.Get("name"),
		Country:        q.Get("country"),
		ContributorIDs: contributors,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type uploadRequest struct {
	UploaderID   string         `json:"uploader_id"`
	UploaderName string         `json:"uploader_name"`
	UserType     string         `json:"user_type"`
	FileName     string         `json:"file_name"`
	Rows         []model.RawRow `json:"rows"`
}

func (h *apiHandler) upload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	res, err := h.env.Pipeline.Enqueue(r.Context(), ingest.Upload{
		UploaderID:   req.UploaderID,
		UploaderName: req.UploaderName,
		UserType:     req.UserType,
		File:         model.UploadFile{Name: req.FileName},
		Rows:         req.Rows,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (h *apiHandler) ingest(w http.ResponseWriter, r *http.Request) {
	maxRows := 0
	if v := r.URL.Query().Get("max_rows"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "max_rows must be a non-negative integer"})
			return
		}
		maxRows = n
	}
	n, err := h.env.Engine.IngestBatch(r.Context(), maxRows)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"processed": n})
}

func (h *apiHandler) confirm(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "index must be an integer"})
		return
	}
	c, err := h.env.Pipeline.Confirm(r.Context(), chi.URLParam(r, "id"), index)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrMissingField), errors.Is(err, model.ErrInvalidField):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingest.ErrNotProcessed), errors.Is(err, model.ErrCountryMismatch):
		return http.StatusConflict
	case errors.Is(err, model.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
