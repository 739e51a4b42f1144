// Package httpapi serves crosswalks over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"crosswalk/docs/schema/openapi"
	"crosswalk/internal/crosswalk"
	"crosswalk/internal/export"
	"crosswalk/internal/source"
	"crosswalk/pkg/domain"
)

// Resolver is the part of the core service the handler needs.
type Resolver interface {
	Resolve(ctx context.Context, src source.Source, scope domain.Scope) (crosswalk.Result, error)
	Render(ctx context.Context, format export.Format, res crosswalk.Result) (export.Rendered, error)
	Export(ctx context.Context, format export.Format, res crosswalk.Result) (export.Artifact, error)
}

// Logger is satisfied by *slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Handler provides HTTP access to crosswalk resolution and exports.
type Handler struct {
	Service Resolver
	Source  source.Source
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Logger  Logger
}

// NewHandler constructs a handler resolving against src.
func NewHandler(svc Resolver, src source.Source) *Handler {
	return &Handler{Service: svc, Source: src, Logger: noopLogger{}}
}

// Routes returns the router serving the API.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.handleHealth)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/openapi.yaml", h.handleOpenAPI)
		r.Get("/cantons", h.handleCantons)
		r.Get("/crosswalk", h.handleCrosswalk)
		r.Post("/exports", h.handleExportCreate)
	})
	return r
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Routes().ServeHTTP(w, r)
}

func (h *Handler) logger() Logger {
	if h.Logger == nil {
		return noopLogger{}
	}
	return h.Logger
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		h.logger().Info("http request",
			"method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"bytes", ww.BytesWritten(), "duration", time.Since(started),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapi.Spec())
}

func (h *Handler) handleCantons(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"cantons": domain.Cantons})
}

func (h *Handler) handleCrosswalk(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, ok := h.resolve(w, r, req.scope)
	if !ok {
		return
	}
	rendered, err := h.Service.Render(r.Context(), req.format, res)
	if err != nil {
		h.logger().Error("render crosswalk", "error", err)
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}
	art := rendered.Artifact
	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(rendered.Payload)))
	if req.format != export.FormatJSON {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.FileName))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rendered.Payload)
}

func (h *Handler) handleExportCreate(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, ok := h.resolve(w, r, req.scope)
	if !ok {
		return
	}
	art, err := h.Service.Export(r.Context(), req.format, res)
	if err != nil {
		h.logger().Error("store export", "error", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"export": art, "stats": res.Stats})
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, scope domain.Scope) (crosswalk.Result, bool) {
	if h.Service == nil || h.Source == nil {
		writeError(w, http.StatusInternalServerError, "crosswalk service not configured")
		return crosswalk.Result{}, false
	}
	res, err := h.Service.Resolve(r.Context(), h.Source, scope)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return crosswalk.Result{}, false
	}
	return res, true
}

type request struct {
	scope  domain.Scope
	format export.Format
}

// parseRequest reads since, to, cantons, changes_only and format from the
// query string. changes_only defaults to false.
func parseRequest(r *http.Request) (request, error) {
	q := r.URL.Query()
	var req request
	var err error
	if req.scope.Since, err = requiredDate(q.Get("since"), "since"); err != nil {
		return req, err
	}
	if req.scope.To, err = requiredDate(q.Get("to"), "to"); err != nil {
		return req, err
	}
	if req.scope.Cantons, err = domain.ParseCantonSubset(domain.SplitCantonList(q.Get("cantons"))); err != nil {
		return req, err
	}
	changesOnly := false
	if raw := strings.TrimSpace(q.Get("changes_only")); raw != "" {
		if changesOnly, err = strconv.ParseBool(raw); err != nil {
			return req, fmt.Errorf("changes_only: %q is not a boolean", raw)
		}
	}
	req.scope.IncludeUnchanged = !changesOnly
	format := q.Get("format")
	if format == "" && strings.Contains(r.Header.Get("Accept"), "application/json") {
		format = string(export.FormatJSON)
	}
	if req.format, err = export.ParseFormat(format); err != nil {
		return req, err
	}
	return req, nil
}

func requiredDate(raw, name string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, fmt.Errorf("%s is required", name)
	}
	t, err := domain.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", name, err)
	}
	return t, nil
}

// statusFor maps resolution errors: bad parameters are the caller's fault,
// everything else comes from the upstream register.
func statusFor(err error) int {
	switch {
	case domain.IsConfigError(err), errors.Is(err, crosswalk.ErrRosterRequired):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
