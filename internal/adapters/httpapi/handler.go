package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
	"github.com/atvirokodosprendimai/dppportal/internal/core/usecase"
)

const (
	timeFormat      = "2006-01-02T15:04:05.999999999Z07:00"
	maxJSONBodySize = 1 << 20
	mockAPIPrefix   = "/api/v1"
	portalPrefix    = "/portal/v1"
)

// NotificationFeed exposes the recent user-facing notifications.
type NotificationFeed interface {
	Recent(limit int) []domain.Notification
}

// Services groups what the HTTP layer serves. Dispatcher, Relay and Feed
// are optional.
type Services struct {
	Passports  *usecase.PassportService
	Keys       *usecase.APIKeyService
	Webhooks   *usecase.WebhookService
	Proposals  *usecase.ProposalService
	Schemas    *usecase.SchemaService
	Snippets   *usecase.SnippetGenerator
	Playground *usecase.Playground
	Dispatcher *usecase.Dispatcher
	Relay      *usecase.EventRelay
	Feed       NotificationFeed
}

type Handler struct {
	svc     Services
	logger  zerolog.Logger
	metrics *httpMetrics
}

func NewHandler(svc Services, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger, metrics: newHTTPMetrics(svc.Dispatcher, svc.Relay)}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(RequestLogger(h.logger))
	r.Use(h.metrics.middleware)

	r.Get("/healthz", h.healthz)
	r.Get("/openapi.json", h.openapi)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.metrics.registry, promhttp.HandlerOpts{}))

	r.Route(mockAPIPrefix, func(ar chi.Router) {
		ar.Use(h.requireAPIKey)
		routes := h.mockRoutes()
		for _, d := range domain.Endpoints() {
			if fn, ok := routes[d.Key]; ok {
				ar.Method(d.Method, d.PathTemplate, fn)
			}
		}
	})

	r.Route(portalPrefix, h.portalRoutes)
	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) openapi(w http.ResponseWriter, r *http.Request) {
	doc, err := openapiSpec(h.svc.Schemas)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// requireAPIKey accepts the key as a bearer token or in X-API-Key.
func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if token == "" {
			auth := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				token = strings.TrimSpace(auth[7:])
			}
		}

		apiKey, err := h.svc.Keys.Authenticate(r.Context(), token)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}

		ctx := usecase.WithActor(r.Context(), apiKey.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func parseLimit(w http.ResponseWriter, r *http.Request, fallback int) (int, bool) {
	limit := fallback
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return 0, false
		}
		limit = parsed
	}
	return limit, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var violation *domain.ErrSchemaViolation
	switch {
	case errors.As(err, &violation):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": violation.Error(), "details": violation.Errors})
	case errors.Is(err, usecase.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrVersionConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
