package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
	"github.com/atvirokodosprendimai/dppportal/internal/core/usecase"
)

const defaultNotificationLimit = 20

type generateKeyRequest struct {
	Type string `json:"type" validate:"required,oneof=Sandbox Production sandbox production"`
}

type apiKeyResponse struct {
	ID        string  `json:"id"`
	Key       string  `json:"key"`
	MaskedKey string  `json:"maskedKey"`
	Type      string  `json:"type"`
	Status    string  `json:"status"`
	Created   string  `json:"created"`
	LastUsed  *string `json:"lastUsed"`
}

type createWebhookRequest struct {
	URL    string   `json:"url" validate:"required,url"`
	Events []string `json:"events" validate:"required,min=1,dive,required"`
}

type webhookResponse struct {
	ID        string   `json:"id"`
	URL       string   `json:"url"`
	Events    []string `json:"events"`
	Status    string   `json:"status"`
	LastError string   `json:"lastError,omitempty"`
	CreatedAt string   `json:"createdAt"`
	Secret    string   `json:"secret,omitempty"`
}

// snippetRequest is shared by the snippet and playground routes. Body is kept
// raw so an absent body stays distinct from an empty object.
type snippetRequest struct {
	Endpoint    string          `json:"endpoint" validate:"required"`
	Method      string          `json:"method" validate:"omitempty,oneof=GET POST PUT PATCH DELETE get post put patch delete"`
	Language    string          `json:"language"`
	Params      map[string]any  `json:"params"`
	Body        json.RawMessage `json:"body"`
	Environment string          `json:"environment"`
}

type renderRequest struct {
	Title   string          `json:"title"`
	Value   json.RawMessage `json:"value"`
	IsError bool            `json:"isError"`
}

func (h *Handler) portalRoutes(r chi.Router) {
	r.Get("/api-keys", h.listAPIKeys)
	r.Post("/api-keys", h.generateAPIKey)
	r.Delete("/api-keys/{id}", h.deleteAPIKey)
	r.Post("/api-keys/{id}/approve", h.approveAPIKey)
	r.Post("/api-keys/{id}/revoke", h.revokeAPIKey)

	r.Get("/webhooks", h.listWebhooks)
	r.Post("/webhooks", h.createWebhook)
	r.Delete("/webhooks/{id}", h.deleteWebhook)
	r.Post("/webhooks/{id}/enable", h.setWebhookEnabled(true))
	r.Post("/webhooks/{id}/disable", h.setWebhookEnabled(false))
	r.Post("/webhooks/{id}/test", h.testWebhook)
	r.Get("/webhooks/events", h.webhookEvents)

	r.Get("/proposals", h.listProposals)
	r.Post("/proposals", h.createPortalProposal)
	r.Delete("/proposals/{id}", h.deleteProposal)
	r.Post("/proposals/{id}/vote", h.votePortalProposal)

	r.Get("/endpoints", h.listEndpoints)
	r.Post("/snippets", h.generateSnippet)
	r.Post("/playground/send", h.playgroundSend)
	r.Post("/render", h.render)
	r.Get("/notifications", h.notifications)
}

func (h *Handler) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.svc.Keys.List(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	items := make([]apiKeyResponse, 0, len(keys))
	for _, k := range keys {
		items = append(items, toAPIKeyResponse(k))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) generateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req generateKeyRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	keyType, err := domain.ParseKeyType(req.Type)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	key, err := h.svc.Keys.Generate(r.Context(), keyType)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAPIKeyResponse(key))
}

func (h *Handler) deleteAPIKey(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.svc.Keys.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (h *Handler) approveAPIKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.svc.Keys.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAPIKeyResponse(key))
}

func (h *Handler) revokeAPIKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.svc.Keys.Revoke(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAPIKeyResponse(key))
}

func (h *Handler) listWebhooks(w http.ResponseWriter, r *http.Request) {
	hooks, err := h.svc.Webhooks.List(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	items := make([]webhookResponse, 0, len(hooks))
	for _, hook := range hooks {
		items = append(items, toWebhookResponse(hook))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) createWebhook(w http.ResponseWriter, r *http.Request) {
	var req createWebhookRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	hook, err := h.svc.Webhooks.Create(r.Context(), req.URL, req.Events)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	resp := toWebhookResponse(hook)
	resp.Secret = hook.Secret
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.svc.Webhooks.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (h *Handler) setWebhookEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hook, err := h.svc.Webhooks.SetEnabled(r.Context(), chi.URLParam(r, "id"), enabled)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toWebhookResponse(hook))
	}
}

// testWebhook reports a failed delivery in the body; the webhook itself is
// already marked Error by then.
func (h *Handler) testWebhook(w http.ResponseWriter, r *http.Request) {
	hook, err := h.svc.Webhooks.SendTest(r.Context(), chi.URLParam(r, "id"))
	if err != nil && hook.ID == "" {
		handleDomainError(w, r, err)
		return
	}
	resp := map[string]any{"webhook": toWebhookResponse(hook), "delivered": err == nil}
	if err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) webhookEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"events": domain.KnownEvents()})
}

func (h *Handler) createPortalProposal(w http.ResponseWriter, r *http.Request) {
	var req proposalRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	p, err := h.svc.Proposals.Create(r.Context(), req.Title, req.Description)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProposalResponse(p))
}

func (h *Handler) deleteProposal(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.svc.Proposals.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (h *Handler) votePortalProposal(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	h.vote(w, r, chi.URLParam(r, "id"), *req.Support)
}

func (h *Handler) listEndpoints(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"endpoints": domain.Endpoints(),
		"languages": usecase.Languages(),
	})
}

func (h *Handler) generateSnippet(w http.ResponseWriter, r *http.Request) {
	var req snippetRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	language := usecase.ParseLanguage(req.Language)
	snippet := h.svc.Snippets.Generate(usecase.SnippetRequest{
		Endpoint:    domain.EndpointKey(req.Endpoint),
		Method:      req.Method,
		Language:    string(language),
		Params:      req.Params,
		Body:        rawBody(req.Body),
		Environment: req.Environment,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"snippet":     snippet,
		"language":    language,
		"environment": domain.ParseEnvironment(req.Environment),
		"missing":     usecase.MissingParams(domain.EndpointKey(req.Endpoint), req.Params),
	})
}

func (h *Handler) playgroundSend(w http.ResponseWriter, r *http.Request) {
	var req snippetRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	resp, err := h.svc.Playground.Send(r.Context(), usecase.PlaygroundRequest{
		Endpoint:    domain.EndpointKey(req.Endpoint),
		Method:      req.Method,
		Language:    req.Language,
		Params:      req.Params,
		Body:        rawBody(req.Body),
		Environment: req.Environment,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// render treats a JSON string value as the text to display, so text that is
// not itself JSON is shown verbatim.
func (h *Handler) render(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	var value any
	var text string
	switch {
	case len(req.Value) == 0 || string(req.Value) == "null":
	case json.Unmarshal(req.Value, &text) == nil:
		value = text
	default:
		value = req.Value
	}
	writeJSON(w, http.StatusOK, map[string]any{"view": usecase.Render(req.Title, value, req.IsError)})
}

func (h *Handler) notifications(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultNotificationLimit)
	if !ok {
		return
	}
	items := []domain.Notification{}
	if h.svc.Feed != nil {
		items = h.svc.Feed.Recent(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// rawBody keeps a missing body as a nil interface rather than a typed nil.
func rawBody(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

func toAPIKeyResponse(k domain.APIKey) apiKeyResponse {
	resp := apiKeyResponse{
		ID:        k.ID,
		Key:       k.Key,
		MaskedKey: usecase.MaskKey(k.Key),
		Type:      string(k.Type),
		Status:    string(k.Status),
		Created:   k.CreatedAt.UTC().Format(timeFormat),
	}
	if k.LastUsed != nil {
		lastUsed := k.LastUsed.UTC().Format(timeFormat)
		resp.LastUsed = &lastUsed
	}
	return resp
}

func toWebhookResponse(hook domain.Webhook) webhookResponse {
	events := hook.Events
	if events == nil {
		events = []string{}
	}
	return webhookResponse{
		ID:        hook.ID,
		URL:       hook.URL,
		Events:    events,
		Status:    string(hook.Status),
		LastError: hook.LastError,
		CreatedAt: hook.CreatedAt.UTC().Format(timeFormat),
	}
}
