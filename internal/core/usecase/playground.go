package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
	"github.com/atvirokodosprendimai/dppportal/internal/core/ports"
)

type PlaygroundRequest struct {
	Endpoint    domain.EndpointKey
	Method      string
	Language    string
	Params      map[string]any
	Body        any
	Environment string
}

// PlaygroundResponse is everything the playground page shows after a send.
type PlaygroundResponse struct {
	URL           string                `json:"url"`
	Method        string                `json:"method"`
	Snippet       string                `json:"snippet"`
	Result        DispatchResult        `json:"result"`
	View          *ResponseView         `json:"view,omitempty"`
	Notifications []domain.Notification `json:"notifications"`
}

// Playground builds a request from the endpoint registry, renders its
// snippet, dispatches it against the mock API and renders the outcome.
type Playground struct {
	snippets   *SnippetGenerator
	dispatcher *Dispatcher
	notifier   ports.Notifier
	apiBaseURL string
}

// NewPlayground takes the base URL the mock API is reachable at, for example
// "http://127.0.0.1:8080/api/v1".
func NewPlayground(snippets *SnippetGenerator, dispatcher *Dispatcher, notifier ports.Notifier, apiBaseURL string) *Playground {
	return &Playground{
		snippets:   snippets,
		dispatcher: dispatcher,
		notifier:   notifier,
		apiBaseURL: strings.TrimRight(apiBaseURL, "/"),
	}
}

// Send fails with domain.ErrValidation, without sending anything, when the
// endpoint is unknown or a required parameter is missing.
func (p *Playground) Send(ctx context.Context, req PlaygroundRequest) (PlaygroundResponse, error) {
	descriptor, ok := domain.LookupEndpoint(req.Endpoint)
	if !ok {
		return PlaygroundResponse{}, p.rejected(ctx, fmt.Sprintf("unknown endpoint %q", req.Endpoint))
	}
	if missing := MissingParams(req.Endpoint, req.Params); len(missing) > 0 {
		return PlaygroundResponse{}, p.rejected(ctx, "missing required parameters: "+strings.Join(missing, ", "))
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = descriptor.Method
	}
	url := p.apiBaseURL + ResolvePath(req.Endpoint, req.Params)

	snippet := p.snippets.Generate(SnippetRequest{
		Endpoint:    req.Endpoint,
		Method:      method,
		Language:    req.Language,
		Params:      req.Params,
		Body:        req.Body,
		Environment: req.Environment,
	})

	rec := &cycleRecorder{}
	result := p.dispatcher.Dispatch(ctx, DispatchRequest{
		URL:         url,
		Method:      method,
		Body:        req.Body,
		Environment: req.Environment,
	}, rec)

	resp := PlaygroundResponse{
		URL:           url,
		Method:        method,
		Snippet:       snippet,
		Result:        result,
		Notifications: rec.notifications(),
	}
	if result.OK {
		resp.View = Render(descriptor.Summary, result.Body, false)
	} else {
		resp.View = Render(descriptor.Summary, result.Error, true)
	}
	return resp, nil
}

func (p *Playground) rejected(ctx context.Context, msg string) error {
	if p.notifier != nil {
		p.notifier.Notify(ctx, domain.Notification{
			Level:   domain.NotifyWarning,
			Title:   "Validation error",
			Message: msg,
			At:      time.Now().UTC(),
		})
	}
	return fmt.Errorf("%w: %s", domain.ErrValidation, msg)
}

// cycleRecorder keeps the notifications of one dispatch cycle.
type cycleRecorder struct {
	mu    sync.Mutex
	items []domain.Notification
}

func (r *cycleRecorder) LoadingChanged(bool) {}
func (r *cycleRecorder) ResultChanged(*DispatchResult) {}

func (r *cycleRecorder) Notify(_ context.Context, n domain.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *cycleRecorder) notifications() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Notification, len(r.items))
	copy(out, r.items)
	return out
}
