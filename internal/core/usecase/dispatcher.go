package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
	"github.com/atvirokodosprendimai/dppportal/internal/core/ports"
)

const (
	DefaultMockDelay   = 600 * time.Millisecond
	maxResponseBody    = 4 << 20
	dispatchUserAgent  = "dpp-portal-playground/1"
	requestFailedTitle = "Request failed"
)

// BearerSource picks the bearer token sent with a dispatched request.
type BearerSource interface {
	BearerFor(ctx context.Context, env domain.Environment) string
}

// DispatchObserver follows one dispatch cycle. Observers that also implement
// ports.Notifier receive the cycle's notifications.
type DispatchObserver interface {
	LoadingChanged(loading bool)
	ResultChanged(result *DispatchResult)
}

type DispatchRequest struct {
	URL         string
	Method      string
	Body        any
	Environment string
}

// ErrorEnvelope is the normalized failure shape. Status 0 means the request
// never produced an HTTP response.
type ErrorEnvelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

type DispatchResult struct {
	OK         bool           `json:"ok"`
	StatusCode int            `json:"statusCode"`
	Body       string         `json:"body,omitempty"`
	Error      *ErrorEnvelope `json:"error,omitempty"`
	DurationMS int64          `json:"durationMs"`
}

type DispatcherMetrics struct {
	SuccessTotal int64
	ErrorTotal   int64
	FailureTotal int64
}

// Dispatcher performs simulated API calls against the mock API. Every call is
// an independent cycle; there is no caching, retry or concurrency limit.
type Dispatcher struct {
	client   *http.Client
	keys     BearerSource
	notifier ports.Notifier
	delay    time.Duration
	logger   zerolog.Logger

	successTotal atomic.Int64
	errorTotal   atomic.Int64
	failureTotal atomic.Int64
}

func NewDispatcher(client *http.Client, keys BearerSource, notifier ports.Notifier, delay time.Duration, logger zerolog.Logger) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if delay < 0 {
		delay = 0
	}
	return &Dispatcher{client: client, keys: keys, notifier: notifier, delay: delay, logger: logger}
}

// Dispatch runs one cycle. Loading is set before anything else and cleared
// on every path; the outcome is always reported through the result, never as
// an error.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest, observer DispatchObserver) DispatchResult {
	if observer == nil {
		observer = nopObserver{}
	}
	observer.LoadingChanged(true)
	defer observer.LoadingChanged(false)
	observer.ResultChanged(nil)

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	d.notify(ctx, observer, domain.NotifyInfo, "Request started", method+" "+req.URL)

	start := time.Now()
	result := d.do(ctx, method, req)
	result.DurationMS = time.Since(start).Milliseconds()

	switch {
	case result.OK:
		d.successTotal.Add(1)
		d.notify(ctx, observer, domain.NotifySuccess, "Request succeeded", fmt.Sprintf("%s %s returned %d", method, req.URL, result.StatusCode))
	case result.Error != nil && result.Error.Status == 0:
		d.failureTotal.Add(1)
		d.notify(ctx, observer, domain.NotifyError, requestFailedTitle, result.Error.Message)
	default:
		d.errorTotal.Add(1)
		d.notify(ctx, observer, domain.NotifyError, fmt.Sprintf("Error %d", result.Error.Status), result.Error.Message)
	}
	d.logger.Debug().
		Str("method", method).
		Str("url", req.URL).
		Int("status", result.StatusCode).
		Int64("duration_ms", result.DurationMS).
		Msg("mock dispatch")

	observer.ResultChanged(&result)
	return result
}

func (d *Dispatcher) do(ctx context.Context, method string, req DispatchRequest) DispatchResult {
	if err := sleepCtx(ctx, d.delay); err != nil {
		return failed(err)
	}

	var body io.Reader
	hasBody := req.Body != nil && domain.IsMutatingMethod(method)
	if hasBody {
		encoded, err := encodeBody(req.Body)
		if err != nil {
			return failed(err)
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return failed(err)
	}
	env := domain.ParseEnvironment(req.Environment)
	httpReq.Header.Set("Authorization", "Bearer "+d.keys.BearerFor(ctx, env))
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", dispatchUserAgent)
	if hasBody {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return failed(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return failed(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return DispatchResult{OK: true, StatusCode: resp.StatusCode, Body: indentJSON(raw)}
	}
	return DispatchResult{
		StatusCode: resp.StatusCode,
		Body:       string(raw),
		Error:      &ErrorEnvelope{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw)},
	}
}

func (d *Dispatcher) Metrics() DispatcherMetrics {
	return DispatcherMetrics{
		SuccessTotal: d.successTotal.Load(),
		ErrorTotal:   d.errorTotal.Load(),
		FailureTotal: d.failureTotal.Load(),
	}
}

func (d *Dispatcher) notify(ctx context.Context, observer DispatchObserver, level domain.NotificationLevel, title, message string) {
	n := domain.Notification{Level: level, Title: title, Message: message, At: time.Now().UTC()}
	if d.notifier != nil {
		d.notifier.Notify(ctx, n)
	}
	if sink, ok := observer.(ports.Notifier); ok {
		sink.Notify(ctx, n)
	}
}

func failed(err error) DispatchResult {
	return DispatchResult{Error: &ErrorEnvelope{Status: 0, Message: "request failed: " + err.Error()}}
}

// errorMessage prefers the body's "error" or "message" field.
func errorMessage(status int, raw []byte) string {
	var body map[string]any
	if json.Unmarshal(raw, &body) == nil {
		for _, field := range []string{"error", "message"} {
			if msg, ok := body[field].(string); ok && msg != "" {
				return msg
			}
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("request failed with status %d", status)
}

func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case string:
		if json.Valid([]byte(v)) {
			return []byte(v), nil
		}
	case json.RawMessage:
		if json.Valid(v) {
			return v, nil
		}
		return nil, fmt.Errorf("%w: body is not valid json", domain.ErrValidation)
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return encoded, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type nopObserver struct{}

func (nopObserver) LoadingChanged(bool) {}
func (nopObserver) ResultChanged(*DispatchResult) {}
