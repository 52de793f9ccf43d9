package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/dppportal/internal/adapters/events"
	"github.com/atvirokodosprendimai/dppportal/internal/adapters/memory"
	"github.com/atvirokodosprendimai/dppportal/internal/adapters/notify"
	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
	"github.com/atvirokodosprendimai/dppportal/internal/core/usecase"
)

const testAPIKey = "sk_sandbox_handler_test_key"

type testEnv struct {
	router http.Handler
	feed   *notify.Feed
	outbox *memory.OutboxRepository
	keys   *usecase.APIKeyService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	log := zerolog.Nop()
	entropy := usecase.NewEntropy(7, nil)

	keyRepo := memory.NewAPIKeyRepository()
	hookRepo := memory.NewWebhookRepository()
	proposalRepo := memory.NewProposalRepository()
	passportRepo := memory.NewPassportRepository()
	outbox := memory.NewOutboxRepository()

	recorder := usecase.NewEventRecorder(outbox, entropy, domain.EnvironmentSandbox, log)
	keys := usecase.NewAPIKeyService(keyRepo, entropy, log)
	schemas, err := usecase.NewSchemaService()
	require.NoError(t, err)
	feed := notify.NewFeed(50, log)

	require.NoError(t, usecase.Seeder{
		Keys:      keyRepo,
		Webhooks:  hookRepo,
		Proposals: proposalRepo,
		Passports: passportRepo,
		Entropy:   entropy,
	}.Seed(ctx))
	_, err = keys.Import(ctx, testAPIKey, domain.KeyTypeSandbox)
	require.NoError(t, err)

	env := &testEnv{feed: feed, outbox: outbox, keys: keys}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.router.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	dispatcher := usecase.NewDispatcher(srv.Client(), keys, feed, 0, log)
	h := NewHandler(Services{
		Passports:  usecase.NewPassportService(passportRepo, outbox, recorder, entropy, usecase.Issuer{}),
		Keys:       keys,
		Webhooks:   usecase.NewWebhookService(hookRepo, events.NewWebhookPublisher(2*time.Second), entropy, log),
		Proposals:  usecase.NewProposalService(proposalRepo, recorder, entropy),
		Schemas:    schemas,
		Snippets:   usecase.NewSnippetGenerator("", ""),
		Playground: usecase.NewPlayground(usecase.NewSnippetGenerator("", ""), dispatcher, feed, srv.URL+mockAPIPrefix),
		Dispatcher: dispatcher,
		Feed:       feed,
	}, log)
	env.router = h.Router()
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) api(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, mockAPIPrefix+path, body, map[string]string{"Authorization": "Bearer " + testAPIKey})
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestMockAPIRequiresKnownActiveKey(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, mockAPIPrefix+"/dpp/DPP001", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, mockAPIPrefix+"/dpp/DPP001", "", map[string]string{"Authorization": "Bearer sk_sandbox_unknown"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, mockAPIPrefix+"/dpp/DPP001", "", map[string]string{"X-API-Key": testAPIKey})
	assert.Equal(t, http.StatusOK, rec.Code)

	keys, err := env.keys.List(context.Background())
	require.NoError(t, err)
	var pending domain.APIKey
	for _, k := range keys {
		if k.Status == domain.KeyStatusPendingApproval {
			pending = k
		}
	}
	require.NotEmpty(t, pending.ID)
	rec = env.do(t, http.MethodGet, mockAPIPrefix+"/dpp/DPP001", "", map[string]string{"Authorization": "Bearer " + pending.Key})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEveryRegistryEndpointIsRouted(t *testing.T) {
	env := newTestEnv(t)
	params := map[string]any{"productId": "DPP002", "tokenId": "missing", "proposalId": "prop_003"}

	for _, d := range domain.Endpoints() {
		rec := env.api(t, d.Method, usecase.ResolvePath(d.Key, params), "")
		assert.NotEqual(t, http.StatusMethodNotAllowed, rec.Code, d.Key)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"), "%s returned %d %s", d.Key, rec.Code, rec.Body.String())
	}
}

func TestCreateProductRejectsSchemaViolation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.api(t, http.MethodPost, "/dpp", `{"manufacturer":"ACME"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body["error"], "passport")
	assert.NotEmpty(t, body["details"])

	rec = env.api(t, http.MethodPost, "/dpp", `{"productName":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProductLifecycleThroughMockAPI(t *testing.T) {
	env := newTestEnv(t)

	rec := env.api(t, http.MethodPost, "/dpp", `{"id":"DPP900","productName":"Heat pump","manufacturer":"Nordic Heat","category":"appliance"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	assert.Equal(t, "draft", created["status"])
	assert.Equal(t, "Nordic Heat", created["owner"])

	rec = env.api(t, http.MethodPost, "/dpp", `{"id":"DPP900","productName":"Duplicate"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.api(t, http.MethodPatch, "/dpp/extend/DPP900", `{"attributes":{"scop":4.6}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]any{"scop": 4.6}, decodeBody(t, rec)["attributes"])

	rec = env.api(t, http.MethodPost, "/dpp/DPP900/lifecycle-events", `{"eventType":"shipped","location":"Rotterdam"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.api(t, http.MethodPost, "/dpp/transfer-ownership/DPP900", `{"newOwner":"Retailer AB","reason":"sale"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Retailer AB", decodeBody(t, rec)["owner"])

	rec = env.api(t, http.MethodGet, "/dpp/custody/DPP900", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["custody"], 2)

	rec = env.api(t, http.MethodGet, "/dpp/history/DPP900", "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody(t, rec)["events"].([]any)
	require.Len(t, history, 4)
	first := history[0].(map[string]any)
	assert.Equal(t, domain.EventProductCreated, first["event_type"])
	assert.Equal(t, "key_", first["actor"].(string)[:4])

	rec = env.api(t, http.MethodDelete, "/dpp/DPP900", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":true}`, rec.Body.String())

	rec = env.api(t, http.MethodGet, "/dpp/DPP900", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListProductsFiltersAndTreatsAllAsNoFilter(t *testing.T) {
	env := newTestEnv(t)

	rec := env.api(t, http.MethodGet, "/dpp?category=battery", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decodeBody(t, rec)["count"])

	rec = env.api(t, http.MethodGet, "/dpp?status=all&category=all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, decodeBody(t, rec)["count"])

	rec = env.api(t, http.MethodGet, "/dpp?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTokenAndCredentialEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.api(t, http.MethodPost, "/token/mint/DPP001", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tokenID := decodeBody(t, rec)["tokenId"].(string)

	rec = env.api(t, http.MethodPost, "/token/mint/DPP001", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.api(t, http.MethodGet, "/token/status/"+tokenID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeBody(t, rec)
	assert.Equal(t, usecase.TokenActive, status["status"])
	assert.Equal(t, "DPP001", status["productId"])

	rec = env.api(t, http.MethodPost, "/dpp/verify/DPP001", "")
	require.Equal(t, http.StatusOK, rec.Code)
	vc := decodeBody(t, rec)
	assert.Contains(t, vc, "@context")
	assert.Contains(t, vc["type"], "VerifiableCredential")

	rec = env.api(t, http.MethodPost, "/zkp/generate-proof/DPP001", `{"claim":"compliant"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	proof := decodeBody(t, rec)

	verifyBody, err := json.Marshal(map[string]any{
		"proofId":    proof["proofId"],
		"productId":  proof["productId"],
		"claim":      proof["claim"],
		"commitment": proof["commitment"],
	})
	require.NoError(t, err)
	rec = env.api(t, http.MethodPost, "/zkp/verify-proof", string(verifyBody))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decodeBody(t, rec)["valid"])
}

func TestMockDAOVoteOnlyChangesActiveProposals(t *testing.T) {
	env := newTestEnv(t)

	rec := env.api(t, http.MethodPost, "/dao/proposals/prop_002/vote", `{"support":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	defeated := decodeBody(t, rec)
	assert.Equal(t, false, defeated["applied"])
	assert.EqualValues(t, 40210, defeated["proposal"].(map[string]any)["votesFor"])

	rec = env.api(t, http.MethodPost, "/dao/proposals/prop_003/vote", `{"support":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	active := decodeBody(t, rec)
	assert.Equal(t, true, active["applied"])
	proposal := active["proposal"].(map[string]any)
	assert.EqualValues(t, 65300, proposal["votesFor"])
	assert.Greater(t, proposal["votesAgainst"].(float64), float64(21400))

	rec = env.api(t, http.MethodPost, "/dao/proposals/prop_003/vote", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.api(t, http.MethodGet, "/dao/proposals?status=Defeated", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["items"], 1)
}

func TestOpenAPIListsRegistry(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/openapi.json", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	doc := decodeBody(t, rec)
	paths := doc["paths"].(map[string]any)
	for _, d := range domain.Endpoints() {
		item, ok := paths[mockAPIPrefix+d.PathTemplate].(map[string]any)
		require.True(t, ok, d.PathTemplate)
		assert.Contains(t, item, strings.ToLower(d.Method))
	}
	schemas := doc["components"].(map[string]any)["schemas"].(map[string]any)
	assert.Contains(t, schemas, "passport")
}

func TestMetricsEndpointExposesRequestCounters(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/healthz", "", nil)

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",path="/healthz",status="200"} 1`)
	assert.Contains(t, rec.Body.String(), "dpp_playground_dispatch_total")
}
