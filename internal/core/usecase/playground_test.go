package usecase

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
)

func TestPlaygroundSendComposesURLAndSnippet(t *testing.T) {
	srv, captured := newEchoServer(t, http.StatusOK, `{"items":[],"count":0}`)
	feed := &observerLog{}
	dispatcher := NewDispatcher(srv.Client(), staticBearer("sk_sandbox_pg"), feed, 0, nopLogger())
	pg := NewPlayground(NewSnippetGenerator("", ""), dispatcher, feed, srv.URL+"/api/v1/")

	resp, err := pg.Send(context.Background(), PlaygroundRequest{
		Endpoint: domain.EndpointListProducts,
		Language: "Python",
		Params:   map[string]any{"status": "all", "category": "battery"},
	})
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/api/v1/dpp?category=battery", resp.URL)
	assert.Equal(t, http.MethodGet, resp.Method)
	assert.Equal(t, http.MethodGet, captured.get().method)
	assert.Contains(t, resp.Snippet, DefaultSandboxBaseURL+"/dpp?category=battery")
	assert.True(t, resp.Result.OK)
	require.NotNil(t, resp.View)
	assert.Equal(t, "List product passports", resp.View.Title)
	assert.False(t, resp.View.IsError)
	assert.Len(t, resp.Notifications, 2)
	assert.Len(t, feed.notes, 2, "the shared notifier sees the cycle too")
}

func TestPlaygroundSendRendersErrorEnvelope(t *testing.T) {
	srv, _ := newEchoServer(t, http.StatusNotFound, `{"error":"passport DPP404: not found"}`)
	dispatcher := NewDispatcher(srv.Client(), staticBearer("k"), nil, 0, nopLogger())
	pg := NewPlayground(NewSnippetGenerator("", ""), dispatcher, nil, srv.URL)

	resp, err := pg.Send(context.Background(), PlaygroundRequest{
		Endpoint: domain.EndpointGetProduct,
		Params:   map[string]any{"productId": "DPP404"},
	})
	require.NoError(t, err)
	assert.False(t, resp.Result.OK)
	require.NotNil(t, resp.View)
	assert.True(t, resp.View.IsError)
	assert.JSONEq(t, `{"status":404,"message":"passport DPP404: not found"}`, resp.View.Raw)
}

func TestPlaygroundSendRejectsBeforeDispatch(t *testing.T) {
	srv, captured := newEchoServer(t, http.StatusOK, `{}`)
	feed := &observerLog{}
	dispatcher := NewDispatcher(srv.Client(), staticBearer("k"), nil, 0, nopLogger())
	pg := NewPlayground(NewSnippetGenerator("", ""), dispatcher, feed, srv.URL)

	_, err := pg.Send(context.Background(), PlaygroundRequest{Endpoint: "nope"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = pg.Send(context.Background(), PlaygroundRequest{
		Endpoint: domain.EndpointVoteProposal,
		Params:   map[string]any{"proposalId": ""},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "proposalId")

	assert.Empty(t, captured.get().method)
	require.Len(t, feed.notes, 2)
	assert.Equal(t, domain.NotifyWarning, feed.notes[1].Level)
	assert.Zero(t, dispatcher.Metrics())
}
