package usecase

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderNilRendersNothing(t *testing.T) {
	assert.Nil(t, Render("Empty", nil, false))
}

func TestRenderInvalidJSONIsShownVerbatim(t *testing.T) {
	view := Render("Raw", "{oops", true)
	require.NotNil(t, view)
	assert.False(t, view.Parsed)
	assert.True(t, view.IsError)
	assert.Equal(t, "{oops", view.Raw)
	assert.Nil(t, view.Credential)
}

func TestRenderPrettyPrintsJSONString(t *testing.T) {
	view := Render("Passport", `{"id":"DPP001","tags":[1,2]}`, false)
	require.NotNil(t, view)
	assert.True(t, view.Parsed)
	assert.True(t, view.Collapsible)
	assert.Equal(t, "{\n  \"id\": \"DPP001\",\n  \"tags\": [\n    1,\n    2\n  ]\n}", view.Raw)
	assert.Nil(t, view.TokenStatus)
}

func TestRenderSummarizesCredential(t *testing.T) {
	subject := map[string]any{"id": "urn:dpp:DPP001", "notes": strings.Repeat("x", 300)}
	vc := map[string]any{
		"@context":          []any{"https://www.w3.org/2018/credentials/v1"},
		"id":                "urn:uuid:1",
		"type":              []any{"VerifiableCredential", "DigitalProductPassportCredential"},
		"issuer":            map[string]any{"id": "did:web:x", "name": "DPP Platform Sandbox"},
		"validFrom":         "2025-03-01T12:00:00Z",
		"credentialSubject": subject,
	}
	raw, err := json.Marshal(vc)
	require.NoError(t, err)

	view := Render("Credential", json.RawMessage(raw), false)
	require.NotNil(t, view.Credential)
	assert.Equal(t, "DPP Platform Sandbox", view.Credential.Issuer)
	assert.Equal(t, []string{"VerifiableCredential", "DigitalProductPassportCredential"}, view.Credential.Types)
	assert.Equal(t, "2025-03-01T12:00:00Z", view.Credential.IssuanceDate)
	assert.True(t, strings.HasSuffix(view.Credential.Subject, "..."))
	assert.LessOrEqual(t, len([]rune(view.Credential.Subject)), subjectPreviewLimit+3)
}

func TestRenderSummarizesTokenStatusFromStruct(t *testing.T) {
	view := Render("Token", TokenStatusView{TokenID: "abc", Status: TokenFrozen, Owner: "GreenTech", Standard: tokenStandard}, false)
	require.NotNil(t, view.TokenStatus)
	assert.Equal(t, "abc", view.TokenStatus.TokenID)
	assert.Equal(t, TokenFrozen, view.TokenStatus.Status)
	assert.Equal(t, "GreenTech", view.TokenStatus.Owner)
	assert.Nil(t, view.Credential)
}

func TestRenderErrorEnvelope(t *testing.T) {
	view := Render("Get a product passport", &ErrorEnvelope{Status: 404, Message: "not found"}, true)
	require.NotNil(t, view)
	assert.True(t, view.IsError)
	assert.True(t, view.Parsed)
	assert.JSONEq(t, `{"status":404,"message":"not found"}`, view.Raw)
}
