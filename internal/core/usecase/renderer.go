package usecase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const subjectPreviewLimit = 120

// CredentialSummary is the structured view of a verifiable credential.
type CredentialSummary struct {
	ID           string   `json:"id,omitempty"`
	Types        []string `json:"types"`
	Issuer       string   `json:"issuer"`
	IssuanceDate string   `json:"issuanceDate,omitempty"`
	Subject      string   `json:"subject,omitempty"`
}

// TokenStatusSummary is the structured view of a token status payload.
type TokenStatusSummary struct {
	TokenID  string `json:"tokenId"`
	Status   string `json:"status"`
	Owner    string `json:"owner,omitempty"`
	Standard string `json:"standard,omitempty"`
}

// ResponseView is what the portal displays for a response. Raw is always
// set; the summaries are best-effort enrichment.
type ResponseView struct {
	Title       string              `json:"title"`
	IsError     bool                `json:"isError"`
	Parsed      bool                `json:"parsed"`
	Credential  *CredentialSummary  `json:"credential,omitempty"`
	TokenStatus *TokenStatusSummary `json:"tokenStatus,omitempty"`
	Raw         string              `json:"raw"`
	Collapsible bool                `json:"collapsible"`
}

// Render builds the display structure for value. A nil value renders nothing.
// Strings and raw bytes are parsed as JSON when possible; anything that fails
// to parse is shown verbatim.
func Render(title string, value any, isError bool) *ResponseView {
	if value == nil {
		return nil
	}
	view := &ResponseView{Title: title, IsError: isError, Collapsible: true}

	var doc any
	switch v := value.(type) {
	case string:
		if err := json.Unmarshal([]byte(v), &doc); err != nil {
			view.Raw = v
			return view
		}
		view.Raw = indentJSON([]byte(v))
	case []byte:
		if err := json.Unmarshal(v, &doc); err != nil {
			view.Raw = string(v)
			return view
		}
		view.Raw = indentJSON(v)
	case json.RawMessage:
		if err := json.Unmarshal(v, &doc); err != nil {
			view.Raw = string(v)
			return view
		}
		view.Raw = indentJSON(v)
	default:
		encoded, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			view.Raw = fmt.Sprintf("%v", v)
			return view
		}
		view.Raw = string(encoded)
		if err := json.Unmarshal(encoded, &doc); err != nil {
			return view
		}
	}

	view.Parsed = true
	obj, ok := doc.(map[string]any)
	if !ok {
		return view
	}
	if looksLikeCredential(obj) {
		view.Credential = summarizeCredential(obj)
	}
	if looksLikeTokenStatus(obj) {
		view.TokenStatus = summarizeTokenStatus(obj)
	}
	return view
}

func looksLikeCredential(obj map[string]any) bool {
	_, hasContext := obj["@context"]
	_, hasType := obj["type"]
	_, hasIssuer := obj["issuer"]
	return hasContext && hasType && hasIssuer
}

func looksLikeTokenStatus(obj map[string]any) bool {
	_, hasToken := obj["tokenId"]
	_, hasStatus := obj["status"]
	return hasToken && hasStatus
}

func summarizeCredential(obj map[string]any) *CredentialSummary {
	summary := &CredentialSummary{
		ID:     stringField(obj["id"]),
		Types:  stringList(obj["type"]),
		Issuer: issuerName(obj["issuer"]),
	}
	summary.IssuanceDate = stringField(obj["issuanceDate"])
	if summary.IssuanceDate == "" {
		summary.IssuanceDate = stringField(obj["validFrom"])
	}
	if subject, ok := obj["credentialSubject"]; ok {
		encoded, err := json.Marshal(subject)
		if err == nil {
			summary.Subject = truncate(string(encoded), subjectPreviewLimit)
		}
	}
	return summary
}

func summarizeTokenStatus(obj map[string]any) *TokenStatusSummary {
	return &TokenStatusSummary{
		TokenID:  stringField(obj["tokenId"]),
		Status:   stringField(obj["status"]),
		Owner:    stringField(obj["owner"]),
		Standard: stringField(obj["standard"]),
	}
}

func issuerName(v any) string {
	if m, ok := v.(map[string]any); ok {
		if name := stringField(m["name"]); name != "" {
			return name
		}
		return stringField(m["id"])
	}
	return stringField(v)
}

func stringField(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, stringField(item))
		}
		return out
	case nil:
		return nil
	default:
		return []string{stringField(t)}
	}
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return strings.TrimSpace(string(r[:limit])) + "..."
}

func indentJSON(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
