package usecase

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
)

type Language string

const (
	LanguageCURL       Language = "cURL"
	LanguageJavaScript Language = "JavaScript"
	LanguagePython     Language = "Python"
)

// ParseLanguage maps user input to a supported language. Unknown names fall
// back to cURL.
func ParseLanguage(raw string) Language {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "javascript", "js", "node", "fetch":
		return LanguageJavaScript
	case "python", "py", "requests":
		return LanguagePython
	default:
		return LanguageCURL
	}
}

// Languages lists the supported snippet languages.
func Languages() []Language {
	return []Language{LanguageCURL, LanguageJavaScript, LanguagePython}
}

// SnippetRequest is the input of Generate. Body nil means "no body".
type SnippetRequest struct {
	Endpoint    domain.EndpointKey
	Method      string
	Language    string
	Params      map[string]any
	Body        any
	Environment string
}

// SnippetGenerator renders client code for mock API calls. It holds only the
// per-environment base URLs and is safe for concurrent use.
type SnippetGenerator struct {
	baseURLs map[domain.Environment]string
}

const (
	DefaultSandboxBaseURL    = "https://sandbox.dpp-platform.example/api/v1"
	DefaultProductionBaseURL = "https://api.dpp-platform.example/api/v1"
)

func NewSnippetGenerator(sandboxBaseURL, productionBaseURL string) *SnippetGenerator {
	if sandboxBaseURL == "" {
		sandboxBaseURL = DefaultSandboxBaseURL
	}
	if productionBaseURL == "" {
		productionBaseURL = DefaultProductionBaseURL
	}
	return &SnippetGenerator{baseURLs: map[domain.Environment]string{
		domain.EnvironmentSandbox:    strings.TrimRight(sandboxBaseURL, "/"),
		domain.EnvironmentProduction: strings.TrimRight(productionBaseURL, "/"),
	}}
}

// Generate never fails; malformed params are stringified as they are.
func (g *SnippetGenerator) Generate(req SnippetRequest) string {
	env := domain.ParseEnvironment(req.Environment)
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	descriptor, known := domain.LookupEndpoint(req.Endpoint)
	if method == "" {
		method = "GET"
		if known {
			method = descriptor.Method
		}
	}

	url := g.baseURLs[env] + ResolvePath(req.Endpoint, req.Params)
	key := placeholderKey(env)

	var body string
	hasBody := req.Body != nil && domain.IsMutatingMethod(method)
	if hasBody {
		body = serializeBody(req.Body)
	}

	switch ParseLanguage(req.Language) {
	case LanguageJavaScript:
		return javascriptSnippet(method, url, key, body, hasBody)
	case LanguagePython:
		return pythonSnippet(method, url, key, body, hasBody)
	default:
		return curlSnippet(method, url, key, body, hasBody)
	}
}

// ResolvePath expands the endpoint's path template and query string. Missing
// path params keep their {name} placeholder; query params are emitted in
// descriptor order and skipped when empty or "all".
func ResolvePath(key domain.EndpointKey, params map[string]any) string {
	descriptor, ok := domain.LookupEndpoint(key)
	if !ok {
		return domain.PlaceholderPath
	}

	path := descriptor.PathTemplate
	for _, name := range templateParams(path) {
		if v, ok := paramString(params, name); ok {
			path = strings.ReplaceAll(path, "{"+name+"}", v)
		}
	}

	pairs := make([]string, 0, len(descriptor.OptionalParams))
	for _, name := range descriptor.OptionalParams {
		v, ok := paramString(params, name)
		if !ok || v == domain.SentinelAll {
			continue
		}
		pairs = append(pairs, name+"="+v)
	}
	if len(pairs) > 0 {
		path += "?" + strings.Join(pairs, "&")
	}
	return path
}

// MissingParams returns required params of key that are absent or empty.
func MissingParams(key domain.EndpointKey, params map[string]any) []string {
	descriptor, ok := domain.LookupEndpoint(key)
	if !ok {
		return nil
	}
	var missing []string
	for _, name := range descriptor.RequiredParams {
		if _, ok := paramString(params, name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func templateParams(path string) []string {
	var names []string
	for {
		start := strings.IndexByte(path, '{')
		if start < 0 {
			break
		}
		end := strings.IndexByte(path[start:], '}')
		if end < 0 {
			break
		}
		names = append(names, path[start+1:start+end])
		path = path[start+end+1:]
	}
	sort.Strings(names)
	return names
}

func paramString(params map[string]any, name string) (string, bool) {
	raw, ok := params[name]
	if !ok || raw == nil {
		return "", false
	}
	s := fmt.Sprint(raw)
	if s == "" {
		return "", false
	}
	return s, true
}

func placeholderKey(env domain.Environment) string {
	if env == domain.EnvironmentProduction {
		return "YOUR_PRODUCTION_API_KEY"
	}
	return "YOUR_SANDBOX_API_KEY"
}

func serializeBody(body any) string {
	switch v := body.(type) {
	case string:
		if json.Valid([]byte(v)) {
			return indentJSON([]byte(v))
		}
	case []byte:
		if json.Valid(v) {
			return indentJSON(v)
		}
		return string(v)
	case json.RawMessage:
		if json.Valid(v) {
			return indentJSON(v)
		}
		return string(v)
	}
	encoded, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", body)
	}
	return string(encoded)
}

func curlSnippet(method, url, key, body string, hasBody bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "curl -X %s \"%s\" \\\n", method, url)
	fmt.Fprintf(&b, "  -H \"Authorization: Bearer %s\" \\\n", key)
	if hasBody {
		b.WriteString("  -H \"Accept: application/json\" \\\n")
		b.WriteString("  -H \"Content-Type: application/json\" \\\n")
		fmt.Fprintf(&b, "  -d '%s'", strings.ReplaceAll(body, "'", `'\''`))
	} else {
		b.WriteString("  -H \"Accept: application/json\"")
	}
	return b.String()
}

func javascriptSnippet(method, url, key, body string, hasBody bool) string {
	var b strings.Builder
	b.WriteString("async function callDppApi() {\n")
	fmt.Fprintf(&b, "  const response = await fetch(\"%s\", {\n", url)
	fmt.Fprintf(&b, "    method: \"%s\",\n", method)
	b.WriteString("    headers: {\n")
	fmt.Fprintf(&b, "      \"Authorization\": \"Bearer %s\",\n", key)
	if hasBody {
		b.WriteString("      \"Accept\": \"application/json\",\n")
		b.WriteString("      \"Content-Type\": \"application/json\"\n")
		b.WriteString("    },\n")
		fmt.Fprintf(&b, "    body: JSON.stringify(%s)\n", body)
	} else {
		b.WriteString("      \"Accept\": \"application/json\"\n")
		b.WriteString("    }\n")
	}
	b.WriteString("  });\n\n")
	b.WriteString("  if (!response.ok) {\n")
	b.WriteString("    throw new Error(`Request failed with status ${response.status}`);\n")
	b.WriteString("  }\n")
	b.WriteString("  return response.json();\n")
	b.WriteString("}\n\n")
	b.WriteString("callDppApi()\n")
	b.WriteString("  .then((data) => console.log(data))\n")
	b.WriteString("  .catch((err) => console.error(err));")
	return b.String()
}

func pythonSnippet(method, url, key, body string, hasBody bool) string {
	var b strings.Builder
	b.WriteString("import requests\n\n")
	fmt.Fprintf(&b, "url = \"%s\"\n", url)
	b.WriteString("headers = {\n")
	fmt.Fprintf(&b, "    \"Authorization\": \"Bearer %s\",\n", key)
	b.WriteString("    \"Accept\": \"application/json\",\n")
	if hasBody {
		b.WriteString("    \"Content-Type\": \"application/json\",\n")
		b.WriteString("}\n")
		fmt.Fprintf(&b, "payload = \"\"\"%s\"\"\"\n\n", body)
		fmt.Fprintf(&b, "response = requests.request(\"%s\", url, headers=headers, data=payload)\n", method)
	} else {
		b.WriteString("}\n\n")
		fmt.Fprintf(&b, "response = requests.request(\"%s\", url, headers=headers)\n", method)
	}
	b.WriteString("response.raise_for_status()\n")
	b.WriteString("print(response.json())")
	return b.String()
}
