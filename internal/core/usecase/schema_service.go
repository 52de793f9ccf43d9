package usecase

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

// SchemaService validates mock API request bodies against the embedded JSON
// schemas named by EndpointDescriptor.BodySchema.
type SchemaService struct {
	sources map[string][]byte
	cache   sync.Map // key: schema name → *santhosh.Schema
}

func NewSchemaService() (*SchemaService, error) {
	entries, err := fs.ReadDir(schemaFiles, "schemas")
	if err != nil {
		return nil, fmt.Errorf("read embedded schemas: %w", err)
	}
	sources := make(map[string][]byte, len(entries))
	for _, entry := range entries {
		raw, err := schemaFiles.ReadFile(path.Join("schemas", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", entry.Name(), err)
		}
		sources[strings.TrimSuffix(entry.Name(), ".json")] = raw
	}
	return &SchemaService{sources: sources}, nil
}

// Names lists the available schemas in sorted order.
func (s *SchemaService) Names() []string {
	out := make([]string, 0, len(s.sources))
	for name := range s.sources {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Document returns the raw schema document.
func (s *SchemaService) Document(name string) (json.RawMessage, error) {
	raw, ok := s.sources[name]
	if !ok {
		return nil, fmt.Errorf("schema %q: %w", name, domain.ErrNotFound)
	}
	return raw, nil
}

// Validate checks data against the named schema. An empty name passes.
// Returns *domain.ErrSchemaViolation on failure.
func (s *SchemaService) Validate(name string, data json.RawMessage) error {
	if name == "" {
		return nil
	}
	if cached, ok := s.cache.Load(name); ok {
		return runValidation(name, cached.(*santhosh.Schema), data)
	}

	raw, ok := s.sources[name]
	if !ok {
		return fmt.Errorf("schema %q: %w", name, domain.ErrNotFound)
	}
	compiled, err := compileSchema(name, raw)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	s.cache.Store(name, compiled)
	return runValidation(name, compiled, data)
}

func compileSchema(name string, schemaJSON []byte) (*santhosh.Schema, error) {
	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft7
	resource := name + ".json"
	if err := compiler.AddResource(resource, bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile(resource)
}

func runValidation(name string, sch *santhosh.Schema, data json.RawMessage) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return &domain.ErrSchemaViolation{Schema: name, Errors: []string{"body is not valid json"}}
	}
	if err := sch.Validate(v); err != nil {
		var ve *santhosh.ValidationError
		if errors.As(err, &ve) {
			return &domain.ErrSchemaViolation{Schema: name, Errors: collectValidationErrors(ve)}
		}
		return &domain.ErrSchemaViolation{Schema: name, Errors: []string{err.Error()}}
	}
	return nil
}

func collectValidationErrors(ve *santhosh.ValidationError) []string {
	var msgs []string
	for _, cause := range ve.Causes {
		msgs = append(msgs, collectValidationErrors(cause)...)
	}
	if len(ve.Causes) == 0 {
		msgs = append(msgs, ve.Error())
	}
	return msgs
}
