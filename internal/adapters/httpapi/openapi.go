package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
	"github.com/atvirokodosprendimai/dppportal/internal/core/usecase"
)

const bearerScheme = "bearerAuth"

// openapiSpec describes the mock API from the endpoint registry. Body schemas
// are added under components when schemas is set.
func openapiSpec(schemas *usecase.SchemaService) (*openapi3.T, error) {
	paths := openapi3.NewPaths()
	for _, d := range domain.Endpoints() {
		op := openapi3.NewOperation()
		op.OperationID = string(d.Key)
		op.Summary = d.Summary
		op.Responses = openapi3.NewResponses(
			openapi3.WithStatus(http.StatusOK, describe("OK")),
			openapi3.WithStatus(http.StatusBadRequest, describe("Invalid request")),
			openapi3.WithStatus(http.StatusUnauthorized, describe("Missing or unknown API key")),
			openapi3.WithStatus(http.StatusNotFound, describe("Not found")),
		)

		for _, name := range d.RequiredParams {
			op.AddParameter(openapi3.NewPathParameter(name).WithSchema(openapi3.NewStringSchema()))
		}
		for _, name := range d.OptionalParams {
			op.AddParameter(openapi3.NewQueryParameter(name).WithSchema(openapi3.NewStringSchema()))
		}
		if d.BodySchema != "" {
			body := openapi3.NewRequestBody().
				WithRequired(true).
				WithJSONSchemaRef(openapi3.NewSchemaRef("#/components/schemas/"+d.BodySchema, nil))
			op.RequestBody = &openapi3.RequestBodyRef{Value: body}
		}

		path := mockAPIPrefix + d.PathTemplate
		item := paths.Value(path)
		if item == nil {
			item = &openapi3.PathItem{}
			paths.Set(path, item)
		}
		item.SetOperation(d.Method, op)
	}

	components := &openapi3.Components{
		SecuritySchemes: openapi3.SecuritySchemes{
			bearerScheme: &openapi3.SecuritySchemeRef{Value: &openapi3.SecurityScheme{Type: "http", Scheme: "bearer"}},
		},
	}
	if schemas != nil {
		components.Schemas = openapi3.Schemas{}
		for _, name := range schemas.Names() {
			raw, err := schemas.Document(name)
			if err != nil {
				return nil, err
			}
			var schema openapi3.Schema
			if err := json.Unmarshal(raw, &schema); err != nil {
				return nil, fmt.Errorf("decode schema %s: %w", name, err)
			}
			delete(schema.Extensions, "$schema")
			components.Schemas[name] = openapi3.NewSchemaRef("", &schema)
		}
	}

	return &openapi3.T{
		OpenAPI:    "3.0.3",
		Info:       &openapi3.Info{Title: "DPP mock API", Version: "1.0.0"},
		Paths:      paths,
		Components: components,
		Security:   openapi3.SecurityRequirements{openapi3.NewSecurityRequirement().Authenticate(bearerScheme)},
	}, nil
}

func describe(text string) *openapi3.ResponseRef {
	return &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription(text)}
}
