// Package openapi loads the facade's OpenAPI document, indexes its
// operations, and validates inbound requests against it.
package openapi

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"

	"github.com/pitabwire/journeybff/model"
)

//go:embed facade.yaml
var facadeDocument []byte

// Operation is one indexed facade operation.
type Operation struct {
	OperationID  string
	Method       string
	PathTemplate string
	BodyRequired bool
}

// Index holds the parsed document and its operations keyed by operationId.
type Index struct {
	doc        *openapi3.T
	router     routers.Router
	operations map[string]Operation
}

// LoadFacade parses the embedded facade document.
func LoadFacade(ctx context.Context) (*Index, error) {
	return Load(ctx, facadeDocument)
}

// Load parses and validates an OpenAPI document and indexes every
// operation that carries an operationId.
func Load(ctx context.Context, data []byte) (*Index, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("openapi: loading document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("openapi: validating document: %w", err)
	}
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("openapi: building router: %w", err)
	}

	idx := &Index{doc: doc, router: router, operations: make(map[string]Operation)}
	for path, item := range doc.Paths.Map() {
		for method, op := range item.Operations() {
			if op.OperationID == "" {
				continue
			}
			idx.operations[op.OperationID] = Operation{
				OperationID:  op.OperationID,
				Method:       method,
				PathTemplate: path,
				BodyRequired: op.RequestBody != nil && op.RequestBody.Value != nil && op.RequestBody.Value.Required,
			}
		}
	}
	return idx, nil
}

// GetOperation returns the operation with the given id.
func (idx *Index) GetOperation(operationID string) (Operation, bool) {
	op, ok := idx.operations[operationID]
	return op, ok
}

// OperationIDs returns every indexed operation id, sorted.
func (idx *Index) OperationIDs() []string {
	ids := make([]string, 0, len(idx.operations))
	for id := range idx.operations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ValidateRequest checks r against the operation its method and path
// resolve to. Requests that match no documented operation pass. The body is
// left readable for the handler.
func (idx *Index) ValidateRequest(r *http.Request) error {
	route, params, err := idx.router.FindRoute(r)
	if err != nil {
		return nil
	}
	input := &openapi3filter.RequestValidationInput{
		Request:    r,
		PathParams: params,
		Route:      route,
		Options: &openapi3filter.Options{
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
	}
	if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
		return requestError(err)
	}
	return nil
}

func requestError(err error) error {
	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		field := strings.Join(schemaErr.JSONPointer(), ".")
		if field == "" {
			field = "body"
		}
		return model.NewValidationError([]model.FieldError{{
			Field:   field,
			Code:    schemaErr.SchemaField,
			Message: schemaErr.Reason,
		}})
	}
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		msg := reqErr.Reason
		if msg == "" && reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		if msg == "" {
			msg = "request does not match the API contract"
		}
		return model.NewBadRequestError(msg)
	}
	return model.NewBadRequestError(err.Error())
}
