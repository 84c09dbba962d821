package validation

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Schema names, one per embedded file under schemas/.
const (
	SchemaOptimizerResponse = "optimizer_response"
	SchemaAuditorCreate     = "auditor_create"
	SchemaStoreCreate       = "store_create"
	SchemaPlanUpdate        = "plan_update"
)

//go:embed schemas/*.json
var schemaFS embed.FS

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Summary joins the individual errors into one line.
func (r *ValidationResult) Summary() string {
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return strings.Join(parts, "; ")
}

var (
	compileOnce sync.Once
	compiled    map[string]*gojsonschema.Schema
	compileErr  error
)

func schemas() (map[string]*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled = make(map[string]*gojsonschema.Schema)
		for _, name := range []string{SchemaOptimizerResponse, SchemaAuditorCreate, SchemaStoreCreate, SchemaPlanUpdate} {
			raw, err := schemaFS.ReadFile("schemas/" + name + ".json")
			if err != nil {
				compileErr = fmt.Errorf("read schema %s: %w", name, err)
				return
			}
			s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
			if err != nil {
				compileErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			compiled[name] = s
		}
	})
	return compiled, compileErr
}

// ValidateJSON checks a raw JSON document against a named schema. The
// returned error is reserved for unknown schemas and undecodable documents;
// schema violations are reported through the result.
func ValidateJSON(schemaName string, document []byte) (*ValidationResult, error) {
	all, err := schemas()
	if err != nil {
		return nil, err
	}
	schema, ok := all[schemaName]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q", schemaName)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    desc.Type(),
		})
	}
	return out, nil
}
