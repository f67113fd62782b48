// Package schemas provides JSON Schema validation for embedded data documents.
package schemas

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	Document string
	Errors   []FieldError
}

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

// SchemaLoadError represents errors loading or parsing the schema itself
type SchemaLoadError struct {
	Name    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Name, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Name, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	if ve.Document != "" {
		sb.WriteString(fmt.Sprintf("%s: ", ve.Document))
	}
	sb.WriteString("validation failed:\n")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// Schema is a compiled JSON Schema that can validate many documents.
type Schema struct {
	name   string
	schema *gojsonschema.Schema
}

// Compile parses schema content once so documents can be validated repeatedly.
func Compile(name string, schemaContent []byte) (*Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaContent))
	if err != nil {
		return nil, &SchemaLoadError{
			Name:    name,
			Message: "schema compilation failed",
			Cause:   err,
		}
	}
	return &Schema{name: name, schema: compiled}, nil
}

// Validate checks a JSON document against the compiled schema.
func (s *Schema) Validate(documentName string, document []byte) error {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return &SchemaLoadError{
			Name:    s.name,
			Message: fmt.Sprintf("document %s could not be loaded", documentName),
			Cause:   err,
		}
	}

	if result.Valid() {
		return nil
	}

	return buildValidationError(documentName, result.Errors())
}

// ValidateBytes validates JSON content against schema content in one call.
func ValidateBytes(schemaContent, jsonContent []byte) error {
	schema, err := Compile("(inline schema)", schemaContent)
	if err != nil {
		return err
	}
	return schema.Validate("(inline document)", jsonContent)
}

func buildValidationError(documentName string, resultErrors []gojsonschema.ResultError) *ValidationError {
	validationErr := &ValidationError{
		Document: documentName,
		Errors:   make([]FieldError, 0, len(resultErrors)),
	}

	for _, desc := range resultErrors {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}

	return validationErr
}
