package schemas

import (
	"embed"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed steps/*.json
var stepFS embed.FS

var (
	stepOnce    sync.Once
	stepSchemas map[string]*gojsonschema.Schema
	stepErr     error
)

func loadStepSchemas() {
	entries, err := stepFS.ReadDir("steps")
	if err != nil {
		stepErr = fmt.Errorf("failed to read embedded step schemas: %w", err)
		return
	}

	stepSchemas = make(map[string]*gojsonschema.Schema, len(entries))
	for _, entry := range entries {
		data, err := stepFS.ReadFile("steps/" + entry.Name())
		if err != nil {
			stepErr = fmt.Errorf("failed to read step schema %s: %w", entry.Name(), err)
			return
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		if err != nil {
			stepErr = &SchemaLoadError{Name: entry.Name(), Message: "invalid schema", Cause: err}
			return
		}
		name := entry.Name()[:len(entry.Name())-len(".json")]
		stepSchemas[name] = schema
	}
}

// HasStepSchema reports whether an output schema is registered for the step.
func HasStepSchema(step string) bool {
	stepOnce.Do(loadStepSchemas)
	_, ok := stepSchemas[step]
	return ok
}

// StepNames returns the steps that have an embedded output schema.
func StepNames() ([]string, error) {
	stepOnce.Do(loadStepSchemas)
	if stepErr != nil {
		return nil, stepErr
	}
	names := make([]string, 0, len(stepSchemas))
	for name := range stepSchemas {
		names = append(names, name)
	}
	return names, nil
}

// ValidateStepOutput checks a step's JSON-encoded output against its schema.
// Steps without a schema always pass.
func ValidateStepOutput(step string, output []byte) error {
	stepOnce.Do(loadStepSchemas)
	if stepErr != nil {
		return stepErr
	}

	schema, ok := stepSchemas[step]
	if !ok {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(output))
	if err != nil {
		return fmt.Errorf("failed to validate %s output: %w", step, err)
	}
	if result.Valid() {
		return nil
	}

	validationErr := &ValidationError{Errors: make([]FieldError, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{Field: field, Message: desc.Description()})
	}
	return validationErr
}
