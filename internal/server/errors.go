package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/catalyst/internal/pipeline"
	"github.com/jonathan/catalyst/internal/pipeline/steps"
	"github.com/jonathan/catalyst/internal/types"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validationErr *ErrValidation
		fieldErrs     validator.ValidationErrors
		dependencyErr *steps.DependencyError
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &fieldErrs):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrContractViolation):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrRunNotFound), errors.Is(err, pipeline.ErrAssetNotFound),
		errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrRunBusy),
		errors.Is(err, pipeline.ErrInvalidRunState),
		errors.Is(err, types.ErrInvalidTransition),
		errors.Is(err, pipeline.ErrStepNotRetryable),
		errors.As(err, &dependencyErr):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
