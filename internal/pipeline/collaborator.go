package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonathan/catalyst/internal/types"
)

// ErrContractViolation marks a programming defect: a collaborator was handed
// an input of the wrong shape, or returned something other than its declared output.
var ErrContractViolation = errors.New("contract violation")

// Collaborator performs the work of one step.
type Collaborator interface {
	Run(ctx context.Context, input any) (any, error)
}

// Collaborators maps each step type to the collaborator that executes it.
type Collaborators map[types.StepType]Collaborator

type typedCollaborator[I, O any] struct {
	fn func(context.Context, *I) (*O, error)
}

// Adapt wraps a typed step function as a Collaborator.
func Adapt[I, O any](fn func(context.Context, *I) (*O, error)) Collaborator {
	return typedCollaborator[I, O]{fn: fn}
}

func (c typedCollaborator[I, O]) Run(ctx context.Context, input any) (any, error) {
	in, ok := input.(*I)
	if !ok || in == nil {
		var want *I
		return nil, fmt.Errorf("%w: expected input %T, got %T", ErrContractViolation, want, input)
	}
	out, err := c.fn(ctx, in)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, types.NewCollaboratorError(types.ErrorKindMalformedOutput, "collaborator returned no output", nil)
	}
	return out, nil
}
