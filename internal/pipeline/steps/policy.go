package steps

import (
	"sort"

	"github.com/jonathan/catalyst/internal/types"
)

// DefaultFatalSteps are the steps whose failure halts a run
var DefaultFatalSteps = []types.StepType{
	types.StepVisionAnalysis,
	types.StepMarketResearch,
	types.StepContentGeneration,
}

// Policy is the fatal/non-fatal table consulted when a step fails
type Policy struct {
	fatal map[types.StepType]bool
}

// DefaultPolicy returns the policy with DefaultFatalSteps marked fatal
func DefaultPolicy() Policy {
	return NewPolicy(DefaultFatalSteps)
}

// NewPolicy builds a policy marking the given steps fatal
func NewPolicy(fatal []types.StepType) Policy {
	p := Policy{fatal: make(map[types.StepType]bool, len(fatal))}
	for _, st := range fatal {
		p.fatal[st] = true
	}
	return p
}

// PolicyFromNames builds a policy from configured step names
func PolicyFromNames(names []string) (Policy, error) {
	fatal := make([]types.StepType, 0, len(names))
	for _, name := range names {
		st, err := types.ParseStepType(name)
		if err != nil {
			return Policy{}, err
		}
		fatal = append(fatal, st)
	}
	return NewPolicy(fatal), nil
}

// IsFatal reports whether st is in the fatal set
func (p Policy) IsFatal(st types.StepType) bool {
	return p.fatal[st]
}

// FatalSteps returns the fatal set in a stable order
func (p Policy) FatalSteps() []types.StepType {
	out := make([]types.StepType, 0, len(p.fatal))
	for st := range p.fatal {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
