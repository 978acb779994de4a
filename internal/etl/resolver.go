package etl

import (
	"context"
	"fmt"

	"sqlnosql/internal/domain"
)

// Action is what happens to one target entity.
type Action string

const (
	ActionWrite     Action = "write"     // target absent
	ActionOverwrite Action = "overwrite" // drop, then write
	ActionSkip      Action = "skip"
	ActionAbort     Action = "abort" // declined by the caller
)

// Strategy is the batch-wide answer to collisions.
type Strategy string

const (
	StrategyOverwriteAll Strategy = "overwrite_all"
	StrategySkipExisting Strategy = "skip_existing"
)

// Resolver turns a collision policy plus existence into an Action,
// consulting the Confirmer when the policy is ask.
type Resolver struct {
	Confirmer Confirmer
}

// ResolveSingle decides for one conversion whose target may exist.
func (r *Resolver) ResolveSingle(ctx context.Context, job domain.ConversionJob, exists bool) (Action, error) {
	if !exists {
		return ActionWrite, nil
	}
	switch job.Policy {
	case domain.PolicyOverwrite:
		return ActionOverwrite, nil
	case domain.PolicySkip:
		return ActionSkip, nil
	}

	if r.Confirmer == nil {
		return "", fmt.Errorf("target %q exists and no confirmer is configured", job.Target)
	}
	d, err := r.Confirmer.RequestDecision(ctx, DecisionRequest{
		Kind:    DecisionKindOverwrite,
		Entity:  job.Target,
		Message: fmt.Sprintf("Target %q already exists. Overwrite it?", job.Target),
	})
	if err != nil {
		return "", err
	}
	switch d {
	case DecisionOverwrite:
		return ActionOverwrite, nil
	case DecisionAbort:
		return ActionAbort, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDecision, d)
}

// ResolveStrategy picks the batch strategy once. existing lists the
// colliding targets and is only used to phrase the question.
func (r *Resolver) ResolveStrategy(ctx context.Context, job domain.BatchJob, existing []string) (Strategy, error) {
	switch job.Policy {
	case domain.PolicyOverwrite:
		return StrategyOverwriteAll, nil
	case domain.PolicySkip:
		return StrategySkipExisting, nil
	}

	if r.Confirmer == nil {
		return "", fmt.Errorf("%d targets exist and no confirmer is configured", len(existing))
	}
	d, err := r.Confirmer.RequestDecision(ctx, DecisionRequest{
		Kind:    DecisionKindStrategy,
		Message: fmt.Sprintf("%d target(s) already exist %v. Overwrite all of them, or skip existing ones?", len(existing), existing),
	})
	if err != nil {
		return "", err
	}
	switch d {
	case DecisionOverwriteAll:
		return StrategyOverwriteAll, nil
	case DecisionSkipExisting:
		return StrategySkipExisting, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDecision, d)
}

// ActionFor applies a batch strategy to one target.
func ActionFor(s Strategy, exists bool) Action {
	switch {
	case !exists:
		return ActionWrite
	case s == StrategyOverwriteAll:
		return ActionOverwrite
	}
	return ActionSkip
}
