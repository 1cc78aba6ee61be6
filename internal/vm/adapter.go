package vm

import "context"

// LLMAdapter is the seam between the VM and the Evolution Subsystem
// (spec.md §9 "Cyclic references"). The VM depends only on this
// interface; the concrete implementation lives in package evolution,
// which owns the sandbox VM construction the reverse direction would
// otherwise require at construction time.
type LLMAdapter interface {
	// Generate produces code text for prompt, bounded by ctx's
	// deadline. Returns LLMUnavailable/LLMTimeout/LLMMalformed as
	// vmerrors.VMError on failure.
	Generate(ctx context.Context, prompt string) (string, error)

	// Evolve produces a validated replacement for code given
	// errorText (and optional freeform context), bounded by ctx's
	// deadline. Returns EvolutionFailed if no candidate validates.
	Evolve(ctx context.Context, code, errorText, hint string) (string, error)
}
