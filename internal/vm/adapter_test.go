package vm

import "context"

// fakeAdapter is a scriptable LLMAdapter stand-in, letting VM tests
// exercise LLMGEN/EVOLVE without a live evolution engine.
type fakeAdapter struct {
	generateFn func(ctx context.Context, prompt string) (string, error)
	evolveFn   func(ctx context.Context, code, errorText, hint string) (string, error)
}

func (f *fakeAdapter) Generate(ctx context.Context, prompt string) (string, error) {
	return f.generateFn(ctx, prompt)
}

func (f *fakeAdapter) Evolve(ctx context.Context, code, errorText, hint string) (string, error) {
	return f.evolveFn(ctx, code, errorText, hint)
}
