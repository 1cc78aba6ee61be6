package evolution

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sovereign-vm/sovereign/internal/parser"
	"github.com/sovereign-vm/sovereign/internal/vm"
	"github.com/sovereign-vm/sovereign/internal/vmerrors"
)

// EngineConfig configures Engine construction.
type EngineConfig struct {
	Client       ClientConfig
	Store        Store // nil defaults to an in-memory store
	MaxAttempts  int
	InitDeadline time.Duration
	Log          *slog.Logger
}

// DefaultEngineConfig fills in the original's defaults (max_attempts
// of 3) plus a 5s bridge-ready deadline.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Client:       DefaultClientConfig(),
		MaxAttempts:  3,
		InitDeadline: 5 * time.Second,
	}
}

// Engine is the Evolution Subsystem's façade: it implements
// vm.LLMAdapter and owns the model registry, pattern store, client,
// and bridge.
type Engine struct {
	cfg      EngineConfig
	client   *OllamaClient
	bridge   *Bridge
	models   *ModelRegistry
	store    Store
	log      *slog.Logger

	mu       sync.Mutex
	attempts []Attempt
}

// New builds an Engine. Call Initialize before using it as a
// vm.LLMAdapter.
func New(cfg EngineConfig) *Engine {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitDeadline == 0 {
		cfg.InitDeadline = 5 * time.Second
	}
	client := NewOllamaClient(cfg.Client)
	e := &Engine{
		cfg:    cfg,
		client: client,
		bridge: NewBridge(client),
		store:  cfg.Store,
		log:    cfg.Log,
	}
	e.models = NewModelRegistry(func(ctx context.Context, modelID string) bool {
		return client.HealthCheck(ctx)
	})
	return e
}

// Initialize starts the bridge's worker (spec.md §4.5).
func (e *Engine) Initialize() error {
	if err := e.bridge.Initialize(e.cfg.InitDeadline); err != nil {
		return err
	}
	e.log.Info("evolution bridge initialized")
	return nil
}

// Shutdown stops the bridge's worker and closes the connection pool.
func (e *Engine) Shutdown() {
	e.bridge.Shutdown()
	e.log.Info("evolution bridge shut down")
}

// Models exposes the model registry for callers that want to inspect
// or extend it directly.
func (e *Engine) Models() *ModelRegistry { return e.models }

// Store exposes the pattern store for export/import by a driver.
func (e *Engine) Store() Store { return e.store }

// Generate implements vm.LLMAdapter: a single chat round-trip asking
// the selected model to produce code for prompt.
func (e *Engine) Generate(ctx context.Context, prompt string) (string, error) {
	model, ok := e.models.Select(ctx, []Capability{CapCodeGeneration}, false)
	if !ok {
		return "", vmerrors.New(vmerrors.KindLLMUnavailable, "no model satisfies CodeGeneration")
	}

	result, err := e.bridge.Submit(ctx, func(ctx context.Context) (any, error) {
		return e.client.Chat(ctx, model.ID, []ChatMessage{
			{Role: "system", Content: "You write PROJECT SOVEREIGN assembly. Respond with code only, no prose, no markdown fences."},
			{Role: "user", Content: prompt},
		})
	})
	if err != nil {
		return "", err
	}
	resp := result.(Response)
	return stripFences(resp.Content), nil
}

// Evolve implements vm.LLMAdapter: categorizes the error, consults
// the pattern store for similar prior fixes, asks the model for a
// corrected program, validates candidates in a
// sandbox VM, and records the outcome (spec.md §4.5, §4.4;
// SPEC_FULL.md §3.5).
func (e *Engine) Evolve(ctx context.Context, code, errorText, hint string) (string, error) {
	category := Categorize(errorText)
	similar, hasSimilar := e.store.FindSimilar(category, errorText)
	e.store.Record(category, errorText)

	model, ok := e.models.Select(ctx, []Capability{CapErrorAnalysis, CapCodeGeneration}, false)
	if !ok {
		return "", vmerrors.New(vmerrors.KindLLMUnavailable, "no model satisfies ErrorAnalysis+CodeGeneration")
	}

	var lastErr error
	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		prompt := buildFixPrompt(code, errorText, hint, similar, hasSimilar)
		result, err := e.bridge.Submit(ctx, func(ctx context.Context) (any, error) {
			return e.client.Chat(ctx, model.ID, []ChatMessage{
				{Role: "system", Content: "You repair PROJECT SOVEREIGN assembly. Respond with corrected code only."},
				{Role: "user", Content: prompt},
			})
		})
		if err != nil {
			lastErr = err
			continue
		}
		candidate := stripFences(result.(Response).Content)

		score, validated := validateCandidate(candidate, category)
		e.recordAttempt(code, errorText, candidate, validated, score, model.ID)
		e.store.UpdateSuccess(category, errorText, validated, candidate)

		if validated {
			return candidate, nil
		}
		lastErr = vmerrors.New(vmerrors.KindEvolutionFailed, fmt.Sprintf("candidate scored %.2f, below acceptance threshold", score))
	}

	if lastErr == nil {
		lastErr = vmerrors.New(vmerrors.KindEvolutionFailed, "no candidate passed validation")
	}
	return "", lastErr
}

func (e *Engine) recordAttempt(code, errorText, candidate string, validated bool, score float64, model string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempts = append(e.attempts, Attempt{
		Timestamp: time.Now().UTC(),
		Code:      code,
		ErrorText: errorText,
		Candidate: candidate,
		Validated: validated,
		Score:     score,
		Model:     model,
	})
}

// Stats aggregates the attempt history (SPEC_FULL.md §3.3).
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Stats{CategoryBreakdown: map[Category]int{}}
	for _, a := range e.attempts {
		s.TotalAttempts++
		if a.Validated {
			s.SuccessfulFixes++
		}
		s.CategoryBreakdown[Categorize(a.ErrorText)]++
	}
	if s.TotalAttempts > 0 {
		s.SuccessRate = float64(s.SuccessfulFixes) / float64(s.TotalAttempts)
	}
	return s
}

// buildFixPrompt follows the original's _create_fix_prompt shape
// (SPEC_FULL.md §3.5): original code, error text, the optional
// context hint, and up to three fix templates of the most similar
// stored pattern, annotated with that pattern's success rate.
func buildFixPrompt(code, errorText, hint string, similar Pattern, hasSimilar bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original code:\n%s\n\n", code)
	fmt.Fprintf(&b, "Error:\n%s\n\n", errorText)
	if hint != "" {
		fmt.Fprintf(&b, "Context:\n%s\n\n", hint)
	}
	if hasSimilar && len(similar.FixTemplates) > 0 {
		b.WriteString("Similar prior fixes (success rate ")
		fmt.Fprintf(&b, "%.2f):\n", similar.FixSuccessRate)
		for i, t := range similar.FixTemplates {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&b, "---\n%s\n", t)
		}
	}
	b.WriteString("Produce a corrected program.")
	return b.String()
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```sovereign")
	s = strings.TrimPrefix(s, "```asm")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// validateCandidate parses candidate, runs it to completion in a
// sandbox VM, and scores it as a weighted sum of: parses cleanly,
// terminates without error, does not reproduce originalCategory, and
// stays within the sandbox's resource bounds (spec.md §4.5). A
// candidate is accepted iff score > 0.7.
func validateCandidate(candidate string, originalCategory Category) (float64, bool) {
	program, errs := parser.Parse(candidate)
	if len(errs) > 0 {
		return 0, false
	}

	sandbox, err := vm.New(vm.SandboxConfig(), nil, nil, slog.Default())
	if err != nil {
		return 0, false
	}
	sandbox.Load(program)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	runErr := sandbox.Run(ctx)

	score := 0.4 // parses cleanly
	if runErr == nil {
		score += 0.4 // terminates without error
	} else if Categorize(runErr.Error()) != originalCategory {
		score += 0.2 // fails, but not the same way as before
	}
	if !exceededBounds(sandbox) {
		score += 0.2
	}

	return score, score > 0.7
}

func exceededBounds(m *vm.VM) bool {
	snap := m.DumpState()
	if snap.Err == nil {
		return false
	}
	ve, ok := snap.Err.(*vmerrors.VMError)
	if !ok {
		return false
	}
	switch ve.Kind {
	case vmerrors.KindStackOverflow, vmerrors.KindMemoryLimitExceeded, vmerrors.KindCallDepthExceeded, vmerrors.KindStepLimitExceeded:
		return true
	default:
		return false
	}
}
