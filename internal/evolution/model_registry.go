package evolution

import (
	"context"
	"sort"
)

// Capability is one of the enumerated model capabilities (spec.md
// §4.5).
type Capability string

const (
	CapCodeGeneration     Capability = "CodeGeneration"
	CapErrorAnalysis      Capability = "ErrorAnalysis"
	CapInstructionFollow  Capability = "InstructionFollowing"
	CapReasoning          Capability = "Reasoning"
	CapLongContext        Capability = "LongContext"
	CapFastInference      Capability = "FastInference"
)

// ModelInfo describes one registered model.
type ModelInfo struct {
	ID            string
	Capabilities  map[Capability]bool
	ContextLength int
}

func (m ModelInfo) hasAll(required []Capability) bool {
	for _, c := range required {
		if !m.Capabilities[c] {
			return false
		}
	}
	return true
}

// healthProbe reports whether a model endpoint answers; injected so
// ModelRegistry.Select is testable without a live Ollama server.
type healthProbe func(ctx context.Context, modelID string) bool

// ModelRegistry maps model identifiers to capability sets and
// resolves a capability query to a concrete, healthy model id,
// following fallback chains the way the original's ModelManager does
// (SPEC_FULL.md §3.2).
type ModelRegistry struct {
	models []ModelInfo
	probe  healthProbe
}

// NewModelRegistry returns a registry pre-populated with the known
// Ollama-compatible models the original's ModelManager ships with.
func NewModelRegistry(probe healthProbe) *ModelRegistry {
	r := &ModelRegistry{probe: probe}
	for _, m := range knownModels() {
		r.models = append(r.models, m)
	}
	return r
}

func knownModels() []ModelInfo {
	all := func(caps ...Capability) map[Capability]bool {
		m := make(map[Capability]bool, len(caps))
		for _, c := range caps {
			m[c] = true
		}
		return m
	}
	return []ModelInfo{
		{ID: "qwen2.5-coder", Capabilities: all(CapCodeGeneration, CapErrorAnalysis, CapLongContext), ContextLength: 32000},
		{ID: "llama3.2", Capabilities: all(CapCodeGeneration, CapInstructionFollow, CapReasoning), ContextLength: 128000},
		{ID: "deepseek-coder-v2", Capabilities: all(CapCodeGeneration, CapErrorAnalysis, CapReasoning, CapLongContext), ContextLength: 128000},
		{ID: "mistral", Capabilities: all(CapInstructionFollow, CapReasoning), ContextLength: 32000},
		{ID: "codellama", Capabilities: all(CapCodeGeneration), ContextLength: 16000},
		{ID: "llama3.2:1b", Capabilities: all(CapInstructionFollow, CapFastInference), ContextLength: 128000},
	}
}

// Register adds or replaces a model entry.
func (r *ModelRegistry) Register(m ModelInfo) {
	for i, existing := range r.models {
		if existing.ID == m.ID {
			r.models[i] = m
			return
		}
	}
	r.models = append(r.models, m)
}

// candidates returns every registered model satisfying required, in
// selection-preference order: a model tagged FastInference wins iff
// preferFast, otherwise the earliest registered wins (spec.md §4.5).
// Registration order is otherwise preserved untouched.
func (r *ModelRegistry) candidates(required []Capability, preferFast bool) []ModelInfo {
	var out []ModelInfo
	for _, m := range r.models {
		if m.hasAll(required) {
			out = append(out, m)
		}
	}
	if preferFast {
		sort.SliceStable(out, func(i, j int) bool {
			fi, fj := out[i].Capabilities[CapFastInference], out[j].Capabilities[CapFastInference]
			return fi && !fj
		})
	}
	return out
}

// Select returns the first candidate (by preference order) whose
// health probe succeeds, trying the rest of the fallback chain in
// order when a candidate fails (SPEC_FULL.md §3.2). ok is false iff
// no candidate is registered or none answers.
func (r *ModelRegistry) Select(ctx context.Context, required []Capability, preferFast bool) (ModelInfo, bool) {
	for _, m := range r.candidates(required, preferFast) {
		if r.probe == nil || r.probe(ctx, m.ID) {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// FallbackChain returns the top-3 candidates in selection-preference
// order for required, mirroring the original's get_fallback_chain.
func (r *ModelRegistry) FallbackChain(required []Capability) []ModelInfo {
	cands := r.candidates(required, false)
	if len(cands) > 3 {
		cands = cands[:3]
	}
	return cands
}
