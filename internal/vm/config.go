package vm

import (
	"time"

	"github.com/sovereign-vm/sovereign/internal/vmerrors"
)

// Config carries every resource bound and LLM-client setting the VM
// needs. All limits must be positive; a zero or negative value is a
// configuration error, never silently clamped.
type Config struct {
	MaxStackSize      int
	MaxControlDepth   int
	MaxMemoryEntries  int
	MaxExecutionSteps int
	MaxCallDepth      int
	LLMRequestTimeout time.Duration
	LLMEndpoint       string
	DefaultModel      string
}

// DefaultConfig returns the conservative defaults used when an
// embedding driver does not override them.
func DefaultConfig() Config {
	return Config{
		MaxStackSize:      1000,
		MaxControlDepth:   100,
		MaxMemoryEntries:  10000,
		MaxExecutionSteps: 100000,
		MaxCallDepth:      100,
		LLMRequestTimeout: 30 * time.Second,
		LLMEndpoint:       "http://localhost:11434",
		DefaultModel:      "llama3.2",
	}
}

// SandboxConfig returns the tight configuration used to validate
// evolution candidates (spec.md §4.5).
func SandboxConfig() Config {
	return Config{
		MaxStackSize:      100,
		MaxControlDepth:   20,
		MaxMemoryEntries:  1000,
		MaxExecutionSteps: 1000,
		MaxCallDepth:      20,
		LLMRequestTimeout: time.Second,
		LLMEndpoint:       "http://localhost:11434",
		DefaultModel:      "llama3.2",
	}
}

// Validate rejects any non-positive limit.
func (c Config) Validate() error {
	if c.MaxStackSize <= 0 {
		return vmerrors.New(vmerrors.KindInvalidConfiguration, "max_stack_size must be positive")
	}
	if c.MaxControlDepth <= 0 {
		return vmerrors.New(vmerrors.KindInvalidConfiguration, "max_control_depth must be positive")
	}
	if c.MaxMemoryEntries <= 0 {
		return vmerrors.New(vmerrors.KindInvalidConfiguration, "max_memory_entries must be positive")
	}
	if c.MaxExecutionSteps <= 0 {
		return vmerrors.New(vmerrors.KindInvalidConfiguration, "max_execution_steps must be positive")
	}
	if c.MaxCallDepth <= 0 {
		return vmerrors.New(vmerrors.KindInvalidConfiguration, "max_call_depth must be positive")
	}
	if c.LLMRequestTimeout <= 0 {
		return vmerrors.New(vmerrors.KindInvalidConfiguration, "llm_request_timeout must be positive")
	}
	return nil
}
