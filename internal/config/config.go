// Package config loads VMConfig and the Ollama client settings from
// defaults, an optional YAML file, and environment variables, in that
// ascending priority (spec.md §6, SPEC_FULL.md §1.2).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sovereign-vm/sovereign/internal/vm"
	"github.com/sovereign-vm/sovereign/internal/vmerrors"
)

// Ollama carries the LLM client settings that live alongside, but
// outside, the VM's own resource bounds.
type Ollama struct {
	Host               string `yaml:"host"`
	Model              string `yaml:"model"`
	MaxRetries         int    `yaml:"max_retries"`
	ConnectionPoolSize int    `yaml:"connection_pool_size"`
}

// Settings is the fully resolved configuration for one process.
type Settings struct {
	VM            vm.Config
	Ollama        Ollama
	Debug         bool
	PatternDBPath string // empty means the evolution engine keeps patterns in memory only
}

// fileShape mirrors the optional YAML file. Every field is a pointer
// or zero-meaning-unset so Load can tell "absent" from "explicitly
// zero" and only override defaults for fields actually present.
type fileShape struct {
	MaxStackSize      *int    `yaml:"max_stack_size"`
	MaxControlDepth   *int    `yaml:"max_control_depth"`
	MaxMemoryEntries  *int    `yaml:"max_memory_entries"`
	MaxExecutionSteps *int    `yaml:"max_execution_steps"`
	MaxCallDepth      *int    `yaml:"max_call_depth"`
	LLMTimeoutMS      *int    `yaml:"llm_timeout_ms"`
	OllamaHost        *string `yaml:"ollama_host"`
	OllamaModel       *string `yaml:"ollama_model"`
	OllamaMaxRetries  *int    `yaml:"ollama_max_retries"`
	OllamaPoolSize    *int    `yaml:"ollama_connection_pool_size"`
	Debug             *bool   `yaml:"debug"`
	PatternDBPath     *string `yaml:"pattern_db_path"`
}

// Load resolves Settings: built-in defaults, then DefaultConfigFile
// if it exists in the working directory, then the environment
// variables named in spec.md §6 and their VMConfig siblings.
func Load() (Settings, error) {
	s := Settings{
		VM: vm.DefaultConfig(),
		Ollama: Ollama{
			Host:               "http://localhost:11434",
			Model:              "llama3.2",
			MaxRetries:         3,
			ConnectionPoolSize: 10,
		},
	}

	if err := s.applyFile(DefaultConfigFile); err != nil {
		return s, err
	}
	s.applyEnv()

	if err := s.VM.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

func (s *Settings) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return vmerrors.Wrap(vmerrors.KindInvalidConfiguration, "reading "+path, err)
	}

	var f fileShape
	if err := yaml.Unmarshal(data, &f); err != nil {
		return vmerrors.Wrap(vmerrors.KindInvalidConfiguration, "parsing "+path, err)
	}

	if f.MaxStackSize != nil {
		s.VM.MaxStackSize = *f.MaxStackSize
	}
	if f.MaxControlDepth != nil {
		s.VM.MaxControlDepth = *f.MaxControlDepth
	}
	if f.MaxMemoryEntries != nil {
		s.VM.MaxMemoryEntries = *f.MaxMemoryEntries
	}
	if f.MaxExecutionSteps != nil {
		s.VM.MaxExecutionSteps = *f.MaxExecutionSteps
	}
	if f.MaxCallDepth != nil {
		s.VM.MaxCallDepth = *f.MaxCallDepth
	}
	if f.LLMTimeoutMS != nil {
		s.VM.LLMRequestTimeout = time.Duration(*f.LLMTimeoutMS) * time.Millisecond
	}
	if f.OllamaHost != nil {
		s.Ollama.Host = *f.OllamaHost
		s.VM.LLMEndpoint = *f.OllamaHost
	}
	if f.OllamaModel != nil {
		s.Ollama.Model = *f.OllamaModel
		s.VM.DefaultModel = *f.OllamaModel
	}
	if f.OllamaMaxRetries != nil {
		s.Ollama.MaxRetries = *f.OllamaMaxRetries
	}
	if f.OllamaPoolSize != nil {
		s.Ollama.ConnectionPoolSize = *f.OllamaPoolSize
	}
	if f.Debug != nil {
		s.Debug = *f.Debug
	}
	if f.PatternDBPath != nil {
		s.PatternDBPath = *f.PatternDBPath
	}
	return nil
}

func (s *Settings) applyEnv() {
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		s.Ollama.Host = v
		s.VM.LLMEndpoint = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		s.Ollama.Model = v
		s.VM.DefaultModel = v
	}
	if v := os.Getenv("SOVEREIGN_DEBUG"); v != "" {
		s.Debug = true
	}
	if v := os.Getenv("SOVEREIGN_PATTERN_DB"); v != "" {
		s.PatternDBPath = v
	}

	envInt(&s.VM.MaxStackSize, "SOVEREIGN_MAX_STACK_SIZE")
	envInt(&s.VM.MaxControlDepth, "SOVEREIGN_MAX_CONTROL_DEPTH")
	envInt(&s.VM.MaxMemoryEntries, "SOVEREIGN_MAX_MEMORY_ENTRIES")
	envInt(&s.VM.MaxExecutionSteps, "SOVEREIGN_MAX_EXECUTION_STEPS")
	envInt(&s.VM.MaxCallDepth, "SOVEREIGN_MAX_CALL_DEPTH")
	envInt(&s.Ollama.MaxRetries, "OLLAMA_MAX_RETRIES")
	envInt(&s.Ollama.ConnectionPoolSize, "OLLAMA_CONNECTION_POOL_SIZE")

	if v := os.Getenv("SOVEREIGN_LLM_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			s.VM.LLMRequestTimeout = time.Duration(ms) * time.Millisecond
		}
	}
}

func envInt(dst *int, name string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

// ConfigError renders err for a CLI driver's exit-code-64 path
// (spec.md §6).
func ConfigError(err error) string {
	return fmt.Sprintf("configuration error: %v", err)
}
