// Package vm implements the dual-stack fetch-decode-execute engine
// (component C4) plus its opcode registry (C3) and Value model.
package vm

import (
	"context"
	"log/slog"

	"github.com/sovereign-vm/sovereign/internal/ast"
	"github.com/sovereign-vm/sovereign/internal/vmerrors"
)

// VM is one executable instance: a loaded Program, a Registry of
// dispatchable operations, live State, and an optional LLM adapter.
// A VM is not safe for concurrent use; execution is single-threaded
// by design (spec.md §5).
type VM struct {
	config   Config
	registry *Registry
	program  *ast.Program
	state    *State
	adapter  LLMAdapter
	log      *slog.Logger
	runCtx   context.Context

	cancel func() bool // returns true if the caller requested cancellation
}

// New builds a VM with the given config and registry. registry may be
// nil, in which case a fresh builtin registry is created. adapter may
// be nil; LLMGEN/EVOLVE then fail LLMUnavailable.
func New(config Config, registry *Registry, adapter LLMAdapter, log *slog.Logger) (*VM, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if log == nil {
		log = slog.Default()
	}
	return &VM{
		config:   config,
		registry: registry,
		state:    NewState(),
		adapter:  adapter,
		log:      log,
	}, nil
}

// Registry returns the VM's opcode registry, so callers may register
// additional descriptors before Run.
func (m *VM) Registry() *Registry { return m.registry }

// SetCancel installs a cooperative cancellation predicate, polled at
// dispatch boundaries (spec.md §5). A nil predicate disables
// cancellation checking.
func (m *VM) SetCancel(cancel func() bool) { m.cancel = cancel }

// Load installs a Program to execute and resets VM State. The
// Program is treated as read-only afterward (spec.md §3 Lifecycles).
func (m *VM) Load(p *ast.Program) {
	m.program = p
	m.state = NewState()
	m.log.Info("program loaded", "instructions", p.Length())
}

// Reset returns VM State to an equivalent-to-new value without
// discarding the loaded Program.
func (m *VM) Reset() {
	m.state = NewState()
}

// DumpState returns a deep-copied snapshot of the live state.
func (m *VM) DumpState() Snapshot {
	return m.state.DumpState()
}

// StepOutcome reports what Step just did, for callers stepping
// instruction-at-a-time (a debugger or REPL).
type StepOutcome struct {
	Halted   bool
	PC       int
	Mnemonic string
}

// Run dispatches instructions from the current PC until the program
// halts naturally, a typed error occurs, or the step budget is
// exhausted. ctx's deadline (if any) is only consulted at LLMGEN/
// EVOLVE; overall cancellation uses SetCancel instead, per spec.md §5.
func (m *VM) Run(ctx context.Context) error {
	if m.program == nil {
		return vmerrors.New(vmerrors.KindUnknownOpcode, "no program loaded")
	}
	m.state.Running = true
	m.log.Info("run started", "pc", m.state.PC)

	for m.state.Running {
		if m.cancel != nil && m.cancel() {
			m.fail(vmerrors.New(vmerrors.KindCancelled, "execution cancelled"))
			return m.state.Err
		}

		outcome, err := m.step(ctx)
		if err != nil {
			return err
		}
		if outcome.Halted {
			break
		}
	}

	m.log.Info("run stopped", "pc", m.state.PC, "steps", m.state.Steps, "err", m.state.Err)
	return m.state.Err
}

// Step dispatches exactly one instruction at the current PC.
func (m *VM) Step(ctx context.Context) (StepOutcome, error) {
	if m.program == nil {
		return StepOutcome{}, vmerrors.New(vmerrors.KindUnknownOpcode, "no program loaded")
	}
	if !m.state.Running && m.state.Steps == 0 {
		m.state.Running = true
	}
	return m.step(ctx)
}

// StepOne decodes and dispatches a single, already-parsed instruction
// against the live state without touching PC-driven advancement.
// This is additive to Step/Run, grounded on the original
// interpreter's REPL-oriented single-instruction execution mode.
func (m *VM) StepOne(ctx context.Context, instr *ast.Instruction) error {
	desc, ok := m.registry.Get(instr.Mnemonic)
	if !ok {
		return m.fail(vmerrors.New(vmerrors.KindUnknownOpcode, "unknown opcode "+instr.Mnemonic))
	}
	if err := validateOperands(desc, instr.Operands); err != nil {
		return m.fail(err)
	}
	m.runCtx = ctx
	_, err := desc.Executor(m, instr.Operands)
	if err != nil {
		return m.fail(err)
	}
	return nil
}

func (m *VM) step(ctx context.Context) (StepOutcome, error) {
	// The step that would bring the count to MaxExecutionSteps fails
	// instead of dispatching, and is counted like any failing step.
	if m.state.Steps+1 >= m.config.MaxExecutionSteps {
		m.state.Steps++
		return StepOutcome{}, m.fail(vmerrors.New(vmerrors.KindStepLimitExceeded, "execution step limit exceeded"))
	}

	instr := m.program.InstructionAt(m.state.PC)
	if instr == nil {
		m.state.Running = false
		return StepOutcome{Halted: true, PC: m.state.PC}, nil
	}

	desc, ok := m.registry.Get(instr.Mnemonic)
	if !ok {
		return StepOutcome{}, m.fail(vmerrors.New(vmerrors.KindUnknownOpcode, "unknown opcode "+instr.Mnemonic))
	}
	if err := validateOperands(desc, instr.Operands); err != nil {
		return StepOutcome{}, m.fail(err)
	}

	m.log.Debug("dispatch", "pc", m.state.PC, "op", instr.Mnemonic)
	m.state.Steps++

	m.runCtx = ctx
	advance, err := desc.Executor(m, instr.Operands)
	if err != nil {
		return StepOutcome{}, m.fail(err)
	}
	if advance {
		m.state.PC++
	}

	if !m.state.Running {
		return StepOutcome{Halted: true, PC: m.state.PC, Mnemonic: instr.Mnemonic}, nil
	}
	if m.state.PC >= m.program.Length() {
		m.state.Running = false
		return StepOutcome{Halted: true, PC: m.state.PC, Mnemonic: instr.Mnemonic}, nil
	}
	return StepOutcome{PC: m.state.PC, Mnemonic: instr.Mnemonic}, nil
}

func validateOperands(desc *OperationDescriptor, operands []ast.Operand) error {
	if desc.Arity >= 0 && len(operands) != desc.Arity {
		return vmerrors.New(vmerrors.KindOperandMismatch,
			desc.Name+" expects "+itoa(desc.Arity)+" operand(s)")
	}
	if desc.Arity < 0 && len(operands) > 1 {
		return vmerrors.New(vmerrors.KindOperandMismatch, desc.Name+" expects at most one operand")
	}
	for _, op := range operands {
		if !kindAllowed(desc.OperandKinds, op.Kind) {
			return vmerrors.New(vmerrors.KindOperandMismatch, desc.Name+" received an unsupported operand kind")
		}
	}
	return nil
}

func kindAllowed(allowed []ast.OperandKind, k ast.OperandKind) bool {
	if len(allowed) == 0 {
		return false
	}
	for _, a := range allowed {
		if a == k {
			return true
		}
	}
	return false
}

func itoa(n int) string {
	if n < 0 {
		return "any number of"
	}
	digits := "0123456789"
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{digits[n%10]}, b...)
		n /= 10
	}
	return string(b)
}

// llmContext derives a bounded context for one LLM-capable
// instruction, scoped to config.LLMRequestTimeout (spec.md §4.4).
func (m *VM) llmContext() (context.Context, context.CancelFunc) {
	base := m.runCtx
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(base, m.config.LLMRequestTimeout)
}

// fail records a typed error on VM state (spec.md §4.4, §7): running
// becomes false and error_state is populated. fail changes nothing
// else; the step counter already counts the failing step.
func (m *VM) fail(err error) error {
	m.state.Running = false
	m.state.Err = err
	m.log.Warn("vm fault", "err", err)
	return err
}
