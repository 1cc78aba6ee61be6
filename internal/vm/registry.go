package vm

import (
	"sync"

	"github.com/sovereign-vm/sovereign/internal/ast"
)

// Category groups related opcodes for listing and documentation
// (spec.md §4.3).
type Category string

const (
	CategoryStack      Category = "Stack"
	CategoryArithmetic Category = "Arithmetic"
	CategoryControl    Category = "Control"
	CategoryMemory     Category = "Memory"
)

// Executor runs one decoded instruction against the live VM.
// advance reports whether the dispatch loop should increment PC by
// one afterward; control-flow executors that set PC themselves
// return false.
type Executor func(m *VM, operands []ast.Operand) (advance bool, err error)

// OperationDescriptor is a registry entry: everything the dispatch
// loop needs to validate and run one mnemonic.
type OperationDescriptor struct {
	Name         string
	Category     Category
	Arity        int
	OperandKinds []ast.OperandKind
	Executor     Executor
}

// Registry maps mnemonic to OperationDescriptor and is extensible at
// runtime (spec.md §4.3). The zero value is usable; NewRegistry
// pre-populates the 32 builtins.
type Registry struct {
	mu    sync.RWMutex
	descs map[string]*OperationDescriptor
}

// NewRegistry returns a Registry with the 32 builtin descriptors
// already registered.
func NewRegistry() *Registry {
	r := &Registry{descs: make(map[string]*OperationDescriptor)}
	registerBuiltins(r)
	return r
}

// Get looks up a descriptor by mnemonic. ok is false if unregistered.
func (r *Registry) Get(mnemonic string) (*OperationDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descs[mnemonic]
	return d, ok
}

// Register adds or replaces a descriptor, keyed by its Name.
func (r *Registry) Register(d *OperationDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.descs == nil {
		r.descs = make(map[string]*OperationDescriptor)
	}
	r.descs[d.Name] = d
}

// List returns every descriptor, optionally filtered to one category.
func (r *Registry) List(category Category) []*OperationDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*OperationDescriptor, 0, len(r.descs))
	for _, d := range r.descs {
		if category == "" || d.Category == category {
			out = append(out, d)
		}
	}
	return out
}
