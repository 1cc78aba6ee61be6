package vm

import (
	"math"

	"github.com/sovereign-vm/sovereign/internal/ast"
	"github.com/sovereign-vm/sovereign/internal/vmerrors"
)

func registerBuiltins(r *Registry) {
	for _, d := range []*OperationDescriptor{
		// Stack (8)
		{Name: "PUSH", Category: CategoryStack, Arity: 1,
			OperandKinds: []ast.OperandKind{ast.KindRegister, ast.KindImmediate, ast.KindAddress, ast.KindString},
			Executor:     execPush},
		{Name: "POP", Category: CategoryStack, Arity: 0, Executor: execPop},
		{Name: "DUP", Category: CategoryStack, Arity: 0, Executor: execDup},
		{Name: "SWAP", Category: CategoryStack, Arity: 0, Executor: execSwap},
		{Name: "ROT", Category: CategoryStack, Arity: 0, Executor: execRot},
		{Name: "OVER", Category: CategoryStack, Arity: 0, Executor: execOver},
		{Name: "DROP", Category: CategoryStack, Arity: 0, Executor: execPop},
		{Name: "CLEAR", Category: CategoryStack, Arity: 0, Executor: execClear},

		// Arithmetic/Logic (8)
		{Name: "ADD", Category: CategoryArithmetic, Arity: 0, Executor: execBinary(binAdd)},
		{Name: "SUB", Category: CategoryArithmetic, Arity: 0, Executor: execBinary(binSub)},
		{Name: "MUL", Category: CategoryArithmetic, Arity: 0, Executor: execBinary(binMul)},
		{Name: "DIV", Category: CategoryArithmetic, Arity: 0, Executor: execBinary(binDiv)},
		{Name: "AND", Category: CategoryArithmetic, Arity: 0, Executor: execBinary(binAnd)},
		{Name: "OR", Category: CategoryArithmetic, Arity: 0, Executor: execBinary(binOr)},
		{Name: "XOR", Category: CategoryArithmetic, Arity: 0, Executor: execBinary(binXor)},
		{Name: "NOT", Category: CategoryArithmetic, Arity: 0, Executor: execNot},

		// Control (8)
		{Name: "JMP", Category: CategoryControl, Arity: 1, OperandKinds: []ast.OperandKind{ast.KindLabelRef}, Executor: execJmp},
		{Name: "JZ", Category: CategoryControl, Arity: 1, OperandKinds: []ast.OperandKind{ast.KindLabelRef}, Executor: execJz},
		{Name: "JNZ", Category: CategoryControl, Arity: 1, OperandKinds: []ast.OperandKind{ast.KindLabelRef}, Executor: execJnz},
		{Name: "CALL", Category: CategoryControl, Arity: 1, OperandKinds: []ast.OperandKind{ast.KindLabelRef}, Executor: execCall},
		{Name: "RET", Category: CategoryControl, Arity: 0, Executor: execRet},
		{Name: "FORK", Category: CategoryControl, Arity: 1, OperandKinds: []ast.OperandKind{ast.KindLabelRef}, Executor: execUnimplemented},
		{Name: "JOIN", Category: CategoryControl, Arity: 0, Executor: execUnimplemented},
		{Name: "HALT", Category: CategoryControl, Arity: 0, Executor: execHalt},

		// Memory/IO (8)
		{Name: "LOAD", Category: CategoryMemory, Arity: 1, OperandKinds: []ast.OperandKind{ast.KindAddress}, Executor: execLoad},
		{Name: "STORE", Category: CategoryMemory, Arity: 1, OperandKinds: []ast.OperandKind{ast.KindAddress}, Executor: execStore},
		{Name: "FOPEN", Category: CategoryMemory, Arity: 0, Executor: execUnimplemented},
		{Name: "FREAD", Category: CategoryMemory, Arity: 0, Executor: execUnimplemented},
		{Name: "FWRITE", Category: CategoryMemory, Arity: 0, Executor: execUnimplemented},
		{Name: "FCLOSE", Category: CategoryMemory, Arity: 0, Executor: execUnimplemented},
		{Name: "LLMGEN", Category: CategoryMemory, Arity: 1, OperandKinds: []ast.OperandKind{ast.KindString}, Executor: execLLMGen},
		{Name: "EVOLVE", Category: CategoryMemory, Arity: -1,
			OperandKinds: []ast.OperandKind{ast.KindString}, Executor: execEvolve},
	} {
		r.Register(d)
	}
}

// --- stack helpers --------------------------------------------------

func (m *VM) pushData(v Value) error {
	if len(m.state.DataStack) >= m.config.MaxStackSize {
		return vmerrors.New(vmerrors.KindStackOverflow, "data stack overflow")
	}
	m.state.DataStack = append(m.state.DataStack, v)
	return nil
}

func (m *VM) popData() (Value, error) {
	n := len(m.state.DataStack)
	if n == 0 {
		return Value{}, vmerrors.New(vmerrors.KindStackUnderflow, "data stack underflow")
	}
	v := m.state.DataStack[n-1]
	m.state.DataStack = m.state.DataStack[:n-1]
	return v, nil
}

func (m *VM) peekData() (Value, error) {
	n := len(m.state.DataStack)
	if n == 0 {
		return Value{}, vmerrors.New(vmerrors.KindStackUnderflow, "data stack underflow")
	}
	return m.state.DataStack[n-1], nil
}

func (m *VM) pushControl(f Frame) error {
	if len(m.state.ControlStack) >= m.config.MaxControlDepth {
		return vmerrors.New(vmerrors.KindCallDepthExceeded, "call depth exceeded")
	}
	m.state.ControlStack = append(m.state.ControlStack, f)
	return nil
}

func (m *VM) popControl() (Frame, error) {
	n := len(m.state.ControlStack)
	if n == 0 {
		return Frame{}, vmerrors.New(vmerrors.KindStackUnderflow, "control stack underflow")
	}
	f := m.state.ControlStack[n-1]
	m.state.ControlStack = m.state.ControlStack[:n-1]
	return f, nil
}

// resolveOperand converts an AST operand into a runtime Value.
func (m *VM) resolveOperand(op ast.Operand) (Value, error) {
	switch op.Kind {
	case ast.KindImmediate:
		return IntValue(op.Immediate), nil
	case ast.KindRegister:
		return m.state.Registers[op.Register%16], nil
	case ast.KindAddress:
		return AddressValue(op.Address), nil
	case ast.KindString:
		return StringValue(op.Str), nil
	case ast.KindLabelRef:
		return LabelValue(op.Label), nil
	default:
		return Value{}, vmerrors.New(vmerrors.KindOperandMismatch, "unresolvable operand")
	}
}

func (m *VM) resolveLabel(op ast.Operand) (int, error) {
	idx, ok := m.program.LabelIndex(op.Label)
	if !ok {
		return 0, vmerrors.New(vmerrors.KindUndefinedLabel, "undefined label "+op.Label)
	}
	return idx, nil
}

// --- Stack opcodes ---------------------------------------------------

func execPush(m *VM, ops []ast.Operand) (bool, error) {
	v, err := m.resolveOperand(ops[0])
	if err != nil {
		return false, err
	}
	if err := m.pushData(v); err != nil {
		return false, err
	}
	return true, nil
}

func execPop(m *VM, _ []ast.Operand) (bool, error) {
	if _, err := m.popData(); err != nil {
		return false, err
	}
	return true, nil
}

func execDup(m *VM, _ []ast.Operand) (bool, error) {
	v, err := m.peekData()
	if err != nil {
		return false, err
	}
	if err := m.pushData(v); err != nil {
		return false, err
	}
	return true, nil
}

func execSwap(m *VM, _ []ast.Operand) (bool, error) {
	if len(m.state.DataStack) < 2 {
		return false, vmerrors.New(vmerrors.KindStackUnderflow, "data stack underflow")
	}
	b, err := m.popData()
	if err != nil {
		return false, err
	}
	a, err := m.popData()
	if err != nil {
		return false, err
	}
	m.state.DataStack = append(m.state.DataStack, b, a)
	return true, nil
}

// execRot rearranges the top three elements a,b,c (c on top) into
// b,c,a (a on top).
func execRot(m *VM, _ []ast.Operand) (bool, error) {
	if len(m.state.DataStack) < 3 {
		return false, vmerrors.New(vmerrors.KindStackUnderflow, "data stack underflow")
	}
	c, err := m.popData()
	if err != nil {
		return false, err
	}
	b, err := m.popData()
	if err != nil {
		return false, err
	}
	a, err := m.popData()
	if err != nil {
		return false, err
	}
	m.state.DataStack = append(m.state.DataStack, b, c, a)
	return true, nil
}

// execOver duplicates the second-from-top element onto the top: a,b
// becomes a,b,a.
func execOver(m *VM, _ []ast.Operand) (bool, error) {
	if len(m.state.DataStack) < 2 {
		return false, vmerrors.New(vmerrors.KindStackUnderflow, "data stack underflow")
	}
	b, err := m.popData()
	if err != nil {
		return false, err
	}
	a, err := m.popData()
	if err != nil {
		return false, err
	}
	m.state.DataStack = append(m.state.DataStack, a, b, a)
	return true, nil
}

func execClear(m *VM, _ []ast.Operand) (bool, error) {
	m.state.DataStack = m.state.DataStack[:0]
	return true, nil
}

// --- Arithmetic/Logic opcodes ----------------------------------------

type binOp func(left, right int64) (int64, error)

// execBinary reads right then left (right is top-of-stack) without
// mutating the stack, applies fn as left OP right, and only then
// pops both and pushes the result. Reading before mutating keeps the
// data stack exactly as it was before the instruction if fn fails
// (spec.md §8's state-preservation invariant). Operand order is
// fixed per spec.md §9.d: left = deeper-in-stack, right =
// top-of-stack.
func execBinary(fn binOp) Executor {
	return func(m *VM, _ []ast.Operand) (bool, error) {
		n := len(m.state.DataStack)
		if n < 2 {
			return false, vmerrors.New(vmerrors.KindStackUnderflow, "data stack underflow")
		}
		left, right := m.state.DataStack[n-2], m.state.DataStack[n-1]
		if !left.IsInt() || !right.IsInt() {
			return false, vmerrors.New(vmerrors.KindOperandMismatch, "arithmetic operand is not an integer")
		}
		result, err := fn(left.Int, right.Int)
		if err != nil {
			return false, err
		}
		m.state.DataStack = append(m.state.DataStack[:n-2], IntValue(result))
		return true, nil
	}
}

func binAdd(left, right int64) (int64, error) {
	result := left + right
	if (right > 0 && result < left) || (right < 0 && result > left) {
		return 0, vmerrors.New(vmerrors.KindArithmeticOverflow, "addition overflow")
	}
	return result, nil
}

func binSub(left, right int64) (int64, error) {
	result := left - right
	if (right < 0 && result < left) || (right > 0 && result > left) {
		return 0, vmerrors.New(vmerrors.KindArithmeticOverflow, "subtraction overflow")
	}
	return result, nil
}

func binMul(left, right int64) (int64, error) {
	if left == 0 || right == 0 {
		return 0, nil
	}
	result := left * right
	if result/right != left || (left == math.MinInt64 && right == -1) {
		return 0, vmerrors.New(vmerrors.KindArithmeticOverflow, "multiplication overflow")
	}
	return result, nil
}

func binDiv(left, right int64) (int64, error) {
	if right == 0 {
		return 0, vmerrors.New(vmerrors.KindDivisionByZero, "division by zero")
	}
	if left == math.MinInt64 && right == -1 {
		return 0, vmerrors.New(vmerrors.KindArithmeticOverflow, "division overflow")
	}
	return left / right, nil
}

func binAnd(left, right int64) (int64, error) { return left & right, nil }
func binOr(left, right int64) (int64, error)  { return left | right, nil }
func binXor(left, right int64) (int64, error) { return left ^ right, nil }

func execNot(m *VM, _ []ast.Operand) (bool, error) {
	v, err := m.peekData()
	if err != nil {
		return false, err
	}
	if !v.IsInt() {
		return false, vmerrors.New(vmerrors.KindOperandMismatch, "NOT operand is not an integer")
	}
	m.state.DataStack[len(m.state.DataStack)-1] = IntValue(^v.Int)
	return true, nil
}

// --- Control opcodes ---------------------------------------------------

func execJmp(m *VM, ops []ast.Operand) (bool, error) {
	idx, err := m.resolveLabel(ops[0])
	if err != nil {
		return false, err
	}
	m.state.PC = idx
	return false, nil
}

func execJz(m *VM, ops []ast.Operand) (bool, error) {
	return jumpIf(m, ops[0], func(v int64) bool { return v == 0 })
}

func execJnz(m *VM, ops []ast.Operand) (bool, error) {
	return jumpIf(m, ops[0], func(v int64) bool { return v != 0 })
}

func jumpIf(m *VM, labelOp ast.Operand, test func(int64) bool) (bool, error) {
	v, err := m.peekData()
	if err != nil {
		return false, err
	}
	if !v.IsInt() {
		return false, vmerrors.New(vmerrors.KindOperandMismatch, "conditional jump test value is not an integer")
	}
	branch := test(v.Int)
	if branch {
		if idx, err := m.resolveLabel(labelOp); err != nil {
			return false, err
		} else {
			m.state.PC = idx
		}
	}
	if _, err := m.popData(); err != nil {
		return false, err
	}
	if !branch {
		return true, nil
	}
	return false, nil
}

func execCall(m *VM, ops []ast.Operand) (bool, error) {
	idx, err := m.resolveLabel(ops[0])
	if err != nil {
		return false, err
	}
	if err := m.pushControl(Frame{ReturnPC: m.state.PC + 1}); err != nil {
		return false, err
	}
	m.state.PC = idx
	return false, nil
}

func execRet(m *VM, _ []ast.Operand) (bool, error) {
	f, err := m.popControl()
	if err != nil {
		return false, err
	}
	m.state.PC = f.ReturnPC
	return false, nil
}

func execHalt(m *VM, _ []ast.Operand) (bool, error) {
	m.state.Running = false
	return false, nil
}

func execUnimplemented(m *VM, _ []ast.Operand) (bool, error) {
	return false, vmerrors.New(vmerrors.KindUnimplemented, "opcode is reserved and unimplemented")
}

// --- Memory/IO opcodes ---------------------------------------------------

func execLoad(m *VM, ops []ast.Operand) (bool, error) {
	v, ok := m.state.Memory[ops[0].Address]
	if !ok {
		return false, vmerrors.New(vmerrors.KindInvalidAddress, "no value stored at @"+ops[0].Address)
	}
	if err := m.pushData(v); err != nil {
		return false, err
	}
	return true, nil
}

func execStore(m *VM, ops []ast.Operand) (bool, error) {
	v, err := m.peekData()
	if err != nil {
		return false, err
	}
	addr := ops[0].Address
	old, exists := m.state.Memory[addr]
	if !exists && len(m.state.Memory) >= m.config.MaxMemoryEntries {
		return false, vmerrors.New(vmerrors.KindMemoryLimitExceeded, "memory entry limit exceeded")
	}
	if _, err := m.popData(); err != nil {
		return false, err
	}
	m.state.Memory[addr] = v
	if exists {
		m.state.MemoryUsage += v.Size() - old.Size()
	} else {
		m.state.MemoryUsage += v.Size()
	}
	return true, nil
}

func execLLMGen(m *VM, ops []ast.Operand) (bool, error) {
	if m.adapter == nil {
		return false, vmerrors.New(vmerrors.KindLLMUnavailable, "no LLM adapter configured")
	}
	ctx, cancel := m.llmContext()
	defer cancel()
	code, err := m.adapter.Generate(ctx, ops[0].Str)
	if err != nil {
		return false, err
	}
	if err := m.pushData(StringValue(code)); err != nil {
		return false, err
	}
	return true, nil
}

func execEvolve(m *VM, ops []ast.Operand) (bool, error) {
	if m.adapter == nil {
		return false, vmerrors.New(vmerrors.KindLLMUnavailable, "no LLM adapter configured")
	}
	errorText, err := m.popData()
	if err != nil {
		return false, err
	}
	code, err := m.popData()
	if err != nil {
		return false, err
	}
	hint := ""
	if len(ops) > 0 && ops[0].Kind == ast.KindString {
		hint = ops[0].Str
	}

	ctx, cancel := m.llmContext()
	defer cancel()
	candidate, err := m.adapter.Evolve(ctx, code.Str, errorText.Str, hint)
	if err != nil {
		return false, err
	}
	if err := m.pushData(StringValue(candidate)); err != nil {
		return false, err
	}
	return true, nil
}
