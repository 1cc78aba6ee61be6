package vm

import (
	"context"
	"testing"

	"github.com/sovereign-vm/sovereign/internal/parser"
	"github.com/sovereign-vm/sovereign/internal/vmerrors"
)

// STORE must leave the data stack untouched when it fails because the
// memory-entry limit is already exhausted (spec.md §8).
func TestStoreAtMemoryLimitPreservesStack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMemoryEntries = 1
	m := mustVM(t, cfg)
	mustLoad(t, m, "PUSH #1\nSTORE @a\nPUSH #2\nSTORE @b\nHALT\n")

	err := m.Run(context.Background())
	ve, ok := err.(*vmerrors.VMError)
	if !ok || ve.Kind != vmerrors.KindMemoryLimitExceeded {
		t.Fatalf("got %v, want MemoryLimitExceeded", err)
	}
	snap := m.DumpState()
	if len(snap.DataStack) != 1 || snap.DataStack[0].Int != 2 {
		t.Fatalf("data stack = %v, want [2] (the value STORE failed to consume)", snap.DataStack)
	}
	if _, ok := snap.Memory["b"]; ok {
		t.Fatal("expected memory[b] to never be written")
	}
}

// STORE to an already-known address never counts against the limit.
func TestStoreOverwriteExistingAddressIgnoresLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMemoryEntries = 1
	m := mustVM(t, cfg)
	mustLoad(t, m, "PUSH #1\nSTORE @a\nPUSH #9\nSTORE @a\nHALT\n")

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	snap := m.DumpState()
	if v := snap.Memory["a"]; v.Int != 9 {
		t.Fatalf("memory[a] = %v, want 9", v)
	}
}

func TestLLMGenPushesGeneratedCode(t *testing.T) {
	m := mustVM(t, DefaultConfig())
	m.adapter = &fakeAdapter{
		generateFn: func(ctx context.Context, prompt string) (string, error) {
			if prompt != "write something" {
				t.Errorf("prompt = %q", prompt)
			}
			return "PUSH #1\n", nil
		},
	}
	mustLoad(t, m, `LLMGEN "write something"
HALT
`)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	snap := m.DumpState()
	if len(snap.DataStack) != 1 || snap.DataStack[0].Str != "PUSH #1\n" {
		t.Fatalf("data stack = %v", snap.DataStack)
	}
}

func TestLLMGenWithoutAdapterFailsUnavailable(t *testing.T) {
	m := mustVM(t, DefaultConfig())
	mustLoad(t, m, `LLMGEN "anything"
HALT
`)
	err := m.Run(context.Background())
	ve, ok := err.(*vmerrors.VMError)
	if !ok || ve.Kind != vmerrors.KindLLMUnavailable {
		t.Fatalf("got %v, want LLMUnavailable", err)
	}
}

func TestEvolvePopsCodeAndErrorPushesCandidate(t *testing.T) {
	m := mustVM(t, DefaultConfig())
	m.adapter = &fakeAdapter{
		evolveFn: func(ctx context.Context, code, errorText, hint string) (string, error) {
			if code != "broken" || errorText != "division by zero" {
				t.Errorf("code=%q errorText=%q", code, errorText)
			}
			return "fixed", nil
		},
	}
	program, errs := parser.Parse(`PUSH "broken"
PUSH "division by zero"
EVOLVE
HALT
`)
	if len(errs) > 0 {
		t.Fatalf("parse: %v", errs)
	}
	m.Load(program)

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	snap := m.DumpState()
	if len(snap.DataStack) != 1 || snap.DataStack[0].Str != "fixed" {
		t.Fatalf("data stack = %v, want [\"fixed\"]", snap.DataStack)
	}
}

// MinInt64 * -1 overflows i64 regardless of which operand sits on
// top of the stack (spec.md §3); execBinary feeds fn(left, right)
// with left = deeper-in-stack, right = top-of-stack (spec.md §9.d).
func TestMulOverflowBothOperandOrderings(t *testing.T) {
	for _, src := range []string{
		"PUSH #-9223372036854775808\nPUSH #-1\nMUL\nHALT\n",
		"PUSH #-1\nPUSH #-9223372036854775808\nMUL\nHALT\n",
	} {
		m := mustVM(t, DefaultConfig())
		mustLoad(t, m, src)
		err := m.Run(context.Background())
		ve, ok := err.(*vmerrors.VMError)
		if !ok || ve.Kind != vmerrors.KindArithmeticOverflow {
			t.Fatalf("src %q: got %v, want ArithmeticOverflow", src, err)
		}
	}
}

// STORE tracks the sum of stored value sizes, adjusting for
// overwrites of an existing address rather than double-counting them
// (spec.md §3's memory-usage counter).
func TestMemoryUsageTracksStoredValueSizes(t *testing.T) {
	m := mustVM(t, DefaultConfig())
	mustLoad(t, m, `PUSH #1
STORE @a
PUSH "hello"
STORE @b
PUSH "hi"
STORE @b
HALT
`)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	snap := m.DumpState()
	want := 8 + len("hi")
	if snap.MemoryUsage != want {
		t.Fatalf("MemoryUsage = %d, want %d", snap.MemoryUsage, want)
	}
}

func TestValueEqualAndString(t *testing.T) {
	if !IntValue(5).Equal(IntValue(5)) {
		t.Fatal("expected equal int values")
	}
	if IntValue(5).Equal(StringValue("5")) {
		t.Fatal("expected different kinds to be unequal")
	}
	if got := AddressValue("ff").String(); got != "@ff" {
		t.Fatalf("String() = %q, want @ff", got)
	}
}
