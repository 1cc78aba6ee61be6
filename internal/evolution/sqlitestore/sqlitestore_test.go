package sqlitestore

import (
	"testing"

	"github.com/sovereign-vm/sovereign/internal/evolution"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSqliteStoreRecordAndFindSimilar(t *testing.T) {
	s := openTestStore(t)

	s.Record(evolution.CategoryStackUnderflow, "data stack underflow on POP")
	if _, ok := s.FindSimilar(evolution.CategoryStackUnderflow, "totally different message with no overlap"); ok {
		t.Fatal("expected no match for a dissimilar message")
	}

	p, ok := s.FindSimilar(evolution.CategoryStackUnderflow, "data stack underflow on POP instruction")
	if !ok {
		t.Fatal("expected a similar match")
	}
	if p.Category != evolution.CategoryStackUnderflow {
		t.Fatalf("category = %q, want StackUnderflow", p.Category)
	}

	if _, ok := s.FindSimilar(evolution.CategoryInvalidAddress, "data stack underflow on POP"); ok {
		t.Fatal("expected category mismatch to prevent a match")
	}
}

func TestSqliteStoreUpdateSuccessRunningMean(t *testing.T) {
	s := openTestStore(t)
	s.Record(evolution.CategoryInvalidAddress, "invalid address @zz")

	s.UpdateSuccess(evolution.CategoryInvalidAddress, "invalid address @zz", true, "STORE @00\n")
	s.UpdateSuccess(evolution.CategoryInvalidAddress, "invalid address @zz", false, "")

	patterns := s.All()
	if len(patterns) != 1 {
		t.Fatalf("len(All()) = %d, want 1", len(patterns))
	}
	p := patterns[0]
	if len(p.FixTemplates) != 1 || p.FixTemplates[0] != "STORE @00\n" {
		t.Fatalf("FixTemplates = %v, want one successful candidate", p.FixTemplates)
	}
	if p.FixSuccessRate <= 0 || p.FixSuccessRate >= 1 {
		t.Fatalf("FixSuccessRate = %v, want strictly between 0 and 1 after one success one failure", p.FixSuccessRate)
	}
}

func TestSqliteStoreImportMergesAdditively(t *testing.T) {
	s := openTestStore(t)
	s.Record(evolution.CategoryUnknownOpcode, "unknown opcode FOO")

	s.Import([]evolution.Pattern{
		{Category: evolution.CategoryUnknownOpcode, Message: "unknown opcode FOO", Frequency: 5, FixTemplates: []string{"NOP\n"}},
		{Category: evolution.CategoryParseFailure, Message: "unexpected token", Frequency: 2},
	})

	patterns := s.All()
	if len(patterns) != 2 {
		t.Fatalf("len(All()) = %d, want 2", len(patterns))
	}
	var merged *evolution.Pattern
	for i := range patterns {
		if patterns[i].Category == evolution.CategoryUnknownOpcode {
			merged = &patterns[i]
		}
	}
	if merged == nil {
		t.Fatal("expected the UnknownOpcode pattern to survive the merge")
	}
	if merged.Frequency != 6 {
		t.Fatalf("Frequency = %d, want 6 (1 + 5)", merged.Frequency)
	}
}

func TestSqliteStorePersistsAcrossHandles(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/patterns.db"

	first, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	first.Record(evolution.CategoryDivisionByZero, "division by zero in DIV")
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	patterns := second.All()
	if len(patterns) != 1 || patterns[0].Message != "division by zero in DIV" {
		t.Fatalf("All() = %v, want the pattern recorded before close to survive reopening the file", patterns)
	}
}
