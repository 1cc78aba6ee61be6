package evolution

import (
	"bytes"
	"testing"
)

func TestCategorizeKeywords(t *testing.T) {
	cases := []struct {
		text string
		want Category
	}{
		{"data stack underflow", CategoryStackUnderflow},
		{"division by zero", CategoryDivisionByZero},
		{"CALL would exceed max call depth", CategoryCallDepthExceeded},
		{"invalid address @ff", CategoryInvalidAddress},
		{"unknown opcode FROB", CategoryUnknownOpcode},
		{"execution step limit exceeded", CategoryStepLimitExceeded},
		{"llm endpoint unreachable", CategoryLLMUnavailable},
		{"totally unrelated gibberish", CategoryUnknown},
	}
	for _, c := range cases {
		if got := Categorize(c.text); got != c.want {
			t.Errorf("Categorize(%q) = %q, want %q", c.text, got, c.want)
		}
	}
}

func TestMemoryStoreRecordAndFindSimilar(t *testing.T) {
	s := NewMemoryStore()

	s.Record(CategoryStackUnderflow, "data stack underflow on POP")
	if _, ok := s.FindSimilar(CategoryStackUnderflow, "totally different message with no overlap"); ok {
		t.Fatal("expected no match for a dissimilar message")
	}

	p, ok := s.FindSimilar(CategoryStackUnderflow, "data stack underflow on POP instruction")
	if !ok {
		t.Fatal("expected a similar match")
	}
	if p.Category != CategoryStackUnderflow {
		t.Fatalf("category = %q, want StackUnderflow", p.Category)
	}

	// A different category never matches even with identical text.
	if _, ok := s.FindSimilar(CategoryInvalidAddress, "data stack underflow on POP"); ok {
		t.Fatal("expected category mismatch to prevent a match")
	}
}

func TestMemoryStoreUpdateSuccessRunningMean(t *testing.T) {
	s := NewMemoryStore()
	s.Record(CategoryInvalidAddress, "invalid address @zz")

	s.UpdateSuccess(CategoryInvalidAddress, "invalid address @zz", true, "STORE @00\n")
	s.UpdateSuccess(CategoryInvalidAddress, "invalid address @zz", false, "")

	patterns := s.All()
	if len(patterns) != 1 {
		t.Fatalf("len(All()) = %d, want 1", len(patterns))
	}
	p := patterns[0]
	if p.Frequency < 2 {
		t.Fatalf("Frequency = %d, want >= 2", p.Frequency)
	}
	if len(p.FixTemplates) != 1 || p.FixTemplates[0] != "STORE @00\n" {
		t.Fatalf("FixTemplates = %v, want one successful candidate", p.FixTemplates)
	}
	if p.FixSuccessRate <= 0 || p.FixSuccessRate >= 1 {
		t.Fatalf("FixSuccessRate = %v, want strictly between 0 and 1 after one success one failure", p.FixSuccessRate)
	}
}

func TestMemoryStoreImportMergesAdditively(t *testing.T) {
	s := NewMemoryStore()
	s.Record(CategoryUnknownOpcode, "unknown opcode FOO")

	s.Import([]Pattern{
		{Category: CategoryUnknownOpcode, Message: "unknown opcode FOO", Frequency: 5, FixTemplates: []string{"NOP\n"}},
		{Category: CategoryParseFailure, Message: "unexpected token", Frequency: 2},
	})

	patterns := s.All()
	if len(patterns) != 2 {
		t.Fatalf("len(All()) = %d, want 2", len(patterns))
	}
	var merged *Pattern
	for i := range patterns {
		if patterns[i].Category == CategoryUnknownOpcode {
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

func TestNDJSONExportImportRoundTrip(t *testing.T) {
	src := NewMemoryStore()
	src.Record(CategoryDivisionByZero, "division by zero in DIV")
	src.UpdateSuccess(CategoryDivisionByZero, "division by zero in DIV", true, "JZ skip\n")

	var buf bytes.Buffer
	if err := ExportPatterns(src, &buf); err != nil {
		t.Fatalf("ExportPatterns: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected non-empty NDJSON output")
	}

	dst := NewMemoryStore()
	if err := ImportPatterns(dst, &buf); err != nil {
		t.Fatalf("ImportPatterns: %v", err)
	}

	got := dst.All()
	if len(got) != 1 {
		t.Fatalf("len(All()) = %d, want 1", len(got))
	}
	if got[0].Category != CategoryDivisionByZero || got[0].Message != "division by zero in DIV" {
		t.Fatalf("imported pattern = %+v, want category/message preserved", got[0])
	}
	if len(got[0].FixTemplates) != 1 {
		t.Fatalf("FixTemplates = %v, want the one recorded template", got[0].FixTemplates)
	}
}
