package parser

import (
	"testing"

	"golang.org/x/tools/txtar"
)

// TestParsePrintRoundTrip checks spec.md §8's property: parsing a
// program, printing it back to canonical source, and parsing that
// again yields a structurally equal Program.
func TestParsePrintRoundTrip(t *testing.T) {
	archive, err := txtar.ParseFile("testdata/roundtrip.txtar")
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	for _, f := range archive.Files {
		f := f
		t.Run(f.Name, func(t *testing.T) {
			source := string(f.Data)

			program, errs := Parse(source)
			if len(errs) > 0 {
				t.Fatalf("parse: %v", errs)
			}

			printed := program.String()
			reparsed, errs := Parse(printed)
			if len(errs) > 0 {
				t.Fatalf("reparse of printed form: %v\n---\n%s", errs, printed)
			}

			if !program.Equal(reparsed) {
				t.Fatalf("round trip mismatch:\noriginal printed:\n%s\nreprinted:\n%s", printed, reparsed.String())
			}
		})
	}
}

func TestParseEmptyInputYieldsEmptyProgram(t *testing.T) {
	program, errs := Parse("")
	if len(errs) > 0 {
		t.Fatalf("parse: %v", errs)
	}
	if program.Length() != 0 {
		t.Fatalf("Length() = %d, want 0", program.Length())
	}
}

func TestParseDuplicateLabelIsError(t *testing.T) {
	_, errs := Parse("a:\nHALT\na:\nHALT\n")
	if len(errs) == 0 {
		t.Fatal("expected a duplicate-label parse error")
	}
}

func TestParseUnknownMnemonicIsError(t *testing.T) {
	// A bare identifier at statement position that isn't a registered
	// opcode lexes as IDENT, which the parser rejects as "expected
	// instruction or label" rather than silently accepting garbage.
	_, errs := Parse("notanopcode\n")
	if len(errs) == 0 {
		t.Fatal("expected a parse error for a bare identifier at statement position")
	}
}

// Every built-in control-flow opcode resolves its label operand at
// parse time (spec.md §3): an undefined label is a diagnostic from
// Parse, not something left for the VM to discover while running.
func TestParseUndefinedLabelIsError(t *testing.T) {
	for _, src := range []string{"JMP nowhere\nHALT\n", "JZ nowhere\nHALT\n", "JNZ nowhere\nHALT\n", "CALL nowhere\nHALT\n"} {
		_, errs := Parse(src)
		if len(errs) == 0 {
			t.Fatalf("src %q: expected an undefined-label diagnostic, got none", src)
		}
	}
}

func TestValidate(t *testing.T) {
	if !Validate("PUSH #1\nHALT\n") {
		t.Fatal("expected Validate(valid source) = true")
	}
	if Validate("JMP nowhere\nHALT\n") {
		t.Fatal("expected Validate(undefined label) = false")
	}
	if Validate("HALT\nHALT HALT\n") {
		t.Fatal("expected Validate(malformed source) = false")
	}
}

func TestParseOperandPrefixes(t *testing.T) {
	program, errs := Parse(`PUSH r3
PUSH #-5
PUSH @cafe
PUSH "hi\n"
JMP there
there:
HALT
`)
	if len(errs) > 0 {
		t.Fatalf("parse: %v", errs)
	}
	if program.Length() != 6 {
		t.Fatalf("Length() = %d, want 6", program.Length())
	}
}
