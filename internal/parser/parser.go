// Package parser turns a PROJECT SOVEREIGN token stream into an
// ast.Program.
package parser

import (
	"strconv"

	"github.com/sovereign-vm/sovereign/internal/ast"
	"github.com/sovereign-vm/sovereign/internal/diagnostics"
	"github.com/sovereign-vm/sovereign/internal/lexer"
	"github.com/sovereign-vm/sovereign/internal/pipeline"
	"github.com/sovereign-vm/sovereign/internal/token"
)

// Parser consumes a fixed token stream and builds a Program,
// appending diagnostics to the owning pipeline context rather than
// aborting on the first error, so a single parse pass reports every
// malformed statement it finds.
type Parser struct {
	tokens []token.Token
	pos    int
	ctx    *pipeline.PipelineContext
}

// New returns a Parser over tokens. ctx receives diagnostics.
func New(tokens []token.Token, ctx *pipeline.PipelineContext) *Parser {
	return &Parser{tokens: tokens, ctx: ctx}
}

func (p *Parser) cur() token.Token {
	if p.pos >= len(p.tokens) {
		return token.Token{Type: token.EOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) advance() token.Token {
	t := p.cur()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return t
}

func (p *Parser) errorf(tok token.Token, code, msg string) {
	p.ctx.Errors = append(p.ctx.Errors, diagnostics.NewError(code, tok, msg))
}

// ParseProgram parses the whole token stream into a Program. Blank
// lines are skipped; each remaining line is either a bare label
// definition or one instruction.
func (p *Parser) ParseProgram() *ast.Program {
	var instructions []*ast.Instruction
	labels := map[string]int{}

	for p.cur().Type != token.EOF {
		if p.cur().Type == token.NEWLINE {
			p.advance()
			continue
		}

		if p.cur().Type == token.LABEL_DEF {
			tok := p.advance()
			name := tok.Literal
			if _, dup := labels[name]; dup {
				p.errorf(tok, "P010", "duplicate label \""+name+"\"")
			} else {
				labels[name] = len(instructions)
			}
			p.expectStatementEnd()
			continue
		}

		if p.cur().Type != token.OPCODE {
			tok := p.cur()
			p.errorf(tok, "P001", "expected instruction or label, got \""+tok.Lexeme+"\"")
			p.skipToNewline()
			continue
		}

		instr := p.parseInstruction()
		if instr != nil {
			instructions = append(instructions, instr)
		}
		p.expectStatementEnd()
	}

	p.checkLabelRefs(instructions, labels)

	return ast.New(instructions, labels)
}

// checkLabelRefs resolves every label-reference operand against the
// labels collected by the main pass. Built-in control-flow opcodes
// resolve their label operands at load time (spec.md §3); an
// unresolved reference is a parse-time failure, not something left
// for the VM to discover at Run/Step time (spec.md §7).
func (p *Parser) checkLabelRefs(instructions []*ast.Instruction, labels map[string]int) {
	for _, instr := range instructions {
		for _, op := range instr.Operands {
			if op.Kind != ast.KindLabelRef {
				continue
			}
			if _, ok := labels[op.Label]; !ok {
				p.errorf(op.Tok, "P011", "undefined label \""+op.Label+"\"")
			}
		}
	}
}

func (p *Parser) parseInstruction() *ast.Instruction {
	opTok := p.advance()
	instr := &ast.Instruction{Mnemonic: opTok.Literal, Tok: opTok}

	for {
		switch p.cur().Type {
		case token.REGISTER:
			tok := p.advance()
			n, err := strconv.ParseUint(tok.Literal, 10, 8)
			if err != nil {
				p.errorf(tok, "P020", "register number out of range: "+tok.Lexeme)
				continue
			}
			instr.Operands = append(instr.Operands, ast.RegisterOperand(uint8(n), tok))
		case token.IMMEDIATE:
			tok := p.advance()
			v, err := strconv.ParseInt(tok.Literal, 10, 64)
			if err != nil {
				p.errorf(tok, "P021", "malformed immediate: "+tok.Lexeme)
				continue
			}
			instr.Operands = append(instr.Operands, ast.ImmediateOperand(v, tok))
		case token.ADDRESS:
			tok := p.advance()
			instr.Operands = append(instr.Operands, ast.AddressOperand(tok.Literal, tok))
		case token.STRING:
			tok := p.advance()
			instr.Operands = append(instr.Operands, ast.StringOperand(tok.Literal, tok))
		case token.IDENT:
			tok := p.advance()
			instr.Operands = append(instr.Operands, ast.LabelRefOperand(tok.Literal, tok))
		default:
			return instr
		}
	}
}

// expectStatementEnd consumes the NEWLINE terminating a statement, or
// tolerates EOF as an implicit terminator for the final line.
func (p *Parser) expectStatementEnd() {
	if p.cur().Type == token.NEWLINE {
		p.advance()
		return
	}
	if p.cur().Type == token.EOF {
		return
	}
	tok := p.cur()
	p.errorf(tok, "P002", "unexpected trailing token \""+tok.Lexeme+"\"")
	p.skipToNewline()
}

func (p *Parser) skipToNewline() {
	for p.cur().Type != token.NEWLINE && p.cur().Type != token.EOF {
		p.advance()
	}
	if p.cur().Type == token.NEWLINE {
		p.advance()
	}
}

// Parse is a convenience entry point for callers that don't need the
// full pipeline: it lexes and parses source in one call and returns
// the Program together with every diagnostic the parse produced.
func Parse(source string) (*ast.Program, []*diagnostics.Error) {
	ctx := pipeline.NewPipelineContext(source)
	var toks []token.Token
	l := lexer.New(source)
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			break
		}
	}
	ctx.TokenStream = toks
	parser := New(toks, ctx)
	prog := parser.ParseProgram()
	return prog, ctx.Errors
}

// Validate is the boolean half of the Program library contract
// (spec.md §6): it reports whether source parses without producing
// any diagnostics, without handing back the Program itself.
func Validate(source string) bool {
	_, errs := Parse(source)
	return len(errs) == 0
}
