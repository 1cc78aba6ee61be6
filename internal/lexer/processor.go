package lexer

import (
	"github.com/sovereign-vm/sovereign/internal/pipeline"
	"github.com/sovereign-vm/sovereign/internal/token"
)

// LexerProcessor is the pipeline.Processor front end: it tokenizes
// ctx.Source into ctx.TokenStream.
type LexerProcessor struct{}

func (lp *LexerProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	l := New(ctx.Source)
	var toks []token.Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			break
		}
	}
	ctx.TokenStream = toks
	return ctx
}
