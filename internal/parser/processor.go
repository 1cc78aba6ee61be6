package parser

import (
	"github.com/sovereign-vm/sovereign/internal/diagnostics"
	"github.com/sovereign-vm/sovereign/internal/pipeline"
	"github.com/sovereign-vm/sovereign/internal/token"
)

// ParserProcessor is the pipeline.Processor that turns
// ctx.TokenStream into ctx.AstRoot.
type ParserProcessor struct{}

func (pp *ParserProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	if ctx.TokenStream == nil {
		// Should not happen if the lexer stage ran first; guard anyway.
		err := diagnostics.NewError("P000", token.Token{}, "parser: token stream is nil")
		ctx.Errors = append(ctx.Errors, err)
		return ctx
	}

	parser := New(ctx.TokenStream, ctx)
	ctx.AstRoot = parser.ParseProgram()

	for _, err := range ctx.Errors {
		if err.File == "" {
			err.File = ctx.FilePath
		}
	}

	return ctx
}
