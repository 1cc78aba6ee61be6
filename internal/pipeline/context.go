package pipeline

import (
	"github.com/sovereign-vm/sovereign/internal/ast"
	"github.com/sovereign-vm/sovereign/internal/diagnostics"
	"github.com/sovereign-vm/sovereign/internal/token"
)

// Processor is one stage of a Pipeline. It receives the context left
// by the previous stage and returns the context for the next one,
// appending to Errors rather than aborting so later stages can still
// run and report their own diagnostics.
type Processor interface {
	Process(ctx *PipelineContext) *PipelineContext
}

// PipelineContext threads source text and intermediate results
// through the lex/parse front end.
type PipelineContext struct {
	FilePath string
	Source   string

	TokenStream []token.Token
	AstRoot     *ast.Program

	Errors []*diagnostics.Error
}

// NewPipelineContext starts a fresh context for the given source
// text, with no file path.
func NewPipelineContext(source string) *PipelineContext {
	return &PipelineContext{Source: source}
}

// NewPipelineContextForFile starts a fresh context for source read
// from path.
func NewPipelineContextForFile(path, source string) *PipelineContext {
	return &PipelineContext{FilePath: path, Source: source}
}

// OK reports whether the pipeline produced no diagnostics.
func (c *PipelineContext) OK() bool {
	return len(c.Errors) == 0
}
