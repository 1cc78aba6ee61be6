// Command sovereign is the reference CLI driver for the PROJECT
// SOVEREIGN core: it loads a source file, parses it, and runs it to
// completion, or drops into a line-at-a-time REPL when given no file
// and stdin is a terminal.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/sovereign-vm/sovereign/internal/config"
	"github.com/sovereign-vm/sovereign/internal/evolution"
	"github.com/sovereign-vm/sovereign/internal/evolution/sqlitestore"
	"github.com/sovereign-vm/sovereign/internal/lexer"
	"github.com/sovereign-vm/sovereign/internal/logging"
	"github.com/sovereign-vm/sovereign/internal/parser"
	"github.com/sovereign-vm/sovereign/internal/pipeline"
	"github.com/sovereign-vm/sovereign/internal/vm"
)

const (
	exitOK         = 0
	exitRuntime    = 1
	exitParse      = 2
	exitConfigErr  = 64
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	settings, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, config.ConfigError(err))
		return exitConfigErr
	}
	log := logging.New(settings.Debug)

	engineCfg := evolution.EngineConfig{
		Client: evolution.ClientConfig{
			BaseURL:            settings.Ollama.Host,
			DefaultModel:       settings.Ollama.Model,
			MaxRetries:         settings.Ollama.MaxRetries,
			ConnectionPoolSize: settings.Ollama.ConnectionPoolSize,
		},
		Log: log,
	}
	if settings.PatternDBPath != "" {
		store, err := sqlitestore.Open(settings.PatternDBPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "opening pattern database:", err)
			return exitConfigErr
		}
		defer store.Close()
		engineCfg.Store = store
	}

	engine := evolution.New(engineCfg)
	if err := engine.Initialize(); err != nil {
		fmt.Fprintln(os.Stderr, "evolution bridge failed to start:", err)
		return exitRuntime
	}
	defer engine.Shutdown()

	machine, err := vm.New(settings.VM, nil, engine, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, config.ConfigError(err))
		return exitConfigErr
	}

	if len(args) > 0 {
		return runFile(machine, args[0])
	}
	if isatty.IsTerminal(os.Stdin.Fd()) {
		return repl(machine)
	}
	return runSource(machine, readAll(os.Stdin))
}

func runFile(machine *vm.VM, path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitRuntime
	}
	return runSource(machine, string(data))
}

func runSource(machine *vm.VM, source string) int {
	program, errs := parser.Parse(source)
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, e.Error())
		}
		return exitParse
	}

	machine.Load(program)
	if err := machine.Run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "runtime error:", err)
		return exitRuntime
	}
	return exitOK
}

// repl reads one instruction per line and dispatches it immediately
// via VM.StepOne, the supplemented single-instruction execution mode
// (SPEC_FULL.md §3.1).
func repl(machine *vm.VM) int {
	machine.Load(nil)
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprint(os.Stderr, "sovereign> ")
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			fmt.Fprint(os.Stderr, "sovereign> ")
			continue
		}
		ctx := pipeline.NewPipelineContext(line + "\n")
		(&lexer.LexerProcessor{}).Process(ctx)
		(&parser.ParserProcessor{}).Process(ctx)
		if len(ctx.Errors) > 0 {
			for _, e := range ctx.Errors {
				fmt.Fprintln(os.Stderr, e.Error())
			}
			fmt.Fprint(os.Stderr, "sovereign> ")
			continue
		}
		for _, instr := range ctx.AstRoot.Instructions {
			if err := machine.StepOne(context.Background(), instr); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
		}
		fmt.Fprint(os.Stderr, "sovereign> ")
	}
	fmt.Fprintln(os.Stderr)
	return exitOK
}

func readAll(f *os.File) string {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	var out []byte
	for scanner.Scan() {
		out = append(out, scanner.Bytes()...)
		out = append(out, '\n')
	}
	return string(out)
}
