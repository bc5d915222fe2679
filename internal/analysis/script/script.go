// Package script runs analysis scripts written in Starlark against the
// operator library. A script is compiled once per execution and its
// top-level code runs once per row with freshly built predeclared values.
package script

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"

	"github.com/guianderson/terrama2/internal/analysis/operators"
	"github.com/guianderson/terrama2/internal/errors"
	"github.com/guianderson/terrama2/internal/logger"
)

func init() {
	// analysis scripts are plain top-level code with if/for blocks
	resolve.AllowGlobalReassign = true
}

// Names predeclared for every script.
var predeclaredNames = map[string]bool{
	"Buffer":     true,
	"BufferType": true,
	"dcp":        true,
	"occurrence": true,
	"add_value":  true,
}

// Program is a compiled analysis script. It is safe for sequential reuse
// across rows; Starlark programs hold no per-run state.
type Program struct {
	name string
	prog *starlark.Program
}

// Compile parses and resolves src. name labels error positions.
func Compile(name, src string) (*Program, error) {
	_, prog, err := starlark.SourceProgram(name, src, func(n string) bool { return predeclaredNames[n] })
	if err != nil {
		return nil, errors.ScriptEvaluationError(err).
			Component("script").
			Context("script", name).
			Build()
	}
	return &Program{name: name, prog: prog}, nil
}

// Runner evaluates a Program row by row.
type Runner struct {
	program *Program
	lib     *operators.Library
	timeout time.Duration
	log     logger.Logger
}

// NewRunner returns a Runner. A zero timeout lets rows run unbounded.
func NewRunner(p *Program, lib *operators.Library, timeout time.Duration, log logger.Logger) *Runner {
	return &Runner{program: p, lib: lib, timeout: timeout, log: log.Module("script")}
}

// Run evaluates the script for row and returns the emitted attributes.
// Only the row timeout interrupts a script; cancellation of ctx is left to
// the caller's row boundary so a started row always completes.
func (r *Runner) Run(ctx context.Context, row operators.Row) (map[string]any, error) {
	scope := r.lib.NewScope(row)
	thread := &starlark.Thread{
		Name: fmt.Sprintf("%s/%s", r.program.name, row.ID),
		Print: func(_ *starlark.Thread, msg string) {
			r.log.Debug("script print", logger.String("row", row.ID), logger.String("message", msg))
		},
	}

	if r.timeout > 0 {
		timer := time.AfterFunc(r.timeout, func() { thread.Cancel(fmt.Sprintf("row exceeded %s", r.timeout)) })
		defer timer.Stop()
	}

	start := time.Now()
	if _, err := r.program.prog.Init(thread, predeclared(scope, r.lib)); err != nil {
		return nil, errors.ScriptEvaluationError(err).
			Component("script").
			Context("row", row.ID).
			Build()
	}
	r.log.WithContext(ctx).Trace("row evaluated",
		logger.String("row", row.ID),
		logger.Duration("elapsed", time.Since(start)))
	return scope.Emitted(), nil
}
