// Package automation runs ordered step scripts against a debug target.
//
// A run goes Setup, StepLoop, Teardown. Setup attaches the backend once; a
// failure there fails the whole run. In the step loop every error is turned
// into that step's failed result and the loop moves on, so one bad selector
// never stops the rest of the script. Teardown always runs.
package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"devprobe/internal/diagnostics"
	"devprobe/internal/logging"
	"devprobe/internal/translate"

	"github.com/google/uuid"
)

const defaultLogLines = 200

// Backend attaches to the target for one run. The backend is chosen when
// the run starts and never changes mid-run.
type Backend interface {
	Name() string
	Attach(ctx context.Context) (Runner, error)
}

// Runner executes steps against one attached page context. A Runner may
// also implement diagnostics.Screenshotter and diagnostics.LogSource; the
// engine uses them for the report when asked to.
type Runner interface {
	ExecuteStep(ctx context.Context, verb translate.Verb, args translate.Args) (translate.Outcome, error)
	Close() error
}

// Options selects what a run attaches to its report.
type Options struct {
	Screenshots bool // before/after screenshots
	Logs        bool // trailing log excerpt
	LogLines    int

	// LogSource overrides the runner's own log capture.
	LogSource diagnostics.LogSource
}

// StepResult is one executed step.
type StepResult struct {
	Command string            `json:"command"`
	Result  translate.Outcome `json:"result"`
}

// Report is the result of one run.
type Report struct {
	RunID     string       `json:"runId"`
	Backend   string       `json:"backend"`
	Steps     []StepResult `json:"steps"`
	Logs      []string     `json:"logs,omitempty"`
	StartedAt time.Time    `json:"startedAt"`
	Duration  float64      `json:"durationMs"`

	Before []byte `json:"-"`
	After  []byte `json:"-"`
}

// Failed counts the failed steps.
func (r *Report) Failed() int {
	n := 0
	for _, s := range r.Steps {
		if s.Result.Failed() {
			n++
		}
	}
	return n
}

// StepError is one step that could not be executed. It is recorded in that
// step's result and never ends the run.
type StepError struct {
	Index   int
	Command string
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index+1, e.Command, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Engine runs scripts through one backend.
type Engine struct {
	backend Backend
	opts    Options
	log     *logging.Logger
}

// NewEngine creates an engine.
func NewEngine(backend Backend, opts Options) *Engine {
	if opts.LogLines <= 0 {
		opts.LogLines = defaultLogLines
	}
	return &Engine{
		backend: backend,
		opts:    opts,
		log:     logging.Get(logging.CategoryAutomation).With("backend", backend.Name()),
	}
}

// Run executes steps strictly in order. The error is non-nil only when Setup
// fails; step failures are in the report.
func (e *Engine) Run(ctx context.Context, steps []Step) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		Backend:   e.backend.Name(),
		Steps:     make([]StepResult, 0, len(steps)),
		StartedAt: time.Now(),
	}
	timer := logging.StartTimer(logging.CategoryAutomation, "run "+report.RunID)
	defer func() {
		report.Duration = float64(timer.Stop()) / float64(time.Millisecond)
	}()

	runner, err := e.backend.Attach(ctx)
	if err != nil {
		e.log.Error("run %s: setup failed: %v", report.RunID, err)
		return nil, fmt.Errorf("%s backend setup: %w", e.backend.Name(), err)
	}
	defer func() {
		if err := runner.Close(); err != nil {
			e.log.Warn("run %s: teardown: %v", report.RunID, err)
		}
	}()

	if e.opts.Screenshots {
		report.Before = e.screenshot(ctx, runner, "before")
	}

	for i, step := range steps {
		out := e.runStep(ctx, runner, i, step)
		report.Steps = append(report.Steps, StepResult{Command: step.Command, Result: out})
	}

	if e.opts.Screenshots {
		report.After = e.screenshot(ctx, runner, "after")
	}
	if e.opts.Logs {
		report.Logs = e.logs(ctx, runner)
	}

	e.log.Info("run %s: %d steps, %d failed", report.RunID, len(report.Steps), report.Failed())
	return report, nil
}

func (e *Engine) runStep(ctx context.Context, runner Runner, i int, step Step) (out translate.Outcome) {
	fail := func(err error) translate.Outcome {
		se := &StepError{Index: i, Command: step.Command, Err: err}
		e.log.Warn("%v", se)
		return translate.FromError(se)
	}

	defer func() {
		if r := recover(); r != nil {
			out = fail(fmt.Errorf("panic: %v", r))
		}
	}()

	verb, err := translate.ParseVerb(step.Command)
	if err != nil {
		return fail(err)
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	out, err = runner.ExecuteStep(ctx, verb, step.Args)
	if err != nil {
		return fail(err)
	}
	if out.Failed() {
		e.log.Debug("step %d (%s): %s", i+1, step.Command, out.Message)
	}
	return out
}

func (e *Engine) screenshot(ctx context.Context, runner Runner, when string) []byte {
	shots, ok := runner.(diagnostics.Screenshotter)
	if !ok {
		e.log.Warn("%s backend cannot take screenshots", e.backend.Name())
		return nil
	}
	shot, err := shots.Screenshot(ctx)
	if err != nil {
		e.log.Warn("%s screenshot failed: %v", when, err)
		return nil
	}
	return shot
}

func (e *Engine) logs(ctx context.Context, runner Runner) []string {
	src := e.opts.LogSource
	if src == nil {
		var ok bool
		if src, ok = runner.(diagnostics.LogSource); !ok {
			return []string{}
		}
	}
	lines, err := src.Lines(ctx, e.opts.LogLines)
	if err != nil {
		e.log.Warn("log excerpt failed: %v", err)
		return []string{}
	}
	if lines == nil {
		return []string{}
	}
	return lines
}

// ErrUnsupported is returned by a backend for a verb it has no action for.
var ErrUnsupported = errors.New("unsupported command")
