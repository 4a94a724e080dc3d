package automation

import (
	"context"
	"fmt"

	"devprobe/internal/cdp"
	"devprobe/internal/command"
	"devprobe/internal/config"
	"devprobe/internal/diagnostics"
	"devprobe/internal/translate"

	"github.com/go-rod/rod/lib/proto"
)

// Direct runs steps as translated scripts over one session for the whole run.
type Direct struct {
	exec *command.Executor
}

// NewDirect creates the direct backend.
func NewDirect(exec *command.Executor) *Direct {
	return &Direct{exec: exec}
}

func (d *Direct) Name() string { return config.BackendDirect }

// Attach opens the run's session with Runtime enabled and starts recording
// console output for the log excerpt.
func (d *Direct) Attach(ctx context.Context) (Runner, error) {
	s, err := d.exec.Open(ctx)
	if err != nil {
		return nil, err
	}
	return &directRunner{exec: d.exec, s: s, console: diagnostics.RecordConsole(s)}, nil
}

type directRunner struct {
	exec    *command.Executor
	s       *cdp.Session
	console *diagnostics.ConsoleRecorder
}

func (r *directRunner) ExecuteStep(ctx context.Context, verb translate.Verb, args translate.Args) (translate.Outcome, error) {
	return r.exec.Step(ctx, r.s, verb, args), nil
}

// Screenshot captures the page as PNG over the run's session.
func (r *directRunner) Screenshot(ctx context.Context) ([]byte, error) {
	res, err := proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng}.Call(r.s.Client(ctx, 0))
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return res.Data, nil
}

func (r *directRunner) Lines(ctx context.Context, n int) ([]string, error) {
	return r.console.Lines(ctx, n)
}

func (r *directRunner) Close() error {
	r.console.Stop()
	return r.s.Close()
}
