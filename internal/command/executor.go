// Package command runs translated verbs against a debug target: one
// short-lived session per call, Runtime.evaluate underneath.
package command

import (
	"context"
	"time"

	"devprobe/internal/cdp"
	"devprobe/internal/config"
	"devprobe/internal/logging"
	"devprobe/internal/translate"

	"github.com/go-rod/rod/lib/proto"
)

// Defaults for wait verbs.
const (
	DefaultPollInterval = 200 * time.Millisecond
	DefaultWaitTimeout  = 5 * time.Second
	DefaultIdle         = 800 * time.Millisecond
)

// Executor evaluates verbs against one target.
type Executor struct {
	target         cdp.DebugTarget
	dialTimeout    time.Duration
	requestTimeout time.Duration
	pollInterval   time.Duration
	waitTimeout    time.Duration
	idle           time.Duration
	log            *logging.Logger
}

// Option configures an Executor.
type Option func(*Executor)

func WithDialTimeout(d time.Duration) Option    { return func(e *Executor) { e.dialTimeout = d } }
func WithRequestTimeout(d time.Duration) Option { return func(e *Executor) { e.requestTimeout = d } }
func WithPollInterval(d time.Duration) Option   { return func(e *Executor) { e.pollInterval = d } }
func WithWaitTimeout(d time.Duration) Option    { return func(e *Executor) { e.waitTimeout = d } }
func WithIdle(d time.Duration) Option           { return func(e *Executor) { e.idle = d } }

// NewExecutor creates an executor for target.
func NewExecutor(target cdp.DebugTarget, opts ...Option) *Executor {
	e := &Executor{
		target:         target,
		dialTimeout:    cdp.DefaultDialTimeout,
		requestTimeout: cdp.DefaultRequestTimeout,
		pollInterval:   DefaultPollInterval,
		waitTimeout:    DefaultWaitTimeout,
		idle:           DefaultIdle,
		log:            logging.Get(logging.CategoryTranslate).With("target", target.ID),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FromConfig creates an executor using the transport and automation settings of cfg.
func FromConfig(target cdp.DebugTarget, cfg *config.Config) *Executor {
	return NewExecutor(target,
		WithDialTimeout(cfg.GetDialTimeout()),
		WithRequestTimeout(cfg.GetRequestTimeout()),
		WithPollInterval(cfg.Automation.GetPollInterval()),
		WithWaitTimeout(cfg.Automation.GetWaitTimeout()),
		WithIdle(cfg.Automation.GetIdle()),
	)
}

// Target returns the target the executor talks to.
func (e *Executor) Target() cdp.DebugTarget {
	return e.target
}

// Evaluate runs caller-supplied script through the eval wrapper.
func (e *Executor) Evaluate(ctx context.Context, code string) translate.Outcome {
	return e.Execute(ctx, translate.VerbEval, translate.Args{Code: code})
}

// Execute runs one verb over a fresh session. Connection, protocol and
// timeout errors end the call and come back as a single failed outcome.
func (e *Executor) Execute(ctx context.Context, verb translate.Verb, args translate.Args) translate.Outcome {
	timer := logging.StartTimer(logging.CategoryTranslate, string(verb))
	defer timer.StopWithThreshold(e.requestTimeout)

	// Translate first so bad input never opens a socket.
	if _, err := translate.Translate(verb, args); err != nil {
		return translate.FromError(err)
	}

	s, err := e.Open(ctx)
	if err != nil {
		return translate.FromError(err)
	}
	defer s.Close()

	return e.Step(ctx, s, verb, args)
}

// Open dials the target and enables the Runtime domain.
func (e *Executor) Open(ctx context.Context) (*cdp.Session, error) {
	s, err := cdp.Open(ctx, e.target, cdp.WithDialTimeout(e.dialTimeout), cdp.WithRequestTimeout(e.requestTimeout))
	if err != nil {
		return nil, err
	}
	if err := s.EnableRuntime(ctx, e.requestTimeout); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Step runs one verb over an already opened session. The session must have
// Runtime enabled.
func (e *Executor) Step(ctx context.Context, s *cdp.Session, verb translate.Verb, args translate.Args) translate.Outcome {
	script, err := translate.Translate(verb, args)
	if err != nil {
		return translate.FromError(err)
	}

	if verb.IsWait() {
		return e.wait(ctx, s, verb, args, script)
	}

	res, err := s.Evaluate(ctx, script, e.requestTimeout)
	if err != nil {
		e.log.Warn("%s failed: %v", verb, err)
		return translate.FromError(err)
	}
	out := translate.Interpret(verb, res)
	if out.Failed() {
		e.log.Debug("%s: %s", verb, out.Message)
	}
	return out
}

// Screenshot captures the target as PNG over its own session.
func (e *Executor) Screenshot(ctx context.Context) ([]byte, error) {
	s, err := cdp.Open(ctx, e.target, cdp.WithDialTimeout(e.dialTimeout), cdp.WithRequestTimeout(e.requestTimeout))
	if err != nil {
		return nil, err
	}
	defer s.Close()
	res, err := proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng}.Call(s.Client(ctx, 0))
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}
