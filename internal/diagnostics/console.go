package diagnostics

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"devprobe/internal/cdp"
	"devprobe/internal/logging"

	"github.com/go-rod/rod/lib/proto"
)

const consoleTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// LogSource supplies the most recent log lines, oldest first.
type LogSource interface {
	Lines(ctx context.Context, n int) ([]string, error)
}

// ConsoleSource is a LogSource that listens to the page console for one
// window per call.
type ConsoleSource struct {
	Target cdp.DebugTarget
	Window Window
}

// Lines captures console output and returns the last n lines.
func (c ConsoleSource) Lines(ctx context.Context, n int) ([]string, error) {
	lines, err := CaptureConsole(ctx, c.Target, c.Window)
	if err != nil {
		return nil, err
	}
	return tail(lines, n), nil
}

// ConsoleRecorder collects console output on a session the caller already
// owns. Runtime must be enabled on that session for lines to arrive.
type ConsoleRecorder struct {
	sub   *cdp.Subscription
	drain Window

	mu    sync.Mutex
	lines []string
}

// RecordConsole starts collecting console events on s.
func RecordConsole(s *cdp.Session) *ConsoleRecorder {
	return &ConsoleRecorder{
		sub:   s.Subscribe(cdp.MethodConsoleAPICalled, cdp.MethodMessageAdded),
		drain: Window{Duration: 500 * time.Millisecond, Idle: 50 * time.Millisecond},
	}
}

// Lines takes in whatever has arrived so far and returns the last n lines
// recorded since RecordConsole.
func (r *ConsoleRecorder) Lines(ctx context.Context, n int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reason := r.drain.Run(ctx, r.sub.Events(), func(ev cdp.Event) Observation {
		if line, ok := consoleLine(ev, time.Now()); ok {
			r.lines = append(r.lines, line)
		}
		return Observation{Activity: true}
	})
	if reason == ReasonCanceled {
		return nil, ctx.Err()
	}
	out := make([]string, 0, len(r.lines))
	return append(out, tail(r.lines, n)...), nil
}

// Stop ends the recording.
func (r *ConsoleRecorder) Stop() {
	r.sub.Unsubscribe()
}

func tail(lines []string, n int) []string {
	if n > 0 && len(lines) > n {
		return lines[len(lines)-n:]
	}
	return lines
}

// CaptureConsole enables Runtime and Console on a fresh session and renders
// console output as "[timestamp] LEVEL: text" lines until the window closes.
func CaptureConsole(ctx context.Context, target cdp.DebugTarget, w Window) ([]string, error) {
	s, err := cdp.Open(ctx, target)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	sub := s.Subscribe(cdp.MethodConsoleAPICalled, cdp.MethodMessageAdded)
	defer sub.Unsubscribe()

	client := s.Client(ctx, 0)
	if err := (proto.RuntimeEnable{}).Call(client); err != nil {
		return nil, fmt.Errorf("runtime enable: %w", err)
	}
	if err := (proto.ConsoleEnable{}).Call(client); err != nil {
		if !cdp.IsProtocol(err) {
			return nil, fmt.Errorf("console enable: %w", err)
		}
		logging.Get(logging.CategoryDiagnostics).Debug("Console.enable rejected, continuing: %v", err)
	}

	var lines []string
	reason := w.Run(ctx, sub.Events(), func(ev cdp.Event) Observation {
		if line, ok := consoleLine(ev, time.Now()); ok {
			lines = append(lines, line)
		}
		return Observation{Activity: true, Items: len(lines)}
	})
	if reason == ReasonCanceled {
		return nil, ctx.Err()
	}
	return lines, nil
}

func consoleLine(ev cdp.Event, now time.Time) (string, bool) {
	switch e := ev.(type) {
	case *cdp.ConsoleAPICalled:
		at := now
		if e.Timestamp > 0 {
			at = time.UnixMilli(int64(e.Timestamp))
		}
		parts := make([]string, 0, len(e.Args))
		for _, arg := range e.Args {
			parts = append(parts, remoteText(arg))
		}
		return formatLine(at, string(e.Type), strings.Join(parts, " ")), true
	case *cdp.MessageAdded:
		if e.Message == nil {
			return "", false
		}
		return formatLine(now, string(e.Message.Level), e.Message.Text), true
	}
	return "", false
}

func formatLine(at time.Time, level, text string) string {
	return fmt.Sprintf("[%s] %s: %s", at.UTC().Format(consoleTimeLayout), strings.ToUpper(level), text)
}

// remoteText renders a console argument the way the console shows it.
func remoteText(obj *proto.RuntimeRemoteObject) string {
	if obj == nil {
		return ""
	}
	if !obj.Value.Nil() {
		if s, ok := obj.Value.Val().(string); ok {
			return s
		}
		return obj.Value.JSON("", "")
	}
	if obj.Description != "" {
		return obj.Description
	}
	return string(obj.Type)
}
