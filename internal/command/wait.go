package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"devprobe/internal/cdp"
	"devprobe/internal/translate"
)

// probe reports whether the wait condition holds for one evaluated value.
type probe func(value interface{}, now time.Time) (bool, string)

// wait polls script every poll interval until the verb's condition holds or
// its timeout passes. Value carries the timeout in ms for selector and URL
// waits; for wait_for_idle Value is the idle gap and Text the timeout.
func (e *Executor) wait(ctx context.Context, s *cdp.Session, verb translate.Verb, args translate.Args, script string) translate.Outcome {
	timeout := millis(args.Value, e.waitTimeout)
	var check probe
	var failure string

	switch verb {
	case translate.VerbWaitForSelector:
		check = func(v interface{}, _ time.Time) (bool, string) {
			return v == true, "Selector available: " + args.Selector
		}
		failure = "Timeout waiting for selector: " + args.Selector
	case translate.VerbWaitForURLIncludes:
		check = func(v interface{}, _ time.Time) (bool, string) {
			href, _ := v.(string)
			return strings.Contains(href, args.Text), "URL includes: " + args.Text
		}
		failure = "Timeout waiting for url includes: " + args.Text
	default:
		idle := millis(args.Value, e.idle)
		timeout = millis(args.Text, e.waitTimeout)
		last, lastChange := 0, time.Now()
		check = func(v interface{}, now time.Time) (bool, string) {
			n := 0
			if f, ok := v.(float64); ok {
				n = int(f)
			}
			if n != last {
				last, lastChange = n, now
			}
			return now.Sub(lastChange) > idle, fmt.Sprintf("Idle for %dms", idle.Milliseconds())
		}
		failure = "Timeout waiting for idle"
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		res, err := s.Evaluate(ctx, script, e.requestTimeout)
		if err != nil {
			return translate.FromError(err)
		}
		out := translate.Interpret(verb, res)
		if out.Failed() {
			return out
		}
		now := time.Now()
		if ok, msg := check(out.Value, now); ok {
			return translate.Success(out.Value, msg)
		}
		if !now.Before(deadline) {
			e.log.Debug("%s gave up after %v", verb, timeout)
			return translate.Failure(translate.KindTimeout, failure, "")
		}

		select {
		case <-ctx.Done():
			return translate.FromError(ctx.Err())
		case <-ticker.C:
		}
	}
}

// millis parses a millisecond count, falling back when s is empty or invalid.
func millis(s string, fallback time.Duration) time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Millisecond
}
