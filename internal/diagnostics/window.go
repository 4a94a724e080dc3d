// Package diagnostics accumulates protocol events over bounded collection
// windows and summarizes them: network activity, trace events, console
// output and a one-shot performance snapshot.
package diagnostics

import (
	"context"
	"time"

	"devprobe/internal/cdp"
)

// Reason says which limit closed a collection window.
type Reason string

const (
	ReasonDuration Reason = "duration"
	ReasonCount    Reason = "count"
	ReasonIdle     Reason = "idle"
	ReasonDone     Reason = "done"  // the collector saw its terminal event
	ReasonEnded    Reason = "ended" // the session's event stream closed
	ReasonCanceled Reason = "canceled"
)

// Window bounds a collection period by elapsed time, item count and idle
// gap. The first limit reached closes it. Zero disables a limit.
type Window struct {
	Duration time.Duration
	MaxItems int
	Idle     time.Duration
}

// Observation is what a collector reports after absorbing one event.
type Observation struct {
	Activity bool // resets the idle clock
	Items    int  // distinct items collected so far
	Done     bool // terminal event; close now
}

// Run feeds events to absorb until the window closes. Nothing is read from
// events after Run returns, so later events never reach absorb.
func (w Window) Run(ctx context.Context, events <-chan cdp.Event, absorb func(cdp.Event) Observation) Reason {
	var durC, idleC <-chan time.Time
	if w.Duration > 0 {
		t := time.NewTimer(w.Duration)
		defer t.Stop()
		durC = t.C
	}
	var idle *time.Timer
	if w.Idle > 0 {
		idle = time.NewTimer(w.Idle)
		defer idle.Stop()
		idleC = idle.C
	}

	for {
		select {
		case <-ctx.Done():
			return ReasonCanceled
		case <-durC:
			return ReasonDuration
		case <-idleC:
			return ReasonIdle
		case ev, ok := <-events:
			if !ok {
				return ReasonEnded
			}
			obs := absorb(ev)
			if obs.Done {
				return ReasonDone
			}
			if w.MaxItems > 0 && obs.Items >= w.MaxItems {
				return ReasonCount
			}
			if obs.Activity && idle != nil {
				idle.Reset(w.Idle)
			}
		}
	}
}
