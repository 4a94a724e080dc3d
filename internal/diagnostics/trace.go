package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"devprobe/internal/cdp"
	"devprobe/internal/config"
	"devprobe/internal/logging"

	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// LongTaskMicros is the duration above which a trace event is a long task.
const LongTaskMicros = 50000

const traceTopSize = 10

// DefaultTraceCategories are the timeline and CPU profiler categories.
var DefaultTraceCategories = []string{"devtools.timeline", "disabled-by-default-v8.cpu_profiler"}

// TraceOptions controls one trace run.
type TraceOptions struct {
	Duration       time.Duration
	Categories     []string
	RequestTimeout time.Duration
	// CompleteTimeout bounds the wait for Tracing.tracingComplete after
	// Tracing.end. Defaults to RequestTimeout.
	CompleteTimeout time.Duration
}

// TraceOptionsFrom converts the trace config section.
func TraceOptionsFrom(cfg config.TraceConfig, requestTimeout time.Duration) TraceOptions {
	return TraceOptions{Duration: cfg.Duration(), Categories: cfg.Categories, RequestTimeout: requestTimeout}
}

// TraceEvent is one collected trace entry. Durations and timestamps are
// microseconds, as the target reports them.
type TraceEvent struct {
	Name           string
	Category       string
	DurationMicros float64
	Timestamp      float64
}

// CategoryTotal aggregates every event of one category.
type CategoryTotal struct {
	Category string  `json:"cat"`
	Count    int     `json:"count"`
	TotalDur float64 `json:"totalDur"`
}

// LongTask is an event longer than LongTaskMicros.
type LongTask struct {
	Name     string  `json:"name"`
	Category string  `json:"cat"`
	Dur      float64 `json:"dur"`
}

// TraceSummary is the result of one trace run.
type TraceSummary struct {
	TotalEvents      int             `json:"totalEvents"`
	TopCategories    []CategoryTotal `json:"topCategories"`
	TopLongTasks     []LongTask      `json:"topLongTasks"`
	DataLossOccurred bool            `json:"dataLossOccurred,omitempty"`
}

func jsonStr(j gson.JSON) string {
	if j.Nil() {
		return ""
	}
	return j.Str()
}

func traceEventFrom(raw map[string]gson.JSON) TraceEvent {
	return TraceEvent{
		Name:           jsonStr(raw["name"]),
		Category:       jsonStr(raw["cat"]),
		DurationMicros: raw["dur"].Num(),
		Timestamp:      raw["ts"].Num(),
	}
}

// SummarizeTrace totals durations per category over all events and picks
// the longest tasks.
func SummarizeTrace(events []TraceEvent) *TraceSummary {
	totals := make(map[string]*CategoryTotal)
	long := []LongTask{}
	for _, e := range events {
		cat := e.Category
		if cat == "" {
			cat = "unknown"
		}
		t, ok := totals[cat]
		if !ok {
			t = &CategoryTotal{Category: cat}
			totals[cat] = t
		}
		t.Count++
		t.TotalDur += e.DurationMicros

		if e.DurationMicros > LongTaskMicros {
			name := e.Name
			if name == "" {
				name = "unknown"
			}
			long = append(long, LongTask{Name: name, Category: cat, Dur: e.DurationMicros})
		}
	}

	cats := make([]CategoryTotal, 0, len(totals))
	for _, t := range totals {
		cats = append(cats, *t)
	}
	sort.Slice(cats, func(i, j int) bool {
		if cats[i].TotalDur != cats[j].TotalDur {
			return cats[i].TotalDur > cats[j].TotalDur
		}
		return cats[i].Category < cats[j].Category
	})
	if len(cats) > traceTopSize {
		cats = cats[:traceTopSize]
	}

	sort.SliceStable(long, func(i, j int) bool { return long[i].Dur > long[j].Dur })
	if len(long) > traceTopSize {
		long = long[:traceTopSize]
	}

	return &TraceSummary{TotalEvents: len(events), TopCategories: cats, TopLongTasks: long}
}

// CollectTrace records a trace for opts.Duration and summarizes every event
// delivered up to Tracing.tracingComplete.
func CollectTrace(ctx context.Context, target cdp.DebugTarget, opts TraceOptions) (*TraceSummary, error) {
	log := logging.Get(logging.CategoryDiagnostics)
	categories := opts.Categories
	if len(categories) == 0 {
		categories = DefaultTraceCategories
	}
	completeTimeout := opts.CompleteTimeout
	if completeTimeout <= 0 {
		completeTimeout = opts.RequestTimeout
	}
	if completeTimeout <= 0 {
		completeTimeout = cdp.DefaultRequestTimeout
	}

	s, err := cdp.Open(ctx, target, cdp.WithRequestTimeout(opts.RequestTimeout))
	if err != nil {
		return nil, err
	}
	defer s.Close()

	sub := s.Subscribe(cdp.MethodDataCollected, cdp.MethodTracingComplete)
	defer sub.Unsubscribe()

	// Not every target exposes Tracing.enable; Tracing.start is what matters.
	if _, err := s.Request(ctx, "Tracing.enable", nil, opts.RequestTimeout); err != nil {
		if !cdp.IsProtocol(err) {
			return nil, fmt.Errorf("tracing enable: %w", err)
		}
		log.Debug("Tracing.enable rejected, continuing: %v", err)
	}

	client := s.Client(ctx, opts.RequestTimeout)
	start := proto.TracingStart{
		Categories:   strings.Join(categories, ","),
		TransferMode: proto.TracingStartTransferModeReportEvents,
	}
	if err := start.Call(client); err != nil {
		return nil, fmt.Errorf("tracing start: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.Done():
		return nil, &cdp.ConnectionError{Endpoint: target.SocketEndpoint, Err: errors.New("session closed while tracing")}
	case <-time.After(opts.Duration):
	}

	if err := (proto.TracingEnd{}).Call(client); err != nil {
		return nil, fmt.Errorf("tracing end: %w", err)
	}

	var events []TraceEvent
	dataLoss := false
	w := Window{Duration: completeTimeout}
	reason := w.Run(ctx, sub.Events(), func(ev cdp.Event) Observation {
		switch e := ev.(type) {
		case *cdp.DataCollected:
			for _, raw := range e.Value {
				events = append(events, traceEventFrom(raw))
			}
			return Observation{Activity: true, Items: len(events)}
		case *cdp.TracingComplete:
			dataLoss = e.DataLossOccurred
			return Observation{Done: true, Items: len(events)}
		}
		return Observation{Items: len(events)}
	})

	switch reason {
	case ReasonDone:
	case ReasonCanceled:
		return nil, ctx.Err()
	case ReasonEnded:
		return nil, &cdp.ConnectionError{Endpoint: target.SocketEndpoint, Err: errors.New("event stream ended before tracing completed")}
	default:
		return nil, &cdp.TimeoutError{Method: cdp.MethodTracingComplete, After: completeTimeout}
	}

	summary := SummarizeTrace(events)
	summary.DataLossOccurred = dataLoss
	log.Info("trace complete: %d events over %d categories", summary.TotalEvents, len(summary.TopCategories))
	return summary, nil
}
