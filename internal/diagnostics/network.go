package diagnostics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"devprobe/internal/cdp"
	"devprobe/internal/config"
	"devprobe/internal/logging"

	"github.com/go-rod/rod/lib/proto"
)

// Network summary limits.
const (
	SlowRequestMs  = 300
	slowListSize   = 10
	errorsListSize = 20
)

// NetworkOptions controls one network collection.
type NetworkOptions struct {
	Duration        time.Duration
	Idle            time.Duration
	MaxRequests     int
	IncludeFailures bool
	RequestTimeout  time.Duration
}

// NetworkOptionsFrom converts the network config section.
func NetworkOptionsFrom(cfg config.NetworkConfig, requestTimeout time.Duration) NetworkOptions {
	return NetworkOptions{
		Duration:        cfg.Duration(),
		Idle:            cfg.Idle(),
		MaxRequests:     cfg.MaxRequests,
		IncludeFailures: cfg.IncludeFailures,
		RequestTimeout:  requestTimeout,
	}
}

// RequestRecord is one request keyed by its protocol request id. Events for
// the same id merge into it field by field. Timestamps are milliseconds on
// the target's monotonic clock; zero means not seen.
type RequestRecord struct {
	ID                string
	URL               string
	Method            string
	StartTs           float64
	EndTs             float64
	Status            int
	MimeType          string
	EncodedDataLength float64
	Failed            bool
}

// Duration is EndTs - StartTs; ok is false when either is missing.
func (r *RequestRecord) Duration() (ms float64, ok bool) {
	if r.StartTs == 0 || r.EndTs == 0 {
		return 0, false
	}
	return r.EndTs - r.StartTs, true
}

// RequestSummary is the reported form of a record.
type RequestSummary struct {
	ID                string   `json:"id"`
	URL               string   `json:"url,omitempty"`
	Method            string   `json:"method,omitempty"`
	Status            int      `json:"status,omitempty"`
	MimeType          string   `json:"mimeType,omitempty"`
	EncodedDataLength float64  `json:"encodedDataLength,omitempty"`
	DurationMs        *float64 `json:"durationMs,omitempty"`
	Failed            bool     `json:"failed,omitempty"`
}

// NetworkSnapshot summarizes one collection window.
type NetworkSnapshot struct {
	Total     int              `json:"total"`
	SlowTop10 []RequestSummary `json:"slowTop10"`
	Errors    []RequestSummary `json:"errors"`
	ClosedBy  Reason           `json:"closedBy"`
}

// networkLog merges network events by request id.
type networkLog struct {
	records map[proto.NetworkRequestID]*RequestRecord
	order   []proto.NetworkRequestID
}

func newNetworkLog() *networkLog {
	return &networkLog{records: make(map[proto.NetworkRequestID]*RequestRecord)}
}

func (l *networkLog) record(id proto.NetworkRequestID) *RequestRecord {
	r, ok := l.records[id]
	if !ok {
		r = &RequestRecord{ID: string(id)}
		l.records[id] = r
		l.order = append(l.order, id)
	}
	return r
}

func ms(t proto.MonotonicTime) float64 {
	return float64(t) * 1000
}

func (l *networkLog) absorb(ev cdp.Event) Observation {
	activity := false
	switch e := ev.(type) {
	case *cdp.RequestWillBeSent:
		r := l.record(e.RequestID)
		if e.Request != nil {
			r.URL = e.Request.URL
			r.Method = e.Request.Method
		}
		r.StartTs = ms(e.Timestamp)
		activity = true
	case *cdp.ResponseReceived:
		r := l.record(e.RequestID)
		if e.Response != nil {
			r.Status = e.Response.Status
			r.MimeType = e.Response.MIMEType
		}
	case *cdp.LoadingFinished:
		r := l.record(e.RequestID)
		r.EndTs = ms(e.Timestamp)
		r.EncodedDataLength = e.EncodedDataLength
		activity = true
	case *cdp.LoadingFailed:
		r := l.record(e.RequestID)
		r.Failed = true
		r.EndTs = ms(e.Timestamp)
		activity = true
	}
	return Observation{Activity: activity, Items: len(l.records)}
}

func (l *networkLog) summarize(includeFailures bool) *NetworkSnapshot {
	snap := &NetworkSnapshot{
		Total:     len(l.order),
		SlowTop10: []RequestSummary{},
		Errors:    []RequestSummary{},
	}

	for _, id := range l.order {
		r := l.records[id]
		s := RequestSummary{
			ID:                r.ID,
			URL:               r.URL,
			Method:            r.Method,
			Status:            r.Status,
			MimeType:          r.MimeType,
			EncodedDataLength: r.EncodedDataLength,
			Failed:            r.Failed,
		}
		if d, ok := r.Duration(); ok {
			s.DurationMs = &d
			if d > SlowRequestMs {
				snap.SlowTop10 = append(snap.SlowTop10, s)
			}
		}
		if includeFailures && (r.Failed || r.Status >= 400) && len(snap.Errors) < errorsListSize {
			snap.Errors = append(snap.Errors, s)
		}
	}

	sort.SliceStable(snap.SlowTop10, func(i, j int) bool {
		return *snap.SlowTop10[i].DurationMs > *snap.SlowTop10[j].DurationMs
	})
	if len(snap.SlowTop10) > slowListSize {
		snap.SlowTop10 = snap.SlowTop10[:slowListSize]
	}
	return snap
}

// CollectNetworkSnapshot enables network events on a fresh session and
// summarizes requests until the window closes.
func CollectNetworkSnapshot(ctx context.Context, target cdp.DebugTarget, opts NetworkOptions) (*NetworkSnapshot, error) {
	log := logging.Get(logging.CategoryDiagnostics)
	timer := logging.StartTimer(logging.CategoryDiagnostics, "network snapshot")
	defer timer.Stop()

	s, err := cdp.Open(ctx, target, cdp.WithRequestTimeout(opts.RequestTimeout))
	if err != nil {
		return nil, err
	}
	defer s.Close()

	// Subscribe before enabling so nothing emitted right after the
	// handshake is missed.
	sub := s.Subscribe(cdp.MethodRequestWillBeSent, cdp.MethodResponseReceived, cdp.MethodLoadingFinished, cdp.MethodLoadingFailed)
	defer sub.Unsubscribe()

	if err := (proto.NetworkEnable{}).Call(s.Client(ctx, opts.RequestTimeout)); err != nil {
		return nil, fmt.Errorf("network enable: %w", err)
	}

	netLog := newNetworkLog()
	w := Window{Duration: opts.Duration, MaxItems: opts.MaxRequests, Idle: opts.Idle}
	reason := w.Run(ctx, sub.Events(), netLog.absorb)
	if reason == ReasonCanceled {
		return nil, ctx.Err()
	}

	snap := netLog.summarize(opts.IncludeFailures)
	snap.ClosedBy = reason
	log.Info("network window closed by %s: %d requests, %d slow, %d errors", reason, snap.Total, len(snap.SlowTop10), len(snap.Errors))
	return snap, nil
}
