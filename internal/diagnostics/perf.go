package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"devprobe/internal/cdp"
	"devprobe/internal/logging"

	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/sync/errgroup"
)

const (
	maxResources     = 50
	maxLogMatches    = 20
	defaultLogLines  = 200
	consoleLogWindow = 2 * time.Second
)

// Navigation timing keys kept from performance.timing.
var timingKeys = []string{
	"navigationStart",
	"responseStart",
	"domContentLoadedEventStart",
	"domContentLoadedEventEnd",
	"loadEventStart",
	"loadEventEnd",
}

var errorLine = regexp.MustCompile(`(?i)ERROR|TypeError|ReferenceError|Unhandled|Failed`)

const metricsScript = `(function() {
  try {
    var timing = performance.timing || {};
    var picked = {};
    ['navigationStart', 'responseStart', 'domContentLoadedEventStart', 'domContentLoadedEventEnd',
      'loadEventStart', 'loadEventEnd'].forEach(function(k) {
      if (timing[k] != null) picked[k] = timing[k];
    });
    var nav = performance.getEntriesByType('navigation')[0];
    return {
      now: performance.now(),
      timing: picked,
      navigation: nav ? (nav.toJSON ? nav.toJSON() : nav) : null,
      resources: performance.getEntriesByType('resource').slice(0, 50).map(function(r) {
        return { name: r.name, initiatorType: r.initiatorType, startTime: r.startTime,
          duration: r.duration, transferSize: r.transferSize };
      }),
      paint: performance.getEntriesByType('paint').map(function(p) {
        return { name: p.name, startTime: p.startTime };
      })
    };
  } catch (e) {
    return { error: e.message };
  }
})()`

// vitalsScript reads buffered entries through a PerformanceObserver; with
// buffered: true the entries are available to takeRecords immediately.
const vitalsScript = `(function() {
  try {
    var m = { fcp: null, lcp: null, cls: 0, inp: null };
    function take(type) {
      try {
        var po = new PerformanceObserver(function() {});
        po.observe({ type: type, buffered: true });
        var list = po.takeRecords();
        po.disconnect();
        return list;
      } catch (e) {
        return [];
      }
    }
    take('paint').forEach(function(e) { if (e.name === 'first-contentful-paint') m.fcp = e.startTime; });
    take('largest-contentful-paint').forEach(function(e) { m.lcp = e.startTime; });
    take('layout-shift').forEach(function(e) { if (!e.hadRecentInput) m.cls += e.value; });
    take('event').forEach(function(e) { if (m.inp === null || e.duration > m.inp) m.inp = e.duration; });
    return m;
  } catch (e) {
    return { error: e.message };
  }
})()`

// Screenshotter captures the target window as PNG.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// PerfOptions selects what a performance snapshot includes.
type PerfOptions struct {
	IncludeNavigation bool
	IncludeResources  bool
	IncludeWebVitals  bool
	CollectLogs       bool
	CaptureScreenshot bool
	LogLines          int
	RequestTimeout    time.Duration

	// Logs defaults to a ConsoleSource on the same target.
	Logs LogSource
	// Screenshots is required when CaptureScreenshot is set.
	Screenshots Screenshotter
}

// PerfMetrics is the timing payload of the page.
type PerfMetrics struct {
	Now        float64            `json:"now"`
	Timing     map[string]float64 `json:"timing"`
	Navigation json.RawMessage    `json:"navigation,omitempty"`
	Resources  json.RawMessage    `json:"resources,omitempty"`
	Paint      json.RawMessage    `json:"paint,omitempty"`
}

// WebVitals are the observer-based page metrics, in milliseconds except CLS.
type WebVitals struct {
	FCP *float64 `json:"fcp"`
	LCP *float64 `json:"lcp"`
	CLS float64  `json:"cls"`
	INP *float64 `json:"inp"`
}

// PerfReport is one performance snapshot. Sections that were not requested
// are absent from the JSON form, not empty.
type PerfReport struct {
	Metrics    *PerfMetrics
	Logs       []string // nil unless requested
	WebVitals  *WebVitals
	Screenshot []byte
}

func (r *PerfReport) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{"metrics": r.Metrics}
	if r.Logs != nil {
		out["logs"] = r.Logs
	}
	if r.WebVitals != nil {
		out["webVitals"] = r.WebVitals
	}
	return json.Marshal(out)
}

type metricsPayload struct {
	PerfMetrics
	Error string `json:"error"`
}

// CollectPerformanceSnapshot evaluates the metrics probe and, as requested,
// the vitals probe, a log scan and a screenshot, all concurrently.
func CollectPerformanceSnapshot(ctx context.Context, target cdp.DebugTarget, opts PerfOptions) (*PerfReport, error) {
	if opts.CaptureScreenshot && opts.Screenshots == nil {
		return nil, errors.New("screenshot requested but no screenshotter configured")
	}
	logLines := opts.LogLines
	if logLines <= 0 {
		logLines = defaultLogLines
	}
	logs := opts.Logs
	if logs == nil {
		logs = ConsoleSource{Target: target, Window: Window{Duration: consoleLogWindow, MaxItems: logLines}}
	}

	timer := logging.StartTimer(logging.CategoryDiagnostics, "performance snapshot")
	defer timer.Stop()

	s, err := cdp.Open(ctx, target, cdp.WithRequestTimeout(opts.RequestTimeout))
	if err != nil {
		return nil, err
	}
	defer s.Close()
	if err := s.EnableRuntime(ctx, opts.RequestTimeout); err != nil {
		return nil, err
	}

	report := &PerfReport{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var payload metricsPayload
		if err := evaluateInto(gctx, s, metricsScript, opts.RequestTimeout, &payload); err != nil {
			return fmt.Errorf("metrics probe: %w", err)
		}
		if payload.Error != "" {
			return fmt.Errorf("metrics probe: %w", &cdp.EvaluationError{Message: payload.Error})
		}
		m := payload.PerfMetrics
		m.Timing = pickTiming(m.Timing)
		if !opts.IncludeNavigation || string(m.Navigation) == "null" {
			m.Navigation = nil
		}
		if !opts.IncludeResources {
			m.Resources = nil
		}
		report.Metrics = &m
		return nil
	})

	if opts.IncludeWebVitals {
		g.Go(func() error {
			var payload struct {
				WebVitals
				Error string `json:"error"`
			}
			if err := evaluateInto(gctx, s, vitalsScript, opts.RequestTimeout, &payload); err != nil {
				return fmt.Errorf("vitals probe: %w", err)
			}
			if payload.Error != "" {
				return fmt.Errorf("vitals probe: %w", &cdp.EvaluationError{Message: payload.Error})
			}
			report.WebVitals = &payload.WebVitals
			return nil
		})
	}

	if opts.CollectLogs {
		g.Go(func() error {
			lines, err := logs.Lines(gctx, logLines)
			if err != nil {
				return fmt.Errorf("log scan: %w", err)
			}
			report.Logs = ErrorLines(lines, logLines)
			return nil
		})
	}

	if opts.CaptureScreenshot {
		g.Go(func() error {
			shot, err := opts.Screenshots.Screenshot(gctx)
			if err != nil {
				return fmt.Errorf("screenshot: %w", err)
			}
			report.Screenshot = shot
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

// ErrorLines keeps the error-looking lines among the last n lines, at most
// the last 20 of them. The result is never nil.
func ErrorLines(lines []string, n int) []string {
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	out := []string{}
	for _, l := range lines {
		if errorLine.MatchString(l) {
			out = append(out, l)
		}
	}
	if len(out) > maxLogMatches {
		out = out[len(out)-maxLogMatches:]
	}
	return out
}

func pickTiming(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(timingKeys))
	for _, k := range timingKeys {
		if v, ok := in[k]; ok {
			out[k] = v
		}
	}
	return out
}

// evaluateInto runs a probe and decodes its by-value result into v.
func evaluateInto(ctx context.Context, s *cdp.Session, script string, timeout time.Duration, v interface{}) error {
	res, err := s.Evaluate(ctx, script, timeout)
	if err != nil {
		return err
	}
	if ee := cdp.Exception(res); ee != nil {
		return ee
	}
	if res.Result.Type != proto.RuntimeRemoteObjectTypeObject || res.Result.Value.Nil() {
		return fmt.Errorf("unexpected probe result of type %s", res.Result.Type)
	}
	raw, err := json.Marshal(res.Result.Value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
