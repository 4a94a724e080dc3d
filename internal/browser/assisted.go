// Package browser is the assisted automation backend. It attaches go-rod to
// the already running target and performs steps as native page actions
// instead of translated scripts. It covers a narrow set of actions; anything
// else is reported as unsupported.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"devprobe/internal/automation"
	"devprobe/internal/cdp"
	"devprobe/internal/config"
	"devprobe/internal/logging"
	"devprobe/internal/translate"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Config holds assisted backend settings.
type Config struct {
	ActionTimeout time.Duration // default bound for one action or wait
	IdleTime      time.Duration // quiet period for wait_for_idle
	ControlURL    string        // browser-level socket; resolved from the target when empty
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ActionTimeout: 5 * time.Second,
		IdleTime:      500 * time.Millisecond,
	}
}

// ConfigFrom builds the backend settings from the automation section.
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig()
	c.ActionTimeout = cfg.Automation.GetWaitTimeout()
	c.IdleTime = cfg.Automation.GetIdle()
	return c
}

// GetActionTimeout returns the action timeout.
func (c Config) GetActionTimeout() time.Duration {
	if c.ActionTimeout <= 0 {
		return 5 * time.Second
	}
	return c.ActionTimeout
}

// GetIdleTime returns the network quiet period.
func (c Config) GetIdleTime() time.Duration {
	if c.IdleTime <= 0 {
		return 500 * time.Millisecond
	}
	return c.IdleTime
}

// Assisted attaches rod to one target per run.
type Assisted struct {
	target cdp.DebugTarget
	cfg    Config
	log    *logging.Logger
}

// NewAssisted creates the assisted backend for target.
func NewAssisted(target cdp.DebugTarget, cfg Config) *Assisted {
	return &Assisted{
		target: target,
		cfg:    cfg,
		log:    logging.Get(logging.CategoryBrowser).With("target", target.ID),
	}
}

func (a *Assisted) Name() string { return config.BackendAssisted }

// ResolveControlURL finds the browser-level socket of the process serving
// target, via /json/version on the same host and port.
func ResolveControlURL(target cdp.DebugTarget) (string, error) {
	u, err := url.Parse(target.SocketEndpoint)
	if err != nil || u.Host == "" {
		return "", &cdp.ConnectionError{Endpoint: target.SocketEndpoint, Err: errors.New("target has no usable socket endpoint")}
	}
	controlURL, err := launcher.ResolveURL(u.Host)
	if err != nil {
		return "", &cdp.ConnectionError{Endpoint: u.Host, Err: err}
	}
	// A host without /json/version still answers, just not with a socket.
	if cu, err := url.Parse(controlURL); err != nil || (cu.Scheme != "ws" && cu.Scheme != "wss") {
		return "", &cdp.ConnectionError{Endpoint: u.Host, Err: fmt.Errorf("no browser socket advertised (got %q)", controlURL)}
	}
	return controlURL, nil
}

// Attach connects to the browser and binds the target page. The connection
// lives until the runner is closed; closing never closes the page or the
// application.
func (a *Assisted) Attach(ctx context.Context) (automation.Runner, error) {
	if a.target.ID == "" {
		return nil, &cdp.ConnectionError{Endpoint: a.target.SocketEndpoint, Err: errors.New("target has no id to attach to")}
	}
	controlURL := a.cfg.ControlURL
	if controlURL == "" {
		var err error
		if controlURL, err = ResolveControlURL(a.target); err != nil {
			return nil, err
		}
	}

	// Cancelling this context drops rod's socket.
	runCtx, cancel := context.WithCancel(ctx)
	browser := rod.New().ControlURL(controlURL).Context(runCtx)
	if err := browser.Connect(); err != nil {
		cancel()
		return nil, &cdp.ConnectionError{Endpoint: controlURL, Err: err}
	}

	page, err := browser.PageFromTarget(proto.TargetTargetID(a.target.ID))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("attach to target %s: %w", a.target.ID, err)
	}
	a.log.Debug("attached to %s via %s", a.target.ID, controlURL)

	return &pageRunner{page: page, cfg: a.cfg, cancel: cancel, log: a.log}, nil
}

type pageRunner struct {
	page   *rod.Page
	cfg    Config
	cancel context.CancelFunc
	log    *logging.Logger
}

// ExecuteStep performs one native action. Action errors are returned as
// errors; the engine records them against the step.
func (r *pageRunner) ExecuteStep(ctx context.Context, verb translate.Verb, args translate.Args) (translate.Outcome, error) {
	if err := translate.CheckArgs(args); err != nil {
		return translate.Outcome{}, err
	}

	// Same argument layout as the direct backend: waits take their timeout
	// from value, except wait_for_idle where value is the quiet period and
	// text the timeout.
	timeout := r.cfg.GetActionTimeout()
	switch {
	case verb == translate.VerbWaitForIdle:
		timeout = millis(args.Text, timeout)
	case verb.IsWait():
		timeout = millis(args.Value, timeout)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	page := r.page.Context(actx)

	out, err := r.act(actx, page, verb, args)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return translate.Outcome{}, &cdp.TimeoutError{Method: string(verb), After: timeout}
	}
	return out, err
}

func (r *pageRunner) act(ctx context.Context, page *rod.Page, verb translate.Verb, args translate.Args) (translate.Outcome, error) {
	switch verb {
	case translate.VerbWaitForSelector:
		el, err := page.Element(args.Selector)
		if err != nil {
			return translate.Outcome{}, err
		}
		if err := el.WaitVisible(); err != nil {
			return translate.Outcome{}, err
		}
		return translate.Success(nil, "Selector ready: "+args.Selector), nil

	case translate.VerbWaitForURLIncludes:
		err := page.Wait(rod.Eval(`(t) => window.location.href.includes(t)`, args.Text))
		if err != nil {
			return translate.Outcome{}, err
		}
		return translate.Success(nil, "URL includes: "+args.Text), nil

	case translate.VerbWaitForIdle:
		page.WaitRequestIdle(millis(args.Value, r.cfg.GetIdleTime()), nil, nil, nil)()
		if err := ctx.Err(); err != nil {
			return translate.Outcome{}, err
		}
		return translate.Success(nil, "Network idle"), nil

	case translate.VerbClickBySelector:
		el, err := page.Element(args.Selector)
		if err != nil {
			return translate.Outcome{}, err
		}
		return r.click(el, args.Selector)

	case translate.VerbClickByText:
		el, err := page.ElementR("*", "/^"+regexp.QuoteMeta(args.Text)+"$/")
		if err != nil {
			return translate.Outcome{}, err
		}
		return r.click(el, args.Text)

	case translate.VerbFillInput:
		sel := args.Selector
		if sel == "" {
			hint := args.Placeholder
			if hint == "" {
				hint = args.Text
			}
			if hint == "" {
				return translate.Outcome{}, fmt.Errorf("%w: fill_input needs a selector or placeholder", translate.ErrMissingArgument)
			}
			sel = fmt.Sprintf("[placeholder=%q]", hint)
		}
		el, err := page.Element(sel)
		if err != nil {
			return translate.Outcome{}, err
		}
		if err := el.SelectAllText(); err != nil {
			return translate.Outcome{}, err
		}
		if err := el.Input(args.Value); err != nil {
			return translate.Outcome{}, err
		}
		return translate.Success(nil, "Filled input: "+sel), nil

	case translate.VerbSelectOption:
		sel := args.Selector
		if sel == "" {
			sel = "select"
		}
		el, err := page.Element(sel)
		if err != nil {
			return translate.Outcome{}, err
		}
		if args.Value != "" {
			err = el.Select([]string{fmt.Sprintf("[value=%q]", args.Value)}, true, rod.SelectorTypeCSSSector)
		} else {
			err = el.Select([]string{args.Text}, true, rod.SelectorTypeText)
		}
		if err != nil {
			return translate.Outcome{}, err
		}
		return translate.Success(nil, "Selected: "+args.Value+args.Text), nil

	case translate.VerbKeyboardShortcut:
		sc, err := translate.ParseShortcut(args.Text)
		if err != nil {
			return translate.Outcome{}, err
		}
		mods, key, err := shortcutKeys(sc)
		if err != nil {
			return translate.Outcome{}, err
		}
		if err := page.KeyActions().Press(mods...).Type(key).Do(); err != nil {
			return translate.Outcome{}, err
		}
		return translate.Success(nil, "Shortcut: "+sc.String()), nil

	case translate.VerbNavigateToHash:
		hash, err := translate.CleanHash(args.Text)
		if err != nil {
			return translate.Outcome{}, err
		}
		_, err = page.Eval(`(h) => {
			if (window.history && window.history.pushState) {
				window.history.pushState({}, '', window.location.pathname + window.location.search + h);
				window.dispatchEvent(new HashChangeEvent('hashchange'));
			} else {
				window.location.hash = h;
			}
		}`, hash)
		if err != nil {
			return translate.Outcome{}, err
		}
		return translate.Success(nil, "Navigated to "+hash), nil
	}
	return translate.Outcome{}, fmt.Errorf("%w: %s", automation.ErrUnsupported, verb)
}

func (r *pageRunner) click(el *rod.Element, what string) (translate.Outcome, error) {
	if reasons, err := hiddenReasonsOf(el); err == nil && len(reasons) > 0 {
		return translate.Failure(translate.KindStep, "Element not clickable: "+what, joinReasons(reasons)), nil
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return translate.Outcome{}, err
	}
	return translate.Success(nil, "Clicked: "+what), nil
}

// Screenshot captures the page as PNG.
func (r *pageRunner) Screenshot(ctx context.Context) ([]byte, error) {
	return r.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng})
}

// Close drops the connection. The page and the application stay open.
func (r *pageRunner) Close() error {
	r.cancel()
	return nil
}

func millis(s string, fallback time.Duration) time.Duration {
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Millisecond
	}
	return fallback
}
