package translate

import (
	"encoding/base64"
	"fmt"
	"strings"
	"text/template"

	"devprobe/internal/cdp"
	"devprobe/internal/logging"

	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// Duplicate-action guard windows.
const (
	ButtonGuardMs   = 2000
	TextGuardMs     = 2000
	SelectorGuardMs = 1000
)

// Markers of code that intentionally re-runs the same check; such code
// bypasses the in-flight guard of eval.
var stateTestMarkers = []string{"window.testState", "persistent-test-value", "window.testValue"}

// Constant expressions for the simple verbs.
var constantScripts = map[Verb]string{
	VerbGetTitle:    "document.title",
	VerbGetURL:      "window.location.href",
	VerbGetBodyText: "document.body.innerText.substring(0, 500)",
}

type builder func(Args) (*template.Template, interface{}, error)

var builders = map[Verb]builder{
	VerbClickButton: func(a Args) (*template.Template, interface{}, error) {
		sel := a.Selector
		if sel == "" {
			sel = "button"
		}
		return clickButtonScript, struct {
			Selector string
			GuardMs  int
		}{sel, ButtonGuardMs}, nil
	},
	VerbClickBySelector: func(a Args) (*template.Template, interface{}, error) {
		if err := needArg(VerbClickBySelector, "selector", a.Selector, `{"selector": "#submit"}`); err != nil {
			return nil, nil, err
		}
		return clickBySelectorScript, struct {
			Selector string
			Key      string
			GuardMs  int
		}{a.Selector, "__devprobe_selector_click_" + shortHash(a.Selector), SelectorGuardMs}, nil
	},
	VerbClickByText: func(a Args) (*template.Template, interface{}, error) {
		if err := needArg(VerbClickByText, "text", a.Text, `{"text": "Save"}`); err != nil {
			return nil, nil, err
		}
		return clickByTextScript, struct {
			Text    string
			GuardMs int
		}{a.Text, TextGuardMs}, nil
	},
	VerbFillInput: func(a Args) (*template.Template, interface{}, error) {
		value := a.Value
		if value == "" {
			value = a.Text
		}
		if err := needArg(VerbFillInput, "value", value, `{"value": "hello", "selector": "#name"}`); err != nil {
			return nil, nil, err
		}
		hint := a.Placeholder
		if hint == "" && a.Value != "" {
			hint = a.Text
		}
		if a.Selector == "" && hint == "" {
			return nil, nil, fmt.Errorf("%w: %s needs selector or placeholder", ErrMissingArgument, VerbFillInput)
		}
		return fillInputScript, struct{ Selector, Hint, Value string }{a.Selector, hint, value}, nil
	},
	VerbSelectOption: func(a Args) (*template.Template, interface{}, error) {
		if a.Value == "" && a.Text == "" {
			return nil, nil, fmt.Errorf("%w: %s needs value or text", ErrMissingArgument, VerbSelectOption)
		}
		return selectOptionScript, struct{ Selector, Value, Text string }{a.Selector, a.Value, a.Text}, nil
	},
	VerbKeyboardShortcut: func(a Args) (*template.Template, interface{}, error) {
		if err := needArg(VerbKeyboardShortcut, "text", a.Text, `{"text": "Ctrl+S"}`); err != nil {
			return nil, nil, err
		}
		sc, err := ParseShortcut(a.Text)
		if err != nil {
			return nil, nil, err
		}
		return keyboardScript, struct {
			Shortcut
			Label string
		}{sc, a.Text}, nil
	},
	VerbNavigateToHash: func(a Args) (*template.Template, interface{}, error) {
		hash, err := CleanHash(a.Text)
		if err != nil {
			return nil, nil, err
		}
		return navigateHashScript, struct{ Hash string }{hash}, nil
	},
	VerbPageStructure:   static(pageStructureScript),
	VerbFindElements:    static(findElementsScript),
	VerbDebugElements:   static(debugElementsScript),
	VerbVerifyFormState: static(verifyFormStateScript),
	VerbConsoleLog: func(a Args) (*template.Template, interface{}, error) {
		msg := a.Message
		if msg == "" {
			msg = "Hello from devprobe!"
		}
		return consoleLogScript, struct{ Message string }{msg}, nil
	},
	VerbEval: func(a Args) (*template.Template, interface{}, error) {
		if err := needArg(VerbEval, "code", a.Code, `{"code": "document.title"}`); err != nil {
			return nil, nil, err
		}
		return evalScript, evalData(a.Code), nil
	},
}

func static(t *template.Template) builder {
	return func(Args) (*template.Template, interface{}, error) { return t, struct{}{}, nil }
}

// CleanHash validates a hash route and adds the leading '#'.
func CleanHash(hash string) (string, error) {
	if err := needArg(VerbNavigateToHash, "text", hash, `{"text": "#/settings"}`); err != nil {
		return "", err
	}
	if ContainsInjection(hash) || strings.Contains(hash, "://") {
		return "", fmt.Errorf("%w: invalid hash: contains dangerous content", ErrRejectedInput)
	}
	if !strings.HasPrefix(hash, "#") {
		hash = "#" + hash
	}
	return hash, nil
}

// shortHash is the first 10 characters of the base64 form of s.
func shortHash(s string) string {
	h := base64.StdEncoding.EncodeToString([]byte(s))
	if len(h) > 10 {
		h = h[:10]
	}
	return h
}

type evalTemplateData struct {
	Hash           string
	StateTest      bool
	Body           string
	OptionalAccess bool
	ClickProbe     bool
}

func evalData(code string) evalTemplateData {
	d := evalTemplateData{Hash: shortHash(code)}
	for _, m := range stateTestMarkers {
		if strings.Contains(code, m) {
			d.StateTest = true
			break
		}
	}

	trimmed := strings.TrimSpace(code)
	switch {
	case strings.HasPrefix(trimmed, "() =>") || strings.HasPrefix(trimmed, "function"):
		d.Body = "result = (" + code + ")();"
	case strings.Contains(code, "return"):
		d.Body = "result = (function() { " + code + " })();"
	case strings.Contains(code, ";"):
		d.Body = "result = (function() { " + code + "; return \"executed\"; })();"
	default:
		d.Body = "result = (function() { return (" + code + "); })();"
	}

	d.OptionalAccess = strings.Contains(code, "window.") || strings.Contains(code, "document.") || strings.Contains(code, "||")
	d.ClickProbe = strings.Contains(code, "click") || strings.Contains(code, "querySelector")
	return d
}

// Translate renders the script for verb. Arguments carrying injection
// markers are rejected before anything is rendered.
func Translate(verb Verb, args Args) (string, error) {
	if _, ok := verbKinds[verb]; !ok {
		return "", fmt.Errorf("unknown command %q (known: %s)", verb, strings.Join(KnownVerbs(), ", "))
	}
	if err := CheckArgs(args); err != nil {
		logging.Get(logging.CategoryTranslate).Warn("%s rejected: %v", verb, err)
		return "", err
	}

	if expr, ok := constantScripts[verb]; ok {
		return expr, nil
	}
	if verb.IsWait() {
		return probeScript(verb, args)
	}

	tmpl, data, err := builders[verb](args)
	if err != nil {
		return "", err
	}
	script, err := render(tmpl, data)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", verb, err)
	}
	logging.Get(logging.CategoryTranslate).Debug("translated %s (%d bytes)", verb, len(script))
	return script, nil
}

func probeScript(verb Verb, args Args) (string, error) {
	switch verb {
	case VerbWaitForSelector:
		if err := needArg(verb, "selector", args.Selector, `{"selector": "#ready"}`); err != nil {
			return "", err
		}
		return "document.querySelector(" + jsString(args.Selector) + ") !== null", nil
	case VerbWaitForURLIncludes:
		if err := needArg(verb, "text", args.Text, `{"text": "/dashboard"}`); err != nil {
			return "", err
		}
		return "window.location.href", nil
	default:
		return "performance.getEntriesByType('resource').length", nil
	}
}

// Interpret classifies the evaluation result of a script produced by
// Translate for verb.
func Interpret(verb Verb, res *proto.RuntimeEvaluateResult) Outcome {
	if res == nil || res.Result == nil {
		return Failure(KindEvaluation, "empty evaluation result", "")
	}
	if res.ExceptionDetails != nil {
		return FromError(cdp.Exception(res))
	}

	obj := res.Result
	switch verbKinds[verb] {
	case kindEnvelope:
		return fromEnvelope(obj)
	case kindProbe:
		return Success(obj.Value.Val(), "")
	default:
		if obj.Type == proto.RuntimeRemoteObjectTypeUndefined {
			return Failure("", "Command executed but returned undefined - the element may not exist", "")
		}
		if obj.Subtype == proto.RuntimeRemoteObjectSubtypeNull || (obj.Type == proto.RuntimeRemoteObjectTypeObject && obj.Value.Nil()) {
			return Failure("", "Command executed but returned null - the element may not exist", "")
		}
		return Success(obj.Value.Val(), "")
	}
}

func fromEnvelope(obj *proto.RuntimeRemoteObject) Outcome {
	env := obj.Value.Map()
	status, ok := env["status"]
	if !ok {
		return Failure("", fmt.Sprintf("unexpected result: %s", describeRemote(obj)), "")
	}

	message := str(env["message"])
	switch Status(status.Str()) {
	case StatusSuccess:
		return Success(env["value"].Val(), message)
	case StatusPrevented:
		return Prevented(message)
	case StatusFailure:
		return Failure(str(env["kind"]), message, str(env["stack"]))
	default:
		return Failure("", fmt.Sprintf("unexpected status %q", status.Str()), message)
	}
}

func str(j gson.JSON) string {
	if j.Nil() {
		return ""
	}
	return j.Str()
}

func describeRemote(obj *proto.RuntimeRemoteObject) string {
	if obj.Description != "" {
		return obj.Description
	}
	if !obj.Value.Nil() {
		return obj.Value.JSON("", "")
	}
	return string(obj.Type)
}
