package translate

import (
	"errors"
	"strings"
	"testing"

	"devprobe/internal/cdp"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ysmood/gson"
)

func TestParseVerb(t *testing.T) {
	v, err := ParseVerb("  Click_By_Text ")
	require.NoError(t, err)
	assert.Equal(t, VerbClickByText, v)

	_, err = ParseVerb("dance")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
	assert.Contains(t, err.Error(), "get_title")
}

func TestKnownVerbsSorted(t *testing.T) {
	verbs := KnownVerbs()
	assert.Len(t, verbs, len(verbKinds))
	assert.IsIncreasing(t, verbs)
}

func TestTranslateConstants(t *testing.T) {
	for verb, expr := range map[Verb]string{
		VerbGetTitle:    "document.title",
		VerbGetURL:      "window.location.href",
		VerbGetBodyText: "document.body.innerText.substring(0, 500)",
	} {
		script, err := Translate(verb, Args{})
		require.NoError(t, err)
		assert.Equal(t, expr, script)
	}
}

func TestTranslateRejectsInjection(t *testing.T) {
	tests := []struct {
		name string
		verb Verb
		args Args
	}{
		{"javascript scheme in selector", VerbClickBySelector, Args{Selector: "javascript:alert(1)"}},
		{"script tag in text", VerbClickByText, Args{Text: "<SCRIPT>alert(1)</script>"}},
		{"script tag in value", VerbFillInput, Args{Selector: "#a", Value: "<script>"}},
		{"url in hash", VerbNavigateToHash, Args{Text: "https://evil.example/#x"}},
		{"script tag in eval", VerbEval, Args{Code: "document.body.innerHTML = '<script>x</script>'"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Translate(tt.verb, tt.args)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrRejectedInput), "got %v", err)
			assert.Equal(t, KindTranslation, FromError(err).Kind)
		})
	}
}

func TestTranslateMissingArguments(t *testing.T) {
	tests := []struct {
		verb Verb
		args Args
	}{
		{VerbClickBySelector, Args{}},
		{VerbClickByText, Args{}},
		{VerbFillInput, Args{Selector: "#a"}},
		{VerbFillInput, Args{Value: "x"}},
		{VerbSelectOption, Args{Selector: "#s"}},
		{VerbKeyboardShortcut, Args{}},
		{VerbNavigateToHash, Args{}},
		{VerbWaitForSelector, Args{}},
		{VerbWaitForURLIncludes, Args{}},
		{VerbEval, Args{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.verb), func(t *testing.T) {
			_, err := Translate(tt.verb, tt.args)
			assert.True(t, errors.Is(err, ErrMissingArgument), "got %v", err)
		})
	}
}

func TestTranslateUnknownVerb(t *testing.T) {
	_, err := Translate(Verb("fly"), Args{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestTranslateQuotesArguments(t *testing.T) {
	script, err := Translate(VerbClickBySelector, Args{Selector: `a[title="it's"]`})
	require.NoError(t, err)
	assert.Contains(t, script, `document.querySelector("a[title=\"it's\"]")`)
	assert.Contains(t, script, "__devprobe_selector_click_"+shortHash(`a[title="it's"]`))
}

func TestCleanHash(t *testing.T) {
	h, err := CleanHash("/settings")
	require.NoError(t, err)
	assert.Equal(t, "#/settings", h)

	h, err = CleanHash("#/about")
	require.NoError(t, err)
	assert.Equal(t, "#/about", h)
}

func TestEvalData(t *testing.T) {
	tests := []struct {
		code     string
		body     string
		optional bool
		click    bool
		state    bool
	}{
		{"1+1", "result = (function() { return (1+1); })();", false, false, false},
		{"return 5", "result = (function() { return 5 })();", false, false, false},
		{"var a = 1; a++", "result = (function() { var a = 1; a++; return \"executed\"; })();", false, false, false},
		{"() => 3", "result = (() => 3)();", false, false, false},
		{"document.querySelector('#x')", "result = (function() { return (document.querySelector('#x')); })();", true, true, false},
		{"window.testState", "result = (function() { return (window.testState); })();", true, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			d := evalData(tt.code)
			assert.Equal(t, tt.body, d.Body)
			assert.Equal(t, tt.optional, d.OptionalAccess)
			assert.Equal(t, tt.click, d.ClickProbe)
			assert.Equal(t, tt.state, d.StateTest)
			assert.Equal(t, shortHash(tt.code), d.Hash)
		})
	}
}

func TestInterpretConstant(t *testing.T) {
	undefined := &proto.RuntimeEvaluateResult{Result: &proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeUndefined}}
	out := Interpret(VerbGetTitle, undefined)
	assert.True(t, out.Failed())
	assert.Contains(t, out.Message, "undefined")

	null := &proto.RuntimeEvaluateResult{Result: &proto.RuntimeRemoteObject{
		Type: proto.RuntimeRemoteObjectTypeObject, Subtype: proto.RuntimeRemoteObjectSubtypeNull,
	}}
	out = Interpret(VerbGetURL, null)
	assert.True(t, out.Failed())
	assert.Contains(t, out.Message, "null")

	empty := &proto.RuntimeEvaluateResult{Result: &proto.RuntimeRemoteObject{
		Type: proto.RuntimeRemoteObjectTypeString, Value: gson.New(""),
	}}
	out = Interpret(VerbGetTitle, empty)
	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, "", out.Value)
}

func TestInterpretException(t *testing.T) {
	res := &proto.RuntimeEvaluateResult{
		Result: &proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeObject},
		ExceptionDetails: &proto.RuntimeExceptionDetails{
			Text: "Uncaught",
			Exception: &proto.RuntimeRemoteObject{
				Description: "ReferenceError: nope is not defined\n    at <anonymous>:1:1",
			},
		},
	}
	out := Interpret(VerbGetTitle, res)
	assert.Equal(t, KindEvaluation, out.Kind)
	assert.Equal(t, "JavaScript error: ReferenceError: nope is not defined", out.Message)
	assert.Equal(t, "    at <anonymous>:1:1", out.Detail)

	var ee *cdp.EvaluationError
	require.True(t, errors.As(out.Err(), &ee))
	assert.Equal(t, out.Detail, ee.Stack)
}

func TestInterpretEnvelopeWithoutStatus(t *testing.T) {
	res := &proto.RuntimeEvaluateResult{Result: &proto.RuntimeRemoteObject{
		Type: proto.RuntimeRemoteObjectTypeNumber, Value: gson.New(3), Description: "3",
	}}
	out := Interpret(VerbFindElements, res)
	assert.True(t, out.Failed())
	assert.Equal(t, "unexpected result: 3", out.Message)
}

func TestFromError(t *testing.T) {
	assert.Equal(t, KindTimeout, FromError(&cdp.TimeoutError{Method: "Runtime.evaluate"}).Kind)
	assert.Equal(t, KindProtocol, FromError(&cdp.ProtocolError{Method: "X", Code: -32000, Message: "boom"}).Kind)
	assert.Equal(t, KindConnection, FromError(&cdp.ConnectionError{Endpoint: "ws://x", Err: errors.New("refused")}).Kind)
	assert.Equal(t, KindStep, FromError(errors.New("other")).Kind)

	assert.NoError(t, Prevented("again").Err())
	assert.NoError(t, Success(1, "").Err())
}

func TestPageConstants(t *testing.T) {
	p := newPage(t)
	out := p.run(VerbGetTitle, Args{})
	assert.Equal(t, Success("Fixture", ""), out)

	out = p.run(VerbGetBodyText, Args{})
	assert.Equal(t, "hello world", out.Value)
}

func TestPageEval(t *testing.T) {
	p := newPage(t)

	out := p.run(VerbEval, Args{Code: "1+1"})
	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, float64(2), out.Value)

	out = p.run(VerbEval, Args{Code: "undefinedVar.x"})
	assert.Equal(t, StatusFailure, out.Status)
	assert.Equal(t, KindEvaluation, out.Kind)
	assert.True(t, strings.HasPrefix(out.Message, "JavaScript error: "), out.Message)
	assert.Contains(t, out.Message, "undefinedVar")

	out = p.run(VerbEval, Args{Code: "null"})
	assert.True(t, out.Failed())
	assert.Contains(t, out.Message, "null")

	out = p.run(VerbEval, Args{Code: "var x = 1; x = x + 1"})
	assert.Equal(t, Success("executed", ""), out)
}

func TestPageEvalInFlightGuard(t *testing.T) {
	p := newPage(t)

	// Mark the code as in flight the way a still-running evaluation would.
	p.js("window.__devprobeExecuting = {'" + shortHash("2*3") + "': true}")
	out := p.run(VerbEval, Args{Code: "2*3"})
	assert.True(t, out.Failed())
	assert.Equal(t, "Code already executing", out.Message)

	p.js("window.__devprobeExecuting = {}")
	out = p.run(VerbEval, Args{Code: "2*3"})
	assert.Equal(t, float64(6), out.Value)

	// Released after completion, including the failure path.
	p.run(VerbEval, Args{Code: "missing.y"})
	p.flush()
	assert.True(t, p.js("Object.keys(window.__devprobeExecuting).length === 0").ToBoolean())
}

func TestPageEvalFalseResult(t *testing.T) {
	p := newPage(t)

	// Query code that yields a value is a success, not a failed action.
	out := p.run(VerbEval, Args{Code: "document.querySelectorAll('x').length + 1"})
	assert.Equal(t, Success(float64(1), ""), out)

	out = p.run(VerbEval, Args{Code: "document.querySelector('#none') !== null"})
	assert.True(t, out.Failed())

	out = p.run(VerbEval, Args{Code: "1 > 2"})
	assert.Equal(t, Success(false, ""), out)

	out = p.run(VerbEval, Args{Code: "(function() { var clicked = false; return clicked; })()"})
	assert.True(t, out.Failed())
	assert.Contains(t, out.Message, "returned false")
}

func TestPageEvalStateProbeBypassesGuard(t *testing.T) {
	p := newPage(t)
	code := "window.testState || 'unset'"
	p.js("window.__devprobeExecuting = {'" + shortHash(code) + "': true}")
	out := p.run(VerbEval, Args{Code: code})
	assert.Equal(t, Success("unset", ""), out)
}

func TestPageClickBySelectorGuard(t *testing.T) {
	p := newPage(t)
	p.js("document.elements['#save'] = makeElement('BUTTON', {id: 'save', textContent: 'Save'})")

	out := p.run(VerbClickBySelector, Args{Selector: "#save"})
	assert.Equal(t, StatusSuccess, out.Status)
	assert.Contains(t, out.Message, `BUTTON - "Save"`)

	out = p.run(VerbClickBySelector, Args{Selector: "#save"})
	assert.Equal(t, StatusPrevented, out.Status)
	assert.Equal(t, int64(1), p.js("document.elements['#save'].clicks").ToInteger())

	out = p.run(VerbClickBySelector, Args{Selector: "#missing"})
	assert.True(t, out.Failed())
	assert.Contains(t, out.Message, "Element not found")
}

func TestPageClickBySelectorHidden(t *testing.T) {
	p := newPage(t)
	p.js("document.elements['#ghost'] = makeElement('DIV', {width: 0})")
	out := p.run(VerbClickBySelector, Args{Selector: "#ghost"})
	assert.True(t, out.Failed())
	assert.Contains(t, out.Message, "not visible")
}

func TestPageClickButton(t *testing.T) {
	p := newPage(t)
	p.js("document.elements['button'] = makeElement('BUTTON', {id: 'ok', textContent: 'OK'})")

	out := p.run(VerbClickButton, Args{})
	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, "none", p.js("document.elements['button'].style.pointerEvents").String())

	p.flush()
	assert.Equal(t, "", p.js("document.elements['button'].style.pointerEvents").String())

	out = p.run(VerbClickButton, Args{})
	assert.Equal(t, StatusPrevented, out.Status)
}

func TestPageClickByText(t *testing.T) {
	p := newPage(t)
	p.js(`
document.elements['#a'] = makeElement('BUTTON', {textContent: 'Save draft'});
document.elements['#b'] = makeElement('BUTTON', {textContent: 'Save'});
`)
	out := p.run(VerbClickByText, Args{Text: "Save"})
	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, int64(1), p.js("document.elements['#b'].clicks").ToInteger())
	assert.Equal(t, int64(0), p.js("document.elements['#a'].clicks").ToInteger())

	out = p.run(VerbClickByText, Args{Text: "draft"})
	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, int64(1), p.js("document.elements['#a'].clicks").ToInteger())
}

func TestPageFillInput(t *testing.T) {
	p := newPage(t)
	p.js("document.elements['#name'] = makeElement('INPUT', {name: 'name', placeholder: 'Your name'})")

	out := p.run(VerbFillInput, Args{Placeholder: "your name", Value: "Ada"})
	assert.Equal(t, Success("Ada", "Filled input name"), out)
	assert.Equal(t, "input,change", p.js("dispatched.map(function(e) { return e.type; }).join(',')").String())

	p.js("document.elements['#locked'] = makeElement('INPUT', {readOnly: true})")
	out = p.run(VerbFillInput, Args{Selector: "#locked", Value: "x"})
	assert.True(t, out.Failed())
}

func TestPageSelectOption(t *testing.T) {
	p := newPage(t)
	p.js("document.elements['select'] = makeElement('SELECT', {options: [{value: 'a', text: 'Alpha'}, {value: 'b', text: 'Beta'}]})")

	out := p.run(VerbSelectOption, Args{Text: "Beta"})
	assert.Equal(t, Success("b", "Selected option: b"), out)

	out = p.run(VerbSelectOption, Args{Value: "z"})
	assert.True(t, out.Failed())
	assert.Contains(t, out.Message, "available: a, b")
}

func TestPageKeyboardShortcut(t *testing.T) {
	p := newPage(t)
	out := p.run(VerbKeyboardShortcut, Args{Text: "Ctrl+Shift+N"})
	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, "Keyboard shortcut sent: Ctrl+Shift+N", out.Message)

	events := p.js(`JSON.stringify(dispatched.map(function(e) {
  return [e.type, e.key, e.code, e.ctrlKey, e.shiftKey, e.altKey];
}))`).String()
	assert.Equal(t, `[["keydown","N","KeyN",true,true,false],["keyup","N","KeyN",true,true,false]]`, events)
}

func TestPageNavigateToHash(t *testing.T) {
	p := newPage(t)
	out := p.run(VerbNavigateToHash, Args{Text: "/settings"})
	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, "#/settings", p.js("location.hash").String())
	assert.Equal(t, "hashchange", p.js("dispatched[0].type").String())
}

func TestPageConsoleLog(t *testing.T) {
	p := newPage(t)
	out := p.run(VerbConsoleLog, Args{})
	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, "devprobe: Hello from devprobe!", p.js("logged[0]").String())
}

func TestPageWaitProbes(t *testing.T) {
	p := newPage(t)
	out := p.run(VerbWaitForSelector, Args{Selector: "#late"})
	assert.Equal(t, false, out.Value)

	p.js("document.elements['#late'] = makeElement('DIV', {})")
	out = p.run(VerbWaitForSelector, Args{Selector: "#late"})
	assert.Equal(t, true, out.Value)

	p.js("__resources = 3")
	out = p.run(VerbWaitForIdle, Args{})
	assert.Equal(t, float64(3), out.Value)
}
