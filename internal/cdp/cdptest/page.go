package cdptest

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"

	"github.com/dop251/goja"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// domFixture is a minimal DOM: enough surface for generated scripts to run
// against plain objects. Elements live in document.elements keyed by the
// exact selector that finds them.
const domFixture = `
var window = this;
var __timers = [];
function setTimeout(fn, ms) { __timers.push(fn); return __timers.length; }
function __flush() { var t = __timers; __timers = []; t.forEach(function(fn) { fn(); }); }
function __typeOf(v) { return typeof v; }

function Event(type, init) {
  init = init || {};
  this.type = type;
  for (var k in init) this[k] = init[k];
}
function MouseEvent(type, init) { Event.call(this, type, init); }
function KeyboardEvent(type, init) { Event.call(this, type, init); }
function HashChangeEvent(type, init) { Event.call(this, type, init); }

var dispatched = [];
function record(target, ev) { ev.target = target; dispatched.push(ev); return true; }

function makeElement(tag, props) {
  var el = { tagName: tag, id: '', className: '', name: '', textContent: '', value: '',
    disabled: false, readOnly: false, style: {}, width: 10, height: 10, clicks: 0 };
  for (var k in props) el[k] = props[k];
  el.getBoundingClientRect = function() { return { width: el.width, height: el.height }; };
  el.getAttribute = function(name) { return el[name] === undefined ? null : el[name]; };
  el.focus = function() { document.activeElement = el; };
  el.dispatchEvent = function(ev) {
    if (ev.type === 'click') el.clicks++;
    return record(el, ev);
  };
  return el;
}

var document = {
  title: 'Fixture',
  body: { innerText: 'hello world', dispatchEvent: function(ev) { return record(document.body, ev); } },
  activeElement: null,
  elements: {},
  querySelector: function(sel) { return document.elements[sel] || null; },
  querySelectorAll: function(sel) {
    var out = [];
    for (var k in document.elements) out.push(document.elements[k]);
    return out;
  },
  getElementById: function(id) { return document.elements['#' + id] || null; }
};
document.activeElement = document.body;

var location = { href: 'app://index.html#/', pathname: 'index.html', search: '', hash: '#/' };
var history = {
  pushState: function(state, title, url) {
    var hash = url.substring(url.indexOf('#'));
    location.hash = hash;
    location.href = 'app://index.html' + hash;
  }
};
function dispatchEvent(ev) { return record(window, ev); }

var __resources = 0;
var performance = { getEntriesByType: function(kind) { return new Array(__resources); } };
var logged = [];
var console = { log: function() { logged.push(Array.prototype.slice.call(arguments).join(' ')); } };
`

// Page is a fake page context that evaluates expressions with goja.
type Page struct {
	mu sync.Mutex
	vm *goja.Runtime
}

// NewPage builds a page with the fixture DOM loaded.
func NewPage(t testing.TB) *Page {
	t.Helper()
	vm := goja.New()
	if err := vm.Set("btoa", func(s string) string {
		return base64.StdEncoding.EncodeToString([]byte(s))
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := vm.RunString(domFixture); err != nil {
		t.Fatal(err)
	}
	return &Page{vm: vm}
}

// Run executes setup or inspection code against the page.
func (p *Page) Run(src string) (goja.Value, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vm.RunString(src)
}

// Flush runs pending timers.
func (p *Page) Flush() {
	_, _ = p.Run("__flush()")
}

// Evaluate mirrors Runtime.evaluate with returnByValue: thrown errors become
// exception details, everything else a by-value remote object.
func (p *Page) Evaluate(expression string) *proto.RuntimeEvaluateResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, err := p.vm.RunString(expression)
	if err != nil {
		desc := err.Error()
		if ex, ok := err.(*goja.Exception); ok {
			desc = ex.Value().String()
		}
		return &proto.RuntimeEvaluateResult{
			Result: &proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeObject, Subtype: proto.RuntimeRemoteObjectSubtypeError},
			ExceptionDetails: &proto.RuntimeExceptionDetails{
				Text:      "Uncaught",
				Exception: &proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeObject, Description: desc},
			},
		}
	}

	switch {
	case v == nil || goja.IsUndefined(v):
		return &proto.RuntimeEvaluateResult{Result: &proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeUndefined}}
	case goja.IsNull(v):
		return &proto.RuntimeEvaluateResult{Result: &proto.RuntimeRemoteObject{
			Type:    proto.RuntimeRemoteObjectTypeObject,
			Subtype: proto.RuntimeRemoteObjectSubtypeNull,
		}}
	}

	typeOf, _ := goja.AssertFunction(p.vm.Get("__typeOf"))
	kind, _ := typeOf(goja.Undefined(), v)
	stringify, _ := goja.AssertFunction(p.vm.Get("JSON").ToObject(p.vm).Get("stringify"))
	encoded, err := stringify(goja.Undefined(), v)
	value := gson.New(nil)
	if err == nil && !goja.IsUndefined(encoded) {
		value = gson.NewFrom(encoded.String())
	}
	return &proto.RuntimeEvaluateResult{Result: &proto.RuntimeRemoteObject{
		Type:  proto.RuntimeRemoteObjectType(kind.String()),
		Value: value,
	}}
}

// ServePage answers Runtime.enable and Runtime.evaluate from p.
func (s *Server) ServePage(p *Page) {
	s.HandleResult("Runtime.enable", nil)
	s.Handle("Runtime.evaluate", func(_ *Conn, params json.RawMessage) (interface{}, error) {
		var req struct {
			Expression string `json:"expression"`
		}
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, &Error{Code: -32602, Message: "Invalid parameters"}
		}
		return p.Evaluate(req.Expression), nil
	})
}
