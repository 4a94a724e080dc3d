package translate

import (
	"encoding/json"
	"strings"
	"text/template"
)

// Every interactive script is an IIFE that returns an envelope
// {status, message, value[, stack, kind]} by value.
const helpers = `
  function keyOf(s) {
    try { return btoa(s).slice(0, 10); } catch (e) { return btoa(unescape(encodeURIComponent(s))).slice(0, 10); }
  }
  function visible(el) {
    var r = el.getBoundingClientRect();
    return r.width > 0 && r.height > 0;
  }
  function guard(key, windowMs) {
    var now = Date.now();
    if (window[key] && now - window[key] < windowMs) return false;
    window[key] = now;
    return true;
  }
  function click(el) {
    if (el.focus) el.focus();
    el.dispatchEvent(new MouseEvent('click', { bubbles: true, cancelable: true, view: window }));
  }
  function describe(el) {
    var text = (el.textContent || '').trim();
    return el.tagName + (text ? ' - "' + text.substring(0, 50) + '"' : '');
  }
  function setValue(el, value) {
    var proto = Object.getPrototypeOf(el);
    var desc = proto && Object.getOwnPropertyDescriptor(proto, 'value');
    if (desc && desc.set) { desc.set.call(el, value); } else { el.value = value; }
    el.dispatchEvent(new Event('input', { bubbles: true }));
    el.dispatchEvent(new Event('change', { bubbles: true }));
  }
  function done(status, message, value) {
    return { status: status, message: message, value: value };
  }
`

var scriptFuncs = template.FuncMap{
	"quote":   jsString,
	"helpers": func() string { return helpers },
}

// jsString renders s as a JavaScript string literal. JSON string syntax is a
// subset of JS, and encoding/json escapes <, >, &, U+2028 and U+2029.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func mustScript(name, body string) *template.Template {
	return template.Must(template.New(name).Funcs(scriptFuncs).Parse(body))
}

var clickButtonScript = mustScript("click_button", `(function() {
  {{helpers}}
  try {
    var el = document.querySelector({{quote .Selector}});
    if (!el || el.disabled) return done('failure', 'Button not found or disabled: ' + {{quote .Selector}});
    if (!guard('__devprobe_click_' + keyOf(el.id || el.className || 'button'), {{.GuardMs}})) {
      return done('prevented', 'Button click prevented - too soon after previous click');
    }
    el.style.pointerEvents = 'none';
    click(el);
    setTimeout(function() { el.style.pointerEvents = ''; }, 1000);
    return done('success', 'Button clicked: ' + describe(el));
  } catch (e) {
    return done('failure', 'Error clicking button: ' + e.message);
  }
})()`)

var clickBySelectorScript = mustScript("click_by_selector", `(function() {
  {{helpers}}
  try {
    var el = document.querySelector({{quote .Selector}});
    if (!el) return done('failure', 'Element not found: ' + {{quote .Selector}});
    if (!visible(el)) return done('failure', 'Element not visible: ' + {{quote .Selector}});
    if (!guard({{quote .Key}}, {{.GuardMs}})) {
      return done('prevented', 'Click prevented - too soon after previous click');
    }
    click(el);
    return done('success', 'Successfully clicked element: ' + describe(el));
  } catch (e) {
    return done('failure', 'Error clicking element: ' + e.message);
  }
})()`)

var clickByTextScript = mustScript("click_by_text", `(function() {
  {{helpers}}
  try {
    var wanted = {{quote .Text}};
    var lower = wanted.toLowerCase();
    var nodes = Array.prototype.slice.call(document.querySelectorAll(
      'button, a, [role="button"], input[type="submit"], input[type="button"], [onclick]'));
    function label(el) {
      return (el.innerText || el.textContent || el.value || el.getAttribute('aria-label') || '').trim();
    }
    var usable = nodes.filter(function(el) { return !el.disabled && visible(el); });
    var el = usable.filter(function(el) { return label(el) === wanted; })[0] ||
      usable.filter(function(el) { return label(el).toLowerCase().indexOf(lower) !== -1; })[0];
    if (!el) return done('failure', 'No clickable element with text: ' + wanted);
    if (!guard('__devprobe_text_click_' + keyOf(wanted), {{.GuardMs}})) {
      return done('prevented', 'Click prevented - too soon after previous click');
    }
    click(el);
    return done('success', 'Clicked element: ' + describe(el));
  } catch (e) {
    return done('failure', 'Error clicking by text: ' + e.message);
  }
})()`)

var fillInputScript = mustScript("fill_input", `(function() {
  {{helpers}}
  try {
    var selector = {{quote .Selector}};
    var hint = {{quote .Hint}}.toLowerCase();
    var el = selector ? document.querySelector(selector) : null;
    if (!el && hint) {
      var fields = Array.prototype.slice.call(document.querySelectorAll('input, textarea'));
      el = fields.filter(function(f) {
        return [f.placeholder, f.name, f.getAttribute('aria-label')].some(function(a) {
          return a && a.toLowerCase().indexOf(hint) !== -1;
        });
      })[0] || null;
      if (!el) {
        var labels = Array.prototype.slice.call(document.querySelectorAll('label'));
        for (var i = 0; i < labels.length && !el; i++) {
          if ((labels[i].textContent || '').toLowerCase().indexOf(hint) !== -1) {
            el = labels[i].control || (labels[i].htmlFor ? document.getElementById(labels[i].htmlFor) : null);
          }
        }
      }
    }
    if (!el) return done('failure', 'Input not found: ' + (selector || hint));
    if (el.disabled || el.readOnly) return done('failure', 'Input is disabled or read-only: ' + (selector || hint));
    if (el.focus) el.focus();
    setValue(el, {{quote .Value}});
    return done('success', 'Filled input ' + (el.name || el.id || el.tagName), el.value);
  } catch (e) {
    return done('failure', 'Error filling input: ' + e.message);
  }
})()`)

var selectOptionScript = mustScript("select_option", `(function() {
  {{helpers}}
  try {
    var selector = {{quote .Selector}};
    var value = {{quote .Value}};
    var text = {{quote .Text}};
    var el = document.querySelector(selector || 'select');
    if (!el || el.tagName !== 'SELECT') return done('failure', 'Select not found: ' + (selector || 'select'));
    var options = Array.prototype.slice.call(el.options);
    var match = options.filter(function(o) {
      return (value && o.value === value) || (text && (o.text || o.textContent || '').trim() === text);
    })[0];
    if (!match) {
      return done('failure', 'Option not found: ' + (value || text) + ' (available: ' +
        options.map(function(o) { return o.value; }).join(', ') + ')');
    }
    setValue(el, match.value);
    return done('success', 'Selected option: ' + match.value, match.value);
  } catch (e) {
    return done('failure', 'Error selecting option: ' + e.message);
  }
})()`)

var keyboardScript = mustScript("send_keyboard_shortcut", `(function() {
  {{helpers}}
  try {
    var init = {
      key: {{quote .Key}}, code: {{quote .Code}},
      ctrlKey: {{.Ctrl}}, shiftKey: {{.Shift}}, altKey: {{.Alt}}, metaKey: {{.Meta}},
      bubbles: true, cancelable: true
    };
    var target = document.activeElement || document.body || document;
    target.dispatchEvent(new KeyboardEvent('keydown', init));
    target.dispatchEvent(new KeyboardEvent('keyup', init));
    return done('success', 'Keyboard shortcut sent: ' + {{quote .Label}});
  } catch (e) {
    return done('failure', 'Error sending shortcut: ' + e.message);
  }
})()`)

var navigateHashScript = mustScript("navigate_to_hash", `(function() {
  {{helpers}}
  try {
    var hash = {{quote .Hash}};
    if (window.history && window.history.pushState) {
      var oldURL = window.location.href;
      window.history.pushState({}, '', window.location.pathname + window.location.search + hash);
      window.dispatchEvent(new HashChangeEvent('hashchange', { newURL: window.location.href, oldURL: oldURL }));
      return done('success', 'Navigated to hash: ' + hash);
    }
    window.location.hash = hash;
    return done('success', 'Navigated to hash (fallback): ' + hash);
  } catch (e) {
    return done('failure', 'Error navigating: ' + e.message);
  }
})()`)

var pageStructureScript = mustScript("get_page_structure", `(function() {
  {{helpers}}
  try {
    function list(sel, map) {
      return Array.prototype.slice.call(document.querySelectorAll(sel)).filter(visible).slice(0, 20).map(map);
    }
    var structure = {
      title: document.title,
      url: window.location.href,
      buttons: list('button, [role="button"], input[type="submit"]', function(b) {
        return { text: (b.textContent || b.value || '').trim().substring(0, 50), id: b.id, disabled: !!b.disabled };
      }),
      inputs: list('input, textarea', function(i) {
        return { type: i.type, name: i.name, id: i.id, placeholder: i.placeholder };
      }),
      selects: list('select', function(s) {
        return { name: s.name, id: s.id, options: Array.prototype.slice.call(s.options).map(function(o) { return o.value; }) };
      }),
      links: list('a[href]', function(a) {
        return { text: (a.textContent || '').trim().substring(0, 50), href: a.getAttribute('href') };
      })
    };
    return done('success', 'Page structure', structure);
  } catch (e) {
    return done('failure', 'Error reading page structure: ' + e.message);
  }
})()`)

var findElementsScript = mustScript("find_elements", `(function() {
  {{helpers}}
  try {
    var nodes = Array.prototype.slice.call(document.querySelectorAll(
      'button, a[href], input, textarea, select, [role="button"], [onclick]'));
    var found = nodes.filter(visible).slice(0, 50).map(function(el) {
      var hint = el.id ? '#' + el.id : (el.name ? el.tagName.toLowerCase() + '[name="' + el.name + '"]' : el.tagName.toLowerCase());
      return {
        tag: el.tagName,
        text: (el.textContent || el.value || '').trim().substring(0, 50),
        selector: hint,
        placeholder: el.placeholder || undefined,
        disabled: !!el.disabled
      };
    });
    return done('success', found.length + ' interactive elements', found);
  } catch (e) {
    return done('failure', 'Error finding elements: ' + e.message);
  }
})()`)

var debugElementsScript = mustScript("debug_elements", `(function() {
  {{helpers}}
  try {
    var buttons = Array.prototype.slice.call(document.querySelectorAll('button')).map(function(b) {
      return { text: (b.textContent || '').trim(), id: b.id, className: b.className, disabled: !!b.disabled,
        visible: visible(b), type: b.type || 'button' };
    });
    var inputs = Array.prototype.slice.call(document.querySelectorAll('input, textarea, select')).map(function(i) {
      return { name: i.name, placeholder: i.placeholder, type: i.type, id: i.id, value: i.value,
        visible: visible(i), enabled: !i.disabled };
    });
    return done('success', 'Element debug info', {
      buttons: buttons.filter(function(b) { return b.visible; }).slice(0, 10),
      inputs: inputs.filter(function(i) { return i.visible; }).slice(0, 10),
      url: window.location.href,
      title: document.title
    });
  } catch (e) {
    return done('failure', 'Error debugging elements: ' + e.message);
  }
})()`)

var verifyFormStateScript = mustScript("verify_form_state", `(function() {
  {{helpers}}
  try {
    var forms = Array.prototype.slice.call(document.querySelectorAll('form')).map(function(form) {
      var inputs = Array.prototype.slice.call(form.querySelectorAll('input, textarea, select')).map(function(i) {
        return { name: i.name, type: i.type, value: i.value, placeholder: i.placeholder, required: !!i.required,
          valid: i.validity ? i.validity.valid : undefined };
      });
      return { id: form.id, action: form.action, method: form.method, inputs: inputs,
        isValid: form.checkValidity ? form.checkValidity() : 'unknown' };
    });
    return done('success', forms.length + ' forms', { forms: forms, formCount: forms.length });
  } catch (e) {
    return done('failure', 'Error verifying forms: ' + e.message);
  }
})()`)

var consoleLogScript = mustScript("console_log", `(function() {
  {{helpers}}
  try {
    console.log('devprobe:', {{quote .Message}});
    return done('success', 'Console message sent');
  } catch (e) {
    return done('failure', 'Error logging: ' + e.message);
  }
})()`)

// evalScript wraps caller code. Identical in-flight code fails unless it is
// a state probe; the in-flight mark clears 1000ms after completion. A false
// result is only a failure for click-like code.
var evalScript = mustScript("eval", `(function() {
  var codeHash = {{quote .Hash}};
  var isStateTest = {{.StateTest}};
  if (!isStateTest && window.__devprobeExecuting && window.__devprobeExecuting[codeHash]) {
    return { status: 'failure', message: 'Code already executing' };
  }
  window.__devprobeExecuting = window.__devprobeExecuting || {};
  if (!isStateTest) window.__devprobeExecuting[codeHash] = true;
  function release() {
    setTimeout(function() {
      if (!isStateTest && window.__devprobeExecuting) delete window.__devprobeExecuting[codeHash];
    }, 1000);
  }
  try {
    var result;
    {{.Body}}
    release();
    if (result === undefined && !{{.OptionalAccess}}) {
      return { status: 'failure', message: 'Command returned undefined - element may not exist or action failed' };
    }
    if (result === null) {
      return { status: 'failure', message: 'Command returned null - element may not exist' };
    }
    if (result === false && {{.ClickProbe}}) {
      return { status: 'failure', message: 'Command returned false - action likely failed', value: false };
    }
    return { status: 'success', value: result };
  } catch (error) {
    release();
    return { status: 'failure', kind: 'evaluation', message: 'JavaScript error: ' + error.message, stack: error.stack };
  }
})()`)

func render(t *template.Template, data interface{}) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
