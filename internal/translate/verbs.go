// Package translate turns named page verbs into self-contained script
// fragments for Runtime.evaluate, and turns evaluation results back into
// Outcomes.
package translate

import (
	"fmt"
	"sort"
	"strings"
)

// Verb names a high-level page operation.
type Verb string

const (
	// Constant expressions
	VerbGetTitle    Verb = "get_title"
	VerbGetURL      Verb = "get_url"
	VerbGetBodyText Verb = "get_body_text"

	// Wait probes, polled by the executor
	VerbWaitForSelector    Verb = "wait_for_selector"
	VerbWaitForURLIncludes Verb = "wait_for_url_includes"
	VerbWaitForIdle        Verb = "wait_for_idle"

	// Interactive
	VerbClickButton      Verb = "click_button"
	VerbClickByText      Verb = "click_by_text"
	VerbClickBySelector  Verb = "click_by_selector"
	VerbFillInput        Verb = "fill_input"
	VerbSelectOption     Verb = "select_option"
	VerbKeyboardShortcut Verb = "send_keyboard_shortcut"
	VerbNavigateToHash   Verb = "navigate_to_hash"

	// Inspection
	VerbPageStructure   Verb = "get_page_structure"
	VerbFindElements    Verb = "find_elements"
	VerbDebugElements   Verb = "debug_elements"
	VerbVerifyFormState Verb = "verify_form_state"
	VerbConsoleLog      Verb = "console_log"

	// Generic evaluation
	VerbEval Verb = "eval"
)

type verbKind int

const (
	kindConstant verbKind = iota
	kindProbe
	kindEnvelope
)

var verbKinds = map[Verb]verbKind{
	VerbGetTitle:           kindConstant,
	VerbGetURL:             kindConstant,
	VerbGetBodyText:        kindConstant,
	VerbWaitForSelector:    kindProbe,
	VerbWaitForURLIncludes: kindProbe,
	VerbWaitForIdle:        kindProbe,
	VerbClickButton:        kindEnvelope,
	VerbClickByText:        kindEnvelope,
	VerbClickBySelector:    kindEnvelope,
	VerbFillInput:          kindEnvelope,
	VerbSelectOption:       kindEnvelope,
	VerbKeyboardShortcut:   kindEnvelope,
	VerbNavigateToHash:     kindEnvelope,
	VerbPageStructure:      kindEnvelope,
	VerbFindElements:       kindEnvelope,
	VerbDebugElements:      kindEnvelope,
	VerbVerifyFormState:    kindEnvelope,
	VerbConsoleLog:         kindEnvelope,
	VerbEval:               kindEnvelope,
}

// ParseVerb normalizes a verb name ("Click_By_Text" -> click_by_text).
func ParseVerb(name string) (Verb, error) {
	v := Verb(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := verbKinds[v]; !ok {
		return "", fmt.Errorf("unknown command %q (known: %s)", name, strings.Join(KnownVerbs(), ", "))
	}
	return v, nil
}

// KnownVerbs lists every verb, sorted.
func KnownVerbs() []string {
	out := make([]string, 0, len(verbKinds))
	for v := range verbKinds {
		out = append(out, string(v))
	}
	sort.Strings(out)
	return out
}

// IsWait reports whether v is a wait probe that the executor polls.
func (v Verb) IsWait() bool {
	return verbKinds[v] == kindProbe
}

// Args are the typed arguments a verb may use. Which fields matter depends
// on the verb; unused fields are ignored.
type Args struct {
	Selector    string `json:"selector,omitempty" yaml:"selector,omitempty"`
	Text        string `json:"text,omitempty" yaml:"text,omitempty"`
	Value       string `json:"value,omitempty" yaml:"value,omitempty"`
	Placeholder string `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Message     string `json:"message,omitempty" yaml:"message,omitempty"`
	Code        string `json:"code,omitempty" yaml:"code,omitempty"`
}
