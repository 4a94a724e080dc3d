package browser

import (
	"strconv"
	"strings"

	"github.com/go-rod/rod"
)

// elementFacts are the style, attribute and size facts that decide whether
// a click would reach the element.
type elementFacts struct {
	Styles map[string]string
	Attrs  map[string]string
	Width  float64
	Height float64
}

var hiddenChecks = []struct {
	reason string
	test   func(f elementFacts) bool
}{
	{"Hidden via display:none", func(f elementFacts) bool { return f.Styles["display"] == "none" }},
	{"Hidden via visibility:hidden", func(f elementFacts) bool {
		v := f.Styles["visibility"]
		return v == "hidden" || v == "collapse"
	}},
	{"Hidden via opacity:0", func(f elementFacts) bool {
		o, err := strconv.ParseFloat(f.Styles["opacity"], 64)
		return err == nil && o == 0
	}},
	{"Zero or near-zero size", func(f elementFacts) bool { return f.Width < 1 || f.Height < 1 }},
	{"Pointer events disabled", func(f elementFacts) bool { return f.Styles["pointerEvents"] == "none" }},
	{"Marked as aria-hidden", func(f elementFacts) bool { return f.Attrs["aria-hidden"] == "true" }},
	{"Disabled", func(f elementFacts) bool {
		_, ok := f.Attrs["disabled"]
		return ok
	}},
}

// hiddenReasons lists why an element cannot be clicked, empty when it can.
func hiddenReasons(f elementFacts) []string {
	var reasons []string
	for _, check := range hiddenChecks {
		if check.test(f) {
			reasons = append(reasons, check.reason)
		}
	}
	return reasons
}

func joinReasons(reasons []string) string {
	return strings.Join(reasons, "; ")
}

// hiddenReasonsOf reads the facts for el from the page.
func hiddenReasonsOf(el *rod.Element) ([]string, error) {
	res, err := el.Eval(`function() {
		const styles = window.getComputedStyle(this);
		const rect = this.getBoundingClientRect();
		const attrs = {};
		for (const attr of this.attributes) {
			attrs[attr.name] = attr.value;
		}
		return {
			styles: {
				display: styles.display,
				visibility: styles.visibility,
				opacity: styles.opacity,
				pointerEvents: styles.pointerEvents
			},
			attrs: attrs,
			width: rect.width,
			height: rect.height
		};
	}`)
	if err != nil {
		return nil, err
	}

	f := elementFacts{Styles: map[string]string{}, Attrs: map[string]string{}}
	obj := res.Value
	for k, v := range obj.Get("styles").Map() {
		f.Styles[k] = v.Str()
	}
	for k, v := range obj.Get("attrs").Map() {
		f.Attrs[k] = v.Str()
	}
	f.Width = obj.Get("width").Num()
	f.Height = obj.Get("height").Num()
	return hiddenReasons(f), nil
}
