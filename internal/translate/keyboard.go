package translate

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Shortcut is a parsed keyboard shortcut such as "Ctrl+Shift+N".
type Shortcut struct {
	Key   string // KeyboardEvent.key
	Code  string // KeyboardEvent.code
	Ctrl  bool
	Shift bool
	Alt   bool
	Meta  bool
}

var namedKeys = map[string]string{
	"Enter":      "Enter",
	"Escape":     "Escape",
	"Tab":        "Tab",
	"Space":      "Space",
	"ArrowUp":    "ArrowUp",
	"ArrowDown":  "ArrowDown",
	"ArrowLeft":  "ArrowLeft",
	"ArrowRight": "ArrowRight",
}

// ParseShortcut validates and splits a shortcut. The last '+'-separated part
// is the key: one character or a named key. Earlier parts are modifiers.
func ParseShortcut(s string) (Shortcut, error) {
	parts := strings.Split(s, "+")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	// "Ctrl++" means the plus key.
	if strings.HasSuffix(s, "++") {
		parts = append(parts[:len(parts)-2], "+")
	}

	key := parts[len(parts)-1]
	var sc Shortcut
	switch {
	case namedKeys[key] != "":
		sc.Code = namedKeys[key]
		sc.Key = key
		if key == "Space" {
			sc.Key = " "
		}
	case utf8.RuneCountInString(key) == 1:
		sc.Key = key
		sc.Code = keyCode(key)
	default:
		return Shortcut{}, fmt.Errorf("%w: invalid keyboard shortcut: %s", ErrRejectedInput, s)
	}

	for _, mod := range parts[:len(parts)-1] {
		switch strings.ToLower(mod) {
		case "ctrl", "control":
			sc.Ctrl = true
		case "shift":
			sc.Shift = true
		case "alt", "option":
			sc.Alt = true
		case "meta", "cmd", "command":
			sc.Meta = true
		default:
			return Shortcut{}, fmt.Errorf("%w: unknown modifier %q in %s", ErrRejectedInput, mod, s)
		}
	}
	return sc, nil
}

// keyCode maps a single character to its KeyboardEvent.code. Characters
// without a stable code map to "".
func keyCode(key string) string {
	c := strings.ToUpper(key)[0]
	switch {
	case len(key) != 1:
		return ""
	case c >= 'A' && c <= 'Z':
		return "Key" + string(c)
	case c >= '0' && c <= '9':
		return "Digit" + string(c)
	}
	return ""
}

func (sc Shortcut) String() string {
	var b strings.Builder
	for _, m := range []struct {
		on   bool
		name string
	}{{sc.Ctrl, "Ctrl"}, {sc.Shift, "Shift"}, {sc.Alt, "Alt"}, {sc.Meta, "Meta"}} {
		if m.on {
			b.WriteString(m.name)
			b.WriteByte('+')
		}
	}
	if sc.Key == " " {
		b.WriteString("Space")
	} else {
		b.WriteString(sc.Key)
	}
	return b.String()
}
