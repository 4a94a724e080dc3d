package browser

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"devprobe/internal/translate"

	"github.com/go-rod/rod/lib/input"
)

var namedInputKeys = map[string]input.Key{
	"Enter":      input.Enter,
	"Escape":     input.Escape,
	"Tab":        input.Tab,
	"Space":      input.Space,
	"ArrowUp":    input.ArrowUp,
	"ArrowDown":  input.ArrowDown,
	"ArrowLeft":  input.ArrowLeft,
	"ArrowRight": input.ArrowRight,
}

// shortcutKeys maps a parsed shortcut onto rod keys: the held modifiers and
// the key typed while they are down.
func shortcutKeys(sc translate.Shortcut) ([]input.Key, input.Key, error) {
	var mods []input.Key
	if sc.Ctrl {
		mods = append(mods, input.ControlLeft)
	}
	if sc.Shift {
		mods = append(mods, input.ShiftLeft)
	}
	if sc.Alt {
		mods = append(mods, input.AltLeft)
	}
	if sc.Meta {
		mods = append(mods, input.MetaLeft)
	}

	if k, ok := namedInputKeys[sc.Code]; ok {
		return mods, k, nil
	}

	r, _ := utf8.DecodeRuneInString(sc.Key)
	if r == utf8.RuneError || r > unicode.MaxASCII {
		return nil, 0, fmt.Errorf("%w: no key for %q", translate.ErrRejectedInput, sc.Key)
	}
	k := input.Key(unicode.ToLower(r))
	if !keyDefined(k) {
		return nil, 0, fmt.Errorf("%w: no key for %q", translate.ErrRejectedInput, sc.Key)
	}
	return mods, k, nil
}

// keyDefined reports whether rod knows k; Key.Info panics otherwise.
func keyDefined(k input.Key) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	k.Info()
	return true
}
