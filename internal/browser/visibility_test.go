package browser

import (
	"testing"
	"time"

	"devprobe/internal/translate"

	"github.com/go-rod/rod/lib/input"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func visible() elementFacts {
	return elementFacts{
		Styles: map[string]string{"display": "block", "visibility": "visible", "opacity": "1", "pointerEvents": "auto"},
		Attrs:  map[string]string{"id": "save"},
		Width:  80,
		Height: 24,
	}
}

func TestHiddenReasons(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *elementFacts)
		reasons []string
	}{
		{"visible", func(*elementFacts) {}, nil},
		{"display none", func(f *elementFacts) { f.Styles["display"] = "none" }, []string{"Hidden via display:none"}},
		{"visibility hidden", func(f *elementFacts) { f.Styles["visibility"] = "hidden" }, []string{"Hidden via visibility:hidden"}},
		{"opacity", func(f *elementFacts) { f.Styles["opacity"] = "0" }, []string{"Hidden via opacity:0"}},
		{"half opacity is fine", func(f *elementFacts) { f.Styles["opacity"] = "0.5" }, nil},
		{"zero size", func(f *elementFacts) { f.Width = 0 }, []string{"Zero or near-zero size"}},
		{"pointer events", func(f *elementFacts) { f.Styles["pointerEvents"] = "none" }, []string{"Pointer events disabled"}},
		{"aria hidden", func(f *elementFacts) { f.Attrs["aria-hidden"] = "true" }, []string{"Marked as aria-hidden"}},
		{"disabled", func(f *elementFacts) { f.Attrs["disabled"] = "" }, []string{"Disabled"}},
		{"several", func(f *elementFacts) {
			f.Styles["display"] = "none"
			f.Height = 0
		}, []string{"Hidden via display:none", "Zero or near-zero size"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := visible()
			tt.mutate(&f)
			assert.Equal(t, tt.reasons, hiddenReasons(f))
		})
	}
}

func TestShortcutKeys(t *testing.T) {
	sc, err := translate.ParseShortcut("Ctrl+Shift+N")
	require.NoError(t, err)
	mods, key, err := shortcutKeys(sc)
	require.NoError(t, err)
	assert.Equal(t, []input.Key{input.ControlLeft, input.ShiftLeft}, mods)
	assert.Equal(t, input.KeyN, key)

	sc, err = translate.ParseShortcut("Cmd+Enter")
	require.NoError(t, err)
	mods, key, err = shortcutKeys(sc)
	require.NoError(t, err)
	assert.Equal(t, []input.Key{input.MetaLeft}, mods)
	assert.Equal(t, input.Enter, key)

	sc, err = translate.ParseShortcut("Alt+Space")
	require.NoError(t, err)
	_, key, err = shortcutKeys(sc)
	require.NoError(t, err)
	assert.Equal(t, input.Space, key)

	_, _, err = shortcutKeys(translate.Shortcut{Key: "é"})
	assert.ErrorIs(t, err, translate.ErrRejectedInput)
}

func TestMillis(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, millis("1500", time.Second))
	assert.Equal(t, time.Second, millis("", time.Second))
	assert.Equal(t, time.Second, millis("-3", time.Second))
}
