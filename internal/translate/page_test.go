package translate

import (
	"testing"

	"devprobe/internal/cdp/cdptest"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/require"
)

// page runs translated scripts against the cdptest fixture DOM without a
// socket in between.
type page struct {
	t *testing.T
	*cdptest.Page
}

func newPage(t *testing.T) *page {
	return &page{t: t, Page: cdptest.NewPage(t)}
}

// js runs setup code against the fixture.
func (p *page) js(src string) goja.Value {
	p.t.Helper()
	v, err := p.Run(src)
	require.NoError(p.t, err)
	return v
}

// run translates verb, evaluates it and interprets the result the way the
// executor does.
func (p *page) run(verb Verb, args Args) Outcome {
	p.t.Helper()
	script, err := Translate(verb, args)
	require.NoError(p.t, err)
	return Interpret(verb, p.Evaluate(script))
}

func (p *page) flush() {
	p.Flush()
}
