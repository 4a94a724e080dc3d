package security

import (
	"fmt"
	"testing"

	"devprobe/internal/config"
	"devprobe/internal/translate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGate(t *testing.T, patterns ...string) *Gate {
	t.Helper()
	g, err := NewGate(config.SecurityConfig{Enabled: true, CacheSize: 1000, BlockedPatterns: patterns})
	require.NoError(t, err)
	return g
}

func TestCheck(t *testing.T) {
	g := newGate(t, `(?i)drop\s+table`)

	tests := []struct {
		name    string
		input   string
		allowed bool
		risk    Risk
		code    bool
	}{
		{"verb name", "click_by_text", true, RiskLow, false},
		{"plain code", "document.title", true, RiskMedium, true},
		{"network", "fetch('/api')", true, RiskHigh, true},
		{"storage", "localStorage.getItem('k')", true, RiskHigh, true},
		{"process", "process.exit(0)", true, RiskHigh, true},
		{"javascript scheme", "JavaScript:alert(1)", false, RiskCritical, false},
		{"script tag", "<script>x()</script>", false, RiskCritical, false},
		{"blocked pattern", "DROP  TABLE users", false, RiskCritical, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := g.Check(OpEval, tt.input)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.risk, d.Risk)
			assert.Equal(t, tt.code, d.Code)
			if !tt.allowed {
				assert.NotEmpty(t, d.Reason)
			}
		})
	}
	assert.Len(t, g.Violations(), 3)
}

func TestCheckDisabled(t *testing.T) {
	g, err := NewGate(config.SecurityConfig{Enabled: false})
	require.NoError(t, err)
	d := g.Check(OpEval, "javascript:alert(1)")
	assert.True(t, d.Allowed)
	assert.Empty(t, g.Violations())
}

func TestCheckArgs(t *testing.T) {
	g := newGate(t)

	d := g.CheckArgs(OpCommand, "fill_input", translate.Args{Selector: "#name", Value: "Ada"})
	assert.True(t, d.Allowed)

	d = g.CheckArgs(OpCommand, "fill_input", translate.Args{Selector: "#name", Value: "<script>steal()</script>"})
	assert.False(t, d.Allowed)

	d = g.CheckArgs(OpCommand, "eval", translate.Args{Code: "fetch('/x')"})
	assert.True(t, d.Allowed)
	assert.Equal(t, RiskHigh, d.Risk)
}

func TestNewGateRejectsBadPattern(t *testing.T) {
	_, err := NewGate(config.SecurityConfig{Enabled: true, BlockedPatterns: []string{"("}})
	assert.ErrorContains(t, err, "invalid blocked pattern")
}

func TestClassificationMemoInsertsOnlyWhileRoom(t *testing.T) {
	g, err := NewGate(config.SecurityConfig{Enabled: true, CacheSize: 3})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		g.LooksLikeCode(fmt.Sprintf("x%d = 1", i))
	}
	assert.Equal(t, 3, g.memo.Len())
	assert.True(t, g.memo.Contains("x0 = 1"), "early entries are never evicted")
	assert.False(t, g.memo.Contains("x4 = 1"))

	// Uncached inputs still classify the same way.
	assert.True(t, g.LooksLikeCode("x4 = 1"))
	assert.False(t, g.LooksLikeCode("get_title"))
}

func TestViolationsAreBounded(t *testing.T) {
	g := newGate(t)
	for i := 0; i < maxViolations+10; i++ {
		g.Check(OpEval, "javascript:void 0")
	}
	assert.Len(t, g.Violations(), maxViolations)
}
