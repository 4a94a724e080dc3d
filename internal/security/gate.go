// Package security gates operations before they reach a debug target.
//
// The gate enforces:
//   - inputs carrying javascript: schemes or script tags are blocked
//   - inputs matching a configured blocked pattern are blocked
//   - evaluated code touching network, storage or process APIs is marked high risk
//
// Blocked operations are kept as violations for the audit trail.
package security

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"devprobe/internal/config"
	"devprobe/internal/logging"
	"devprobe/internal/translate"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Risk grades an operation.
type Risk string

const (
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

// Operation names the kind of request being gated.
type Operation string

const (
	OpEval        Operation = "eval"
	OpCommand     Operation = "command"
	OpAutomation  Operation = "automation"
	OpDiagnostics Operation = "diagnostics"
	OpScreenshot  Operation = "screenshot"
)

// Decision is the gate's answer for one request.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Risk    Risk   `json:"risk"`
	Reason  string `json:"reason,omitempty"`
	// Code is set when the input reads as script source rather than a verb name.
	Code bool `json:"code"`
}

// Violation records a blocked request.
type Violation struct {
	Timestamp time.Time
	Operation Operation
	Input     string
	Reason    string
}

// riskyAPIs mark evaluated code that reaches outside the page.
var riskyAPIs = []string{"fetch(", "XMLHttpRequest", "localStorage", "require(", "process.", "eval("}

// codeIndicators mark input that reads as script source.
var codeIndicators = []string{
	"(", "document.", "window.", "const ", "let ", "var ", "function", "=>",
	"eval(", "new ", "this.", "=", ";", "{", "return",
}

var simpleCommand = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*(\s+[a-zA-Z0-9_-]+)*$`)

const maxViolations = 100

// Gate approves or blocks operations.
type Gate struct {
	enabled   bool
	blocked   []*regexp.Regexp
	memo      *lru.Cache[string, bool]
	memoLimit int

	mu         sync.Mutex
	violations []Violation
}

// NewGate builds a gate from the security config. Invalid blocked patterns
// are an error.
func NewGate(cfg config.SecurityConfig) (*Gate, error) {
	g := &Gate{enabled: cfg.Enabled, memoLimit: cfg.CacheSize}
	for _, p := range cfg.BlockedPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid blocked pattern %q: %w", p, err)
		}
		g.blocked = append(g.blocked, re)
	}
	if g.memoLimit > 0 {
		memo, err := lru.New[string, bool](g.memoLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to create classification cache: %w", err)
		}
		g.memo = memo
	}
	return g, nil
}

// Check decides whether op may run with input.
func (g *Gate) Check(op Operation, input string) Decision {
	log := logging.Get(logging.CategorySecurity)
	if !g.enabled {
		return Decision{Allowed: true, Risk: RiskLow, Code: g.LooksLikeCode(input)}
	}

	if translate.ContainsInjection(input) {
		return g.block(op, input, RiskCritical, "input contains script-injection markers")
	}
	for _, re := range g.blocked {
		if re.MatchString(input) {
			return g.block(op, input, RiskCritical, "input matches blocked pattern "+re.String())
		}
	}

	d := Decision{Allowed: true, Risk: RiskLow, Code: g.LooksLikeCode(input)}
	if d.Code {
		d.Risk = RiskMedium
		if api := riskyAPI(input); api != "" {
			d.Risk = RiskHigh
			d.Reason = "code uses " + api
		}
	}
	log.Debug("%s allowed (risk=%s)", op, d.Risk)
	return d
}

// CheckArgs gates every argument of a verb.
func (g *Gate) CheckArgs(op Operation, verb string, args translate.Args) Decision {
	worst := g.Check(op, verb)
	for _, v := range []string{args.Selector, args.Text, args.Value, args.Placeholder, args.Message, args.Code} {
		if v == "" {
			continue
		}
		d := g.Check(op, v)
		if !d.Allowed {
			return d
		}
		if rank(d.Risk) > rank(worst.Risk) {
			worst = d
		}
	}
	return worst
}

// LooksLikeCode reports whether input reads as script source. Results are
// memoized while the memo has room; entries are never evicted to make room.
func (g *Gate) LooksLikeCode(input string) bool {
	if g.memo != nil {
		if v, ok := g.memo.Get(input); ok {
			return v
		}
	}
	v := classify(input)
	if g.memo != nil && g.memo.Len() < g.memoLimit {
		g.memo.Add(input, v)
	}
	return v
}

// Violations returns the most recent blocked requests, oldest first.
func (g *Gate) Violations() []Violation {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Violation, len(g.violations))
	copy(out, g.violations)
	return out
}

func (g *Gate) block(op Operation, input string, risk Risk, reason string) Decision {
	logging.Get(logging.CategorySecurity).Warn("%s blocked: %s", op, reason)
	g.mu.Lock()
	g.violations = append(g.violations, Violation{
		Timestamp: time.Now(),
		Operation: op,
		Input:     truncate(input, 200),
		Reason:    reason,
	})
	if len(g.violations) > maxViolations {
		g.violations = g.violations[len(g.violations)-maxViolations:]
	}
	g.mu.Unlock()
	return Decision{Allowed: false, Risk: risk, Reason: reason}
}

func classify(input string) bool {
	if simpleCommand.MatchString(strings.TrimSpace(input)) {
		return false
	}
	for _, ind := range codeIndicators {
		if strings.Contains(input, ind) {
			return true
		}
	}
	return false
}

func riskyAPI(input string) string {
	for _, api := range riskyAPIs {
		if strings.Contains(input, api) {
			return api
		}
	}
	return ""
}

func rank(r Risk) int {
	switch r {
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
