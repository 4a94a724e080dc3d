package translate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRejectedInput is wrapped when an argument carries script-injection markers.
	ErrRejectedInput = errors.New("input rejected")
	// ErrMissingArgument is wrapped when a verb lacks a required argument.
	ErrMissingArgument = errors.New("missing argument")
)

var injectionMarkers = []string{"javascript:", "<script"}

// ContainsInjection reports whether s carries a javascript: scheme or an
// embedded script tag (case-insensitive).
func ContainsInjection(s string) bool {
	lower := strings.ToLower(s)
	for _, m := range injectionMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// CheckArgs rejects any argument carrying injection markers.
func CheckArgs(args Args) error {
	fields := []struct{ name, value string }{
		{"selector", args.Selector},
		{"text", args.Text},
		{"value", args.Value},
		{"placeholder", args.Placeholder},
		{"message", args.Message},
		{"code", args.Code},
	}
	for _, f := range fields {
		if ContainsInjection(f.value) {
			return fmt.Errorf("%w: %s contains dangerous content", ErrRejectedInput, f.name)
		}
	}
	return nil
}

func needArg(verb Verb, name, value, example string) error {
	if value == "" {
		return fmt.Errorf("%w: %s needs %s, e.g. %s", ErrMissingArgument, verb, name, example)
	}
	return nil
}
