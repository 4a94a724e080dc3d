package translate

import (
	"errors"

	"devprobe/internal/cdp"
)

// Status is the tri-state result of one command.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailure   Status = "failure"
	StatusPrevented Status = "prevented" // duplicate-action guard fired; nothing happened
)

// Error kinds attached to failures.
const (
	KindEvaluation  = "evaluation"
	KindProtocol    = "protocol"
	KindTimeout     = "timeout"
	KindConnection  = "connection"
	KindTranslation = "translation"
	KindStep        = "step"
)

// Outcome is the structured result of a command.
type Outcome struct {
	Status  Status      `json:"status"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message,omitempty"`
	Detail  string      `json:"detail,omitempty"` // stack trace or extra context
	Kind    string      `json:"kind,omitempty"`   // failure classification
}

// Success builds a successful outcome.
func Success(value interface{}, message string) Outcome {
	return Outcome{Status: StatusSuccess, Value: value, Message: message}
}

// Failure builds a failed outcome.
func Failure(kind, message, detail string) Outcome {
	return Outcome{Status: StatusFailure, Kind: kind, Message: message, Detail: detail}
}

// Prevented builds an outcome for an action the page refused to repeat.
func Prevented(message string) Outcome {
	return Outcome{Status: StatusPrevented, Message: message}
}

// Failed reports whether the outcome is a failure. Prevented is not a failure.
func (o Outcome) Failed() bool {
	return o.Status == StatusFailure
}

// FromError classifies a transport or translation error as a failed outcome.
func FromError(err error) Outcome {
	var ee *cdp.EvaluationError
	if errors.As(err, &ee) {
		return Failure(KindEvaluation, "JavaScript error: "+ee.Message, ee.Stack)
	}

	kind := KindStep
	switch {
	case cdp.IsTimeout(err):
		kind = KindTimeout
	case cdp.IsProtocol(err):
		kind = KindProtocol
	case cdp.IsConnection(err):
		kind = KindConnection
	case errors.Is(err, ErrRejectedInput), errors.Is(err, ErrMissingArgument):
		kind = KindTranslation
	}
	return Failure(kind, err.Error(), "")
}

// Err returns the failure as a typed error, or nil for non-failures.
func (o Outcome) Err() error {
	if !o.Failed() {
		return nil
	}
	if o.Kind == KindEvaluation {
		return &cdp.EvaluationError{Message: o.Message, Stack: o.Detail}
	}
	return &outcomeError{o}
}

type outcomeError struct{ o Outcome }

func (e *outcomeError) Error() string {
	if e.o.Kind == "" {
		return e.o.Message
	}
	return e.o.Kind + ": " + e.o.Message
}
