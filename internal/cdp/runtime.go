package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// evaluateParams spells out awaitPromise so it is sent even when false.
type evaluateParams struct {
	Expression    string `json:"expression"`
	ReturnByValue bool   `json:"returnByValue"`
	AwaitPromise  bool   `json:"awaitPromise"`
}

// EnableRuntime issues the Runtime.enable handshake.
func (s *Session) EnableRuntime(ctx context.Context, timeout time.Duration) error {
	return proto.RuntimeEnable{}.Call(s.Client(ctx, timeout))
}

// Evaluate runs expression in the page and returns the raw evaluation result.
// A script that throws is not an error here; see Result.Exception.
func (s *Session) Evaluate(ctx context.Context, expression string, timeout time.Duration) (*proto.RuntimeEvaluateResult, error) {
	raw, err := s.Request(ctx, proto.RuntimeEvaluate{}.ProtoReq(), evaluateParams{
		Expression:    expression,
		ReturnByValue: true,
		AwaitPromise:  false,
	}, timeout)
	if err != nil {
		return nil, err
	}

	var res proto.RuntimeEvaluateResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("failed to decode evaluation result: %w", err)
	}
	if res.Result == nil {
		res.Result = &proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeUndefined}
	}
	return &res, nil
}

// Exception converts a thrown script error into an EvaluationError, or nil.
func Exception(res *proto.RuntimeEvaluateResult) *EvaluationError {
	if res == nil || res.ExceptionDetails == nil {
		return nil
	}
	d := res.ExceptionDetails

	msg := d.Text
	stack := ""
	if d.Exception != nil {
		if d.Exception.Description != "" {
			// V8 descriptions are "Name: message\n    at ..." for Error objects.
			msg, stack = splitDescription(d.Exception.Description)
		} else if !d.Exception.Value.Nil() {
			msg = d.Exception.Value.String()
		}
	}
	if stack == "" && d.StackTrace != nil {
		for _, f := range d.StackTrace.CallFrames {
			stack += fmt.Sprintf("    at %s (%s:%d:%d)\n", f.FunctionName, f.URL, f.LineNumber, f.ColumnNumber)
		}
	}
	return &EvaluationError{Message: msg, Stack: stack}
}

func splitDescription(desc string) (string, string) {
	for i := 0; i < len(desc); i++ {
		if desc[i] == '\n' {
			return desc[:i], desc[i+1:]
		}
	}
	return desc, ""
}
