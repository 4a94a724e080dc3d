package cdp

import (
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod/lib/proto"
)

// Event methods this client decodes into typed variants.
const (
	MethodRequestWillBeSent = "Network.requestWillBeSent"
	MethodResponseReceived  = "Network.responseReceived"
	MethodLoadingFinished   = "Network.loadingFinished"
	MethodLoadingFailed     = "Network.loadingFailed"
	MethodDataCollected     = "Tracing.dataCollected"
	MethodTracingComplete   = "Tracing.tracingComplete"
	MethodConsoleAPICalled  = "Runtime.consoleAPICalled"
	MethodMessageAdded      = "Console.messageAdded"
)

// Event is one unsolicited frame from the target. The set of variants is
// closed; methods without a typed variant arrive as *RawEvent.
type Event interface {
	Method() string
	sealed()
}

type RequestWillBeSent struct{ proto.NetworkRequestWillBeSent }
type ResponseReceived struct{ proto.NetworkResponseReceived }
type LoadingFinished struct{ proto.NetworkLoadingFinished }
type LoadingFailed struct{ proto.NetworkLoadingFailed }
type DataCollected struct{ proto.TracingDataCollected }
type TracingComplete struct{ proto.TracingTracingComplete }
type ConsoleAPICalled struct{ proto.RuntimeConsoleAPICalled }
type MessageAdded struct{ proto.ConsoleMessageAdded }

// RawEvent is any event without a typed variant.
type RawEvent struct {
	Name   string
	Params json.RawMessage
}

func (*RequestWillBeSent) Method() string { return MethodRequestWillBeSent }
func (*ResponseReceived) Method() string  { return MethodResponseReceived }
func (*LoadingFinished) Method() string   { return MethodLoadingFinished }
func (*LoadingFailed) Method() string     { return MethodLoadingFailed }
func (*DataCollected) Method() string     { return MethodDataCollected }
func (*TracingComplete) Method() string   { return MethodTracingComplete }
func (*ConsoleAPICalled) Method() string  { return MethodConsoleAPICalled }
func (*MessageAdded) Method() string      { return MethodMessageAdded }
func (e *RawEvent) Method() string        { return e.Name }

func (*RequestWillBeSent) sealed() {}
func (*ResponseReceived) sealed()  {}
func (*LoadingFinished) sealed()   {}
func (*LoadingFailed) sealed()     {}
func (*DataCollected) sealed()     {}
func (*TracingComplete) sealed()   {}
func (*ConsoleAPICalled) sealed()  {}
func (*MessageAdded) sealed()      {}
func (*RawEvent) sealed()          {}

// decodeEvent maps an event frame to its variant.
func decodeEvent(method string, params json.RawMessage) (Event, error) {
	var ev Event
	switch method {
	case MethodRequestWillBeSent:
		ev = &RequestWillBeSent{}
	case MethodResponseReceived:
		ev = &ResponseReceived{}
	case MethodLoadingFinished:
		ev = &LoadingFinished{}
	case MethodLoadingFailed:
		ev = &LoadingFailed{}
	case MethodDataCollected:
		ev = &DataCollected{}
	case MethodTracingComplete:
		ev = &TracingComplete{}
	case MethodConsoleAPICalled:
		ev = &ConsoleAPICalled{}
	case MethodMessageAdded:
		ev = &MessageAdded{}
	default:
		return &RawEvent{Name: method, Params: params}, nil
	}

	if len(params) == 0 {
		return ev, nil
	}
	if err := json.Unmarshal(params, ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", method, err)
	}
	return ev, nil
}
