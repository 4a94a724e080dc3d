package diagnostics

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"devprobe/internal/cdp"
	"devprobe/internal/cdp/cdptest"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ysmood/gson"
)

func TestConsoleLine(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 6000000, time.UTC)

	line, ok := consoleLine(&cdp.ConsoleAPICalled{RuntimeConsoleAPICalled: proto.RuntimeConsoleAPICalled{
		Type: proto.RuntimeConsoleAPICalledTypeWarning,
		Args: []*proto.RuntimeRemoteObject{
			{Type: proto.RuntimeRemoteObjectTypeString, Value: gson.New("low disk")},
			{Type: proto.RuntimeRemoteObjectTypeNumber, Value: gson.New(42)},
			{Type: proto.RuntimeRemoteObjectTypeObject, Description: "HTMLDivElement"},
			{Type: proto.RuntimeRemoteObjectTypeFunction},
		},
		Timestamp: proto.RuntimeTimestamp(1700000000000),
	}}, now)
	require.True(t, ok)
	assert.Equal(t, "[2023-11-14T22:13:20.000Z] WARNING: low disk 42 HTMLDivElement function", line)

	line, ok = consoleLine(&cdp.MessageAdded{ConsoleMessageAdded: proto.ConsoleMessageAdded{
		Message: &proto.ConsoleConsoleMessage{Level: proto.ConsoleConsoleMessageLevelError, Text: "Uncaught TypeError"},
	}}, now)
	require.True(t, ok)
	assert.Equal(t, "[2026-01-02T03:04:05.006Z] ERROR: Uncaught TypeError", line)

	_, ok = consoleLine(&cdp.MessageAdded{}, now)
	assert.False(t, ok)
	_, ok = consoleLine(raw("Network.dataReceived"), now)
	assert.False(t, ok)
}

func TestCaptureConsole(t *testing.T) {
	srv := cdptest.NewServer(t)
	srv.Handle("Runtime.enable", func(c *cdptest.Conn, _ json.RawMessage) (interface{}, error) {
		c.Later(5*time.Millisecond, func(c *cdptest.Conn) {
			c.Emit(cdp.MethodConsoleAPICalled, map[string]interface{}{
				"type":               "log",
				"executionContextId": 1,
				"timestamp":          1700000000000,
				"args":               []interface{}{map[string]interface{}{"type": "string", "value": "first"}},
			})
			c.Emit(cdp.MethodConsoleAPICalled, map[string]interface{}{
				"type":               "error",
				"executionContextId": 1,
				"timestamp":          1700000000500,
				"args":               []interface{}{map[string]interface{}{"type": "string", "value": "second"}},
			})
		})
		return nil, nil
	})

	lines, err := CaptureConsole(context.Background(), srv.Target(), Window{Duration: 100 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"[2023-11-14T22:13:20.000Z] LOG: first",
		"[2023-11-14T22:13:20.500Z] ERROR: second",
	}, lines)
	// Console.enable is unknown to the fake target and is tolerated.
	assert.Len(t, srv.Calls("Console.enable"), 1)

	tail, err := ConsoleSource{Target: srv.Target(), Window: Window{Duration: 100 * time.Millisecond}}.Lines(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"[2023-11-14T22:13:20.500Z] ERROR: second"}, tail)
}

func TestCaptureConsoleRuntimeRejected(t *testing.T) {
	srv := cdptest.NewServer(t)
	_, err := CaptureConsole(context.Background(), srv.Target(), Window{Duration: time.Second})
	require.Error(t, err)
	assert.True(t, cdp.IsProtocol(err))
}
