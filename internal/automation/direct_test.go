package automation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"devprobe/internal/cdp"
	"devprobe/internal/cdp/cdptest"
	"devprobe/internal/command"
	"devprobe/internal/translate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func directFixture(t *testing.T) (*cdptest.Server, *cdptest.Page, *Direct) {
	t.Helper()
	srv := cdptest.NewServer(t)
	page := cdptest.NewPage(t)
	srv.ServePage(page)
	exec := command.NewExecutor(srv.Target(),
		command.WithRequestTimeout(time.Second),
		command.WithPollInterval(10*time.Millisecond),
		command.WithWaitTimeout(200*time.Millisecond),
	)
	return srv, page, NewDirect(exec)
}

func TestDirectRunOverOneSession(t *testing.T) {
	srv, page, backend := directFixture(t)
	_, err := page.Run("document.elements['#save'] = makeElement('BUTTON', {id: 'save', textContent: 'Save'})")
	require.NoError(t, err)

	report, err := NewEngine(backend, Options{}).Run(context.Background(), []Step{
		{Command: "click_by_selector", Args: translate.Args{Selector: "#missing"}},
		{Command: "click_by_selector", Args: translate.Args{Selector: "#save"}},
		{Command: "click_by_selector", Args: translate.Args{Selector: "#save"}},
		{Command: "get_title"},
		{Command: "wait_for_selector", Args: translate.Args{Selector: "#save"}},
	})
	require.NoError(t, err)
	require.Len(t, report.Steps, 5)

	assert.Equal(t, translate.StatusFailure, report.Steps[0].Result.Status)
	assert.Equal(t, translate.StatusSuccess, report.Steps[1].Result.Status)
	assert.Equal(t, translate.StatusPrevented, report.Steps[2].Result.Status)
	assert.Equal(t, translate.Success("Fixture", ""), report.Steps[3].Result)
	assert.Equal(t, translate.StatusSuccess, report.Steps[4].Result.Status)

	clicks, err := page.Run("document.elements['#save'].clicks")
	require.NoError(t, err)
	assert.Equal(t, int64(1), clicks.ToInteger())

	assert.Len(t, srv.Calls("Runtime.enable"), 1, "one session for the whole run")
	assert.Equal(t, "direct", report.Backend)
}

func TestDirectRunScreenshotsAndConsole(t *testing.T) {
	srv, _, backend := directFixture(t)
	srv.HandleResult("Page.captureScreenshot", map[string]string{
		"data": base64.StdEncoding.EncodeToString([]byte("\x89PNG")),
	})
	srv.Handle("Runtime.enable", func(c *cdptest.Conn, _ json.RawMessage) (interface{}, error) {
		c.Later(20*time.Millisecond, func(c *cdptest.Conn) {
			c.Emit(cdp.MethodConsoleAPICalled, map[string]interface{}{
				"type":               "error",
				"executionContextId": 1,
				"timestamp":          1700000000000,
				"args":               []interface{}{map[string]interface{}{"type": "string", "value": "boom"}},
			})
		})
		return nil, nil
	})

	report, err := NewEngine(backend, Options{Screenshots: true, Logs: true}).Run(context.Background(), []Step{
		{Command: "get_url"},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), report.Before)
	assert.Equal(t, []byte("\x89PNG"), report.After)
	assert.Len(t, srv.Calls("Page.captureScreenshot"), 2)
	assert.Equal(t, []string{"[2023-11-14T22:13:20.000Z] ERROR: boom"}, report.Logs)
}

func TestDirectSetupFailure(t *testing.T) {
	backend := NewDirect(command.NewExecutor(cdp.DebugTarget{ID: "gone", SocketEndpoint: "ws://127.0.0.1:1/devtools/page/gone"},
		command.WithDialTimeout(200*time.Millisecond)))
	report, err := NewEngine(backend, Options{}).Run(context.Background(), []Step{{Command: "get_title"}})
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, cdp.IsConnection(err))
}
