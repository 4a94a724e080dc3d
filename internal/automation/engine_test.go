package automation

import (
	"context"
	"errors"
	"testing"

	"devprobe/internal/cdp"
	"devprobe/internal/translate"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeBackend struct {
	attachErr error
	runner    Runner
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Attach(context.Context) (Runner, error) {
	if b.attachErr != nil {
		return nil, b.attachErr
	}
	return b.runner, nil
}

type fakeRunner struct {
	fail   map[translate.Verb]error
	panics map[translate.Verb]bool
	calls  []translate.Verb
	closed int
}

func (r *fakeRunner) ExecuteStep(_ context.Context, verb translate.Verb, args translate.Args) (translate.Outcome, error) {
	r.calls = append(r.calls, verb)
	if r.panics[verb] {
		panic("selector engine exploded")
	}
	if err := r.fail[verb]; err != nil {
		return translate.Outcome{}, err
	}
	return translate.Success(string(verb)+":"+args.Selector, ""), nil
}

func (r *fakeRunner) Close() error {
	r.closed++
	return nil
}

// shootingRunner also takes screenshots and supplies log lines.
type shootingRunner struct {
	fakeRunner
	shots int
	lines []string
}

func (r *shootingRunner) Screenshot(context.Context) ([]byte, error) {
	r.shots++
	if r.shots == 1 {
		return []byte("before"), nil
	}
	return []byte("after"), nil
}

func (r *shootingRunner) Lines(_ context.Context, n int) ([]string, error) {
	if len(r.lines) > n {
		return r.lines[len(r.lines)-n:], nil
	}
	return r.lines, nil
}

type staticLogs []string

func (s staticLogs) Lines(context.Context, int) ([]string, error) { return s, nil }

func TestRunContinuesAfterFailedStep(t *testing.T) {
	runner := &fakeRunner{fail: map[translate.Verb]error{
		translate.VerbClickBySelector: &cdp.TimeoutError{Method: "Runtime.evaluate"},
	}}
	engine := NewEngine(&fakeBackend{runner: runner}, Options{})

	report, err := engine.Run(context.Background(), []Step{
		{Command: "click_by_selector", Args: translate.Args{Selector: "#nope"}},
		{Command: "get_title"},
		{Command: "get_url"},
	})
	require.NoError(t, err)

	require.Len(t, report.Steps, 3)
	assert.Equal(t, []string{"click_by_selector", "get_title", "get_url"},
		[]string{report.Steps[0].Command, report.Steps[1].Command, report.Steps[2].Command})

	first := report.Steps[0].Result
	assert.True(t, first.Failed())
	assert.Equal(t, translate.KindTimeout, first.Kind)
	assert.Contains(t, first.Message, "step 1 (click_by_selector)")

	assert.Equal(t, translate.StatusSuccess, report.Steps[1].Result.Status)
	assert.Equal(t, translate.StatusSuccess, report.Steps[2].Result.Status)
	assert.Equal(t, 1, report.Failed())

	assert.Equal(t, []translate.Verb{translate.VerbClickBySelector, translate.VerbGetTitle, translate.VerbGetURL}, runner.calls)
	assert.Equal(t, 1, runner.closed)
	assert.Equal(t, "fake", report.Backend)
	_, err = uuid.Parse(report.RunID)
	assert.NoError(t, err)
	assert.Nil(t, report.Logs)
}

func TestRunSetupFailureIsSingleFailure(t *testing.T) {
	engine := NewEngine(&fakeBackend{attachErr: &cdp.ConnectionError{Endpoint: "ws://x", Err: errors.New("refused")}}, Options{})

	report, err := engine.Run(context.Background(), []Step{{Command: "get_title"}, {Command: "get_url"}})
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, cdp.IsConnection(err))
	assert.Contains(t, err.Error(), "fake backend setup")
}

func TestRunUnknownCommandFailsOnlyThatStep(t *testing.T) {
	runner := &fakeRunner{}
	report, err := NewEngine(&fakeBackend{runner: runner}, Options{}).Run(context.Background(), []Step{
		{Command: "teleport"},
		{Command: "get_title"},
	})
	require.NoError(t, err)
	require.Len(t, report.Steps, 2)
	assert.True(t, report.Steps[0].Result.Failed())
	assert.Contains(t, report.Steps[0].Result.Message, "unknown command")
	assert.False(t, report.Steps[1].Result.Failed())
	assert.Equal(t, []translate.Verb{translate.VerbGetTitle}, runner.calls, "unknown commands never reach the backend")
}

func TestRunRecoversFromPanickingStep(t *testing.T) {
	runner := &fakeRunner{panics: map[translate.Verb]bool{translate.VerbFillInput: true}}
	report, err := NewEngine(&fakeBackend{runner: runner}, Options{}).Run(context.Background(), []Step{
		{Command: "fill_input", Args: translate.Args{Selector: "#a", Value: "x"}},
		{Command: "get_title"},
	})
	require.NoError(t, err)
	require.Len(t, report.Steps, 2)
	assert.Contains(t, report.Steps[0].Result.Message, "selector engine exploded")
	assert.False(t, report.Steps[1].Result.Failed())
	assert.Equal(t, 1, runner.closed)
}

func TestRunCanceledContextStillReportsEveryStep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &fakeRunner{}
	report, err := NewEngine(&fakeBackend{runner: runner}, Options{}).Run(ctx, []Step{
		{Command: "get_title"},
		{Command: "get_url"},
	})
	require.NoError(t, err)
	require.Len(t, report.Steps, 2)
	assert.Equal(t, 2, report.Failed())
	assert.Empty(t, runner.calls)
	assert.Equal(t, 1, runner.closed)
}

func TestRunAttachesScreenshotsAndLogs(t *testing.T) {
	runner := &shootingRunner{lines: []string{"a", "b", "c"}}
	engine := NewEngine(&fakeBackend{runner: runner}, Options{Screenshots: true, Logs: true, LogLines: 2})

	report, err := engine.Run(context.Background(), []Step{{Command: "get_title"}})
	require.NoError(t, err)
	assert.Equal(t, []byte("before"), report.Before)
	assert.Equal(t, []byte("after"), report.After)
	assert.Equal(t, []string{"b", "c"}, report.Logs)

	engine = NewEngine(&fakeBackend{runner: runner}, Options{Logs: true, LogSource: staticLogs{"external"}})
	report, err = engine.Run(context.Background(), []Step{{Command: "get_title"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"external"}, report.Logs)
	assert.Nil(t, report.Before)
}

func TestRunWithoutScreenshotCapability(t *testing.T) {
	report, err := NewEngine(&fakeBackend{runner: &fakeRunner{}}, Options{Screenshots: true, Logs: true}).
		Run(context.Background(), []Step{{Command: "get_title"}})
	require.NoError(t, err)
	assert.Nil(t, report.Before)
	assert.Nil(t, report.After)
	assert.Empty(t, report.Logs)
	assert.False(t, report.Steps[0].Result.Failed())
}

func TestStepErrorUnwraps(t *testing.T) {
	inner := &cdp.ProtocolError{Code: -32000, Message: "No node"}
	err := error(&StepError{Index: 2, Command: "click_button", Err: inner})
	assert.Equal(t, "step 3 (click_button): "+inner.Error(), err.Error())
	assert.True(t, cdp.IsProtocol(err))
	assert.Equal(t, translate.KindProtocol, translate.FromError(err).Kind)
}
