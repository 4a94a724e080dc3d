package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"devprobe/internal/audit"
	"devprobe/internal/automation"
	"devprobe/internal/browser"
	"devprobe/internal/cdp"
	"devprobe/internal/command"
	"devprobe/internal/config"
	"devprobe/internal/logging"
	"devprobe/internal/security"

	"github.com/spf13/cobra"
)

// runOutput adds screenshot files to the automation report.
type runOutput struct {
	*automation.Report
	Failed           int    `json:"failed"`
	BeforeScreenshot string `json:"beforeScreenshot,omitempty"`
	AfterScreenshot  string `json:"afterScreenshot,omitempty"`
}

func (c *cli) runCmd() *cobra.Command {
	var backend string
	var opts automation.Options
	var watch bool

	cmd := &cobra.Command{
		Use:   "run <script.yaml>",
		Short: "Run a YAML automation script",
		Long: `Runs every step of the script in order. A failing step is recorded and
the run continues with the next one.

Script format:
  name: login
  backend: direct        # or assisted
  steps:
    - command: fill_input
      args: {selector: "#user", value: "admin"}
    - command: click_by_text
      args: {text: "Sign in"}
    - command: wait_for_url_includes
      args: {text: "/dashboard"}

With --watch the script is re-run each time the file is saved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			if opts.LogLines <= 0 {
				opts.LogLines = c.cfg.Automation.LogLines
			}

			script, err := automation.LoadScript(args[0])
			if err != nil {
				return err
			}
			if !watch {
				return c.runScript(ctx, cmd, script, backend, opts)
			}

			// Watching is open-ended; only a signal ends it.
			wctx, wcancel := signalContext(cmd)
			defer wcancel()
			if err := c.runScript(ctx, cmd, script, backend, opts); err != nil && !errors.Is(err, errFailed) {
				logging.Get(logging.CategoryAutomation).Error("%v", err)
			}
			return automation.WatchScript(wctx, args[0], automation.DefaultDebounce, func(s *automation.Script, err error) {
				if err != nil {
					logging.Get(logging.CategoryAutomation).Error("reload %s: %v", args[0], err)
					return
				}
				rctx, rcancel := context.WithTimeout(wctx, c.timeout)
				defer rcancel()
				if err := c.runScript(rctx, cmd, s, backend, opts); err != nil && !errors.Is(err, errFailed) {
					logging.Get(logging.CategoryAutomation).Error("%v", err)
				}
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&backend, "backend", "", "direct or assisted (default: script, then config)")
	f.BoolVar(&opts.Screenshots, "screenshots", false, "Capture before/after screenshots")
	f.BoolVar(&opts.Logs, "logs", false, "Attach the trailing console log")
	f.IntVar(&opts.LogLines, "log-lines", 0, "Console lines to attach (default from config)")
	f.BoolVar(&watch, "watch", false, "Re-run when the script changes")
	return cmd
}

func (c *cli) runScript(ctx context.Context, cmd *cobra.Command, script *automation.Script, backendFlag string, opts automation.Options) error {
	target, err := c.target(ctx)
	if err != nil {
		return err
	}
	for i, step := range script.Steps {
		d := c.gate.CheckArgs(security.OpAutomation, step.Command, step.Args)
		if err := c.admit(ctx, d, step.Command, target); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	backend, err := c.backend(target, backendFlag, script.Backend)
	if err != nil {
		return err
	}
	started := time.Now()
	report, err := automation.NewEngine(backend, opts).Run(ctx, script.Steps)
	if err != nil {
		c.recordErr(ctx, "run", target, err, started)
		return err
	}

	for _, step := range report.Steps {
		c.record(ctx, report.RunID, step.Command, target, outcomeStatus(step.Result), step.Result.Message, report.StartedAt)
	}
	out := runOutput{Report: report, Failed: report.Failed()}
	if out.BeforeScreenshot, err = c.writeScreenshot("before", report.Before); err != nil {
		return err
	}
	if out.AfterScreenshot, err = c.writeScreenshot("after", report.After); err != nil {
		return err
	}
	if err := printJSON(cmd, out); err != nil {
		return err
	}
	if out.Failed > 0 {
		c.record(ctx, report.RunID, "run", target, audit.StatusFailure, fmt.Sprintf("%d of %d steps failed", out.Failed, len(report.Steps)), report.StartedAt)
		return errFailed
	}
	c.record(ctx, report.RunID, "run", target, audit.StatusSuccess, "", report.StartedAt)
	return nil
}

// backend picks the flag, then the script, then the config.
func (c *cli) backend(target cdp.DebugTarget, names ...string) (automation.Backend, error) {
	name := c.cfg.Automation.Backend
	for _, n := range names {
		if n != "" {
			name = n
			break
		}
	}
	if err := (config.AutomationConfig{Backend: name}).Validate(); err != nil {
		return nil, err
	}
	if name == config.BackendAssisted {
		return browser.NewAssisted(target, browser.ConfigFrom(c.cfg)), nil
	}
	return automation.NewDirect(command.FromConfig(target, c.cfg)), nil
}
