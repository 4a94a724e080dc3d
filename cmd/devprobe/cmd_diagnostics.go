package main

import (
	"time"

	"devprobe/internal/command"
	"devprobe/internal/diagnostics"
	"devprobe/internal/security"

	"github.com/spf13/cobra"
)

func (c *cli) networkCmd() *cobra.Command {
	var duration, idle time.Duration
	var maxRequests int
	var noFailures bool

	cmd := &cobra.Command{
		Use:   "network",
		Short: "Collect and summarize network activity",
		Long: `Enables the Network domain and collects request events until the window
closes: the duration elapses, max-requests are seen, or the page is idle.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			opts := diagnostics.NetworkOptionsFrom(c.cfg.Network, c.cfg.GetRequestTimeout())
			if cmd.Flags().Changed("duration") {
				opts.Duration = duration
			}
			if cmd.Flags().Changed("idle") {
				opts.Idle = idle
			}
			if cmd.Flags().Changed("max-requests") {
				opts.MaxRequests = maxRequests
			}
			if noFailures {
				opts.IncludeFailures = false
			}

			target, err := c.target(ctx)
			if err != nil {
				return err
			}
			if err := c.admit(ctx, c.gate.Check(security.OpDiagnostics, "network"), "network", target); err != nil {
				return err
			}
			started := time.Now()
			snap, err := diagnostics.CollectNetworkSnapshot(ctx, target, opts)
			c.recordErr(ctx, "network", target, err, started)
			if err != nil {
				return err
			}
			return printJSON(cmd, snap)
		},
	}
	f := cmd.Flags()
	f.DurationVar(&duration, "duration", 0, "Window duration (default from config)")
	f.DurationVar(&idle, "idle", 0, "Close after this long without activity")
	f.IntVar(&maxRequests, "max-requests", 0, "Close after this many requests")
	f.BoolVar(&noFailures, "no-failures", false, "Omit the failed-request list")
	return cmd
}

func (c *cli) traceCmd() *cobra.Command {
	var duration time.Duration
	var categories []string

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Record a performance trace and summarize it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			opts := diagnostics.TraceOptionsFrom(c.cfg.Trace, c.cfg.GetRequestTimeout())
			if cmd.Flags().Changed("duration") {
				opts.Duration = duration
			}
			if len(categories) > 0 {
				opts.Categories = categories
			}

			target, err := c.target(ctx)
			if err != nil {
				return err
			}
			if err := c.admit(ctx, c.gate.Check(security.OpDiagnostics, "trace"), "trace", target); err != nil {
				return err
			}
			started := time.Now()
			summary, err := diagnostics.CollectTrace(ctx, target, opts)
			c.recordErr(ctx, "trace", target, err, started)
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	}
	f := cmd.Flags()
	f.DurationVar(&duration, "duration", 0, "How long to trace (default from config)")
	f.StringSliceVar(&categories, "categories", nil, "Trace categories (default from config)")
	return cmd
}

// perfOutput adds the screenshot file to the report.
type perfOutput struct {
	Report     *diagnostics.PerfReport `json:"report"`
	Screenshot string                  `json:"screenshot,omitempty"`
}

func (c *cli) perfCmd() *cobra.Command {
	var opts diagnostics.PerfOptions

	cmd := &cobra.Command{
		Use:   "perf",
		Short: "Take a performance snapshot",
		Long: `Reads navigation timing and paint entries, and optionally web vitals,
recent console errors and a screenshot.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			target, err := c.target(ctx)
			if err != nil {
				return err
			}
			if err := c.admit(ctx, c.gate.Check(security.OpDiagnostics, "perf"), "perf", target); err != nil {
				return err
			}
			opts.RequestTimeout = c.cfg.GetRequestTimeout()
			if opts.LogLines <= 0 {
				opts.LogLines = c.cfg.Automation.LogLines
			}
			if opts.CaptureScreenshot {
				opts.Screenshots = command.FromConfig(target, c.cfg)
			}

			started := time.Now()
			report, err := diagnostics.CollectPerformanceSnapshot(ctx, target, opts)
			c.recordErr(ctx, "perf", target, err, started)
			if err != nil {
				return err
			}
			out := perfOutput{Report: report}
			if out.Screenshot, err = c.writeScreenshot("perf", report.Screenshot); err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.IncludeNavigation, "navigation", false, "Include the navigation entry")
	f.BoolVar(&opts.IncludeResources, "resources", false, "Include resource entries")
	f.BoolVar(&opts.IncludeWebVitals, "vitals", false, "Observe web vitals")
	f.BoolVar(&opts.CollectLogs, "logs", false, "Include recent console errors")
	f.BoolVar(&opts.CaptureScreenshot, "screenshot", false, "Capture a screenshot")
	f.IntVar(&opts.LogLines, "log-lines", 0, "Console lines to scan (default from config)")
	return cmd
}
