// Command devprobe drives and inspects a running Chromium or Electron
// application through its remote-debugging port.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"devprobe/internal/audit"
	"devprobe/internal/config"
	"devprobe/internal/logging"
	"devprobe/internal/security"

	"github.com/spf13/cobra"
)

// cli holds global flags and what PersistentPreRunE builds from them.
type cli struct {
	configPath    string
	wsURL         string
	host          string
	port          int
	timeout       time.Duration
	verbose       bool
	screenshotDir string

	cfg     *config.Config
	gate    *security.Gate
	journal *audit.Store
}

// newCLI builds the command tree. The caller runs c.teardown after Execute,
// since cobra skips post-run hooks when a command fails.
func newCLI() (*cli, *cobra.Command) {
	c := &cli{}

	root := &cobra.Command{
		Use:   "devprobe",
		Short: "Drive and inspect a Chromium/Electron app over its debugging port",
		Long: `devprobe talks to a running Chromium-based application (an Electron app,
a browser started with --remote-debugging-port) and lets you:

  - evaluate script in the page and run named UI commands
  - collect network, trace, console and performance diagnostics
  - run multi-step YAML automation scripts

Every result is printed as JSON on stdout.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			c.teardown()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", config.DefaultPath, "Config file")
	flags.StringVar(&c.wsURL, "ws", "", "Target websocket URL (skips discovery)")
	flags.StringVar(&c.host, "host", "", "Debugging host (default from config)")
	flags.IntVarP(&c.port, "port", "p", 0, "Debugging port (default: scan configured ports)")
	flags.DurationVar(&c.timeout, "timeout", 2*time.Minute, "Overall operation timeout")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&c.screenshotDir, "screenshot-dir", ".devprobe/screenshots", "Where screenshots are written")

	root.AddCommand(
		c.evalCmd(),
		c.commandCmd(),
		c.networkCmd(),
		c.traceCmd(),
		c.perfCmd(),
		c.screenshotCmd(),
		c.logsCmd(),
		c.runCmd(),
		c.targetsCmd(),
		c.auditCmd(),
	)
	return c, root
}

// setup loads config, applies flag overrides and starts logging, the gate
// and the journal.
func (c *cli) setup() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.wsURL != "" {
		cfg.Target.WebSocketURL = c.wsURL
	}
	if c.host != "" {
		cfg.Target.Host = c.host
	}
	if c.port > 0 {
		cfg.Target.Ports = []int{c.port}
	}
	if c.verbose {
		cfg.Logging.DebugMode = true
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		return err
	}
	logging.Get(logging.CategoryBoot).Debug("config loaded from %s", c.configPath)

	gate, err := security.NewGate(cfg.Security)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.gate = gate

	if cfg.Audit.Enabled {
		journal, err := audit.Open(cfg.Audit.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open audit journal: %w", err)
		}
		c.journal = journal
	}
	return nil
}

func (c *cli) teardown() {
	if c.journal != nil {
		if err := c.journal.Close(); err != nil {
			logging.Get(logging.CategoryAudit).Warn("failed to close journal: %v", err)
		}
		c.journal = nil
	}
	logging.Sync()
}

// context bounds a command by --timeout and cancels it on SIGINT/SIGTERM.
func (c *cli) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, stop := signalContext(cmd)
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func main() {
	c, root := newCLI()
	err := root.Execute()
	c.teardown()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
