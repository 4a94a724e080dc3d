package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"devprobe/internal/command"
	"devprobe/internal/diagnostics"
	"devprobe/internal/security"

	"github.com/spf13/cobra"
)

type screenshotOutput struct {
	Path   string `json:"path,omitempty"`
	Format string `json:"format"`
	Bytes  int    `json:"bytes"`
	Data   string `json:"data"`
}

func (c *cli) screenshotCmd() *cobra.Command {
	var out string
	var save bool

	cmd := &cobra.Command{
		Use:   "screenshot",
		Short: "Capture the target window as PNG",
		Long: `Prints the PNG as base64. Nothing is written unless --out names a file or
--save stores it under --screenshot-dir.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			target, err := c.target(ctx)
			if err != nil {
				return err
			}
			if err := c.admit(ctx, c.gate.Check(security.OpScreenshot, "screenshot"), "screenshot", target); err != nil {
				return err
			}
			started := time.Now()
			png, err := command.FromConfig(target, c.cfg).Screenshot(ctx)
			c.recordErr(ctx, "screenshot", target, err, started)
			if err != nil {
				return err
			}

			res := screenshotOutput{Format: "png", Bytes: len(png), Data: base64.StdEncoding.EncodeToString(png)}
			switch {
			case out != "":
				if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
					return fmt.Errorf("failed to create screenshot directory: %w", err)
				}
				if err := os.WriteFile(out, png, 0644); err != nil {
					return fmt.Errorf("failed to write screenshot: %w", err)
				}
				res.Path = out
			case save:
				if res.Path, err = c.writeScreenshot("screenshot", png); err != nil {
					return err
				}
			}
			return printJSON(cmd, res)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&out, "out", "o", "", "Write the PNG to this file")
	f.BoolVar(&save, "save", false, "Write the PNG under --screenshot-dir")
	return cmd
}

type logsOutput struct {
	Lines []string `json:"lines"`
	Count int      `json:"count"`
}

func (c *cli) logsCmd() *cobra.Command {
	var lines int
	var duration, idle time.Duration

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Read console output from the target",
		Long: `Listens to the page console for --duration (or until --idle passes without
output) and prints the last --lines lines as "[timestamp] LEVEL: text".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			target, err := c.target(ctx)
			if err != nil {
				return err
			}
			if err := c.admit(ctx, c.gate.Check(security.OpDiagnostics, "logs"), "logs", target); err != nil {
				return err
			}
			src := diagnostics.ConsoleSource{Target: target, Window: diagnostics.Window{Duration: duration, Idle: idle}}

			started := time.Now()
			got, err := src.Lines(ctx, lines)
			c.recordErr(ctx, "logs", target, err, started)
			if err != nil {
				return err
			}
			if got == nil {
				got = []string{}
			}
			return printJSON(cmd, logsOutput{Lines: got, Count: len(got)})
		},
	}
	f := cmd.Flags()
	f.IntVarP(&lines, "lines", "n", 100, "How many of the latest lines to print")
	f.DurationVar(&duration, "duration", 3*time.Second, "How long to listen")
	f.DurationVar(&idle, "idle", 0, "Stop early after this long without output")
	return cmd
}
