package main

import (
	"errors"

	"devprobe/internal/cdp"
	"devprobe/internal/discovery"

	"github.com/spf13/cobra"
)

// portTargets is what one debugging port advertises.
type portTargets struct {
	Port    int               `json:"port"`
	Targets []cdp.DebugTarget `json:"targets,omitempty"`
	Error   string            `json:"error,omitempty"`
}

func (c *cli) targetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List debuggable targets on the configured ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			if c.cfg.Target.WebSocketURL != "" {
				return printJSON(cmd, []cdp.DebugTarget{discovery.Target(c.cfg.Target.WebSocketURL)})
			}

			r := discovery.NewResolver(c.cfg.GetDiscoveryTimeout())
			out := make([]portTargets, 0, len(c.cfg.Target.Ports))
			found := false
			for _, port := range c.cfg.Target.Ports {
				targets, err := r.List(ctx, c.cfg.Target.Host, port)
				pt := portTargets{Port: port, Targets: targets}
				if err != nil {
					pt.Error = err.Error()
				}
				found = found || len(targets) > 0
				out = append(out, pt)
			}
			if err := printJSON(cmd, out); err != nil {
				return err
			}
			if !found {
				return discovery.ErrNoTarget
			}
			return nil
		},
	}
}

func (c *cli) auditCmd() *cobra.Command {
	var limit int
	var runID string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recently journaled operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.journal == nil {
				return errors.New("audit journal is disabled (set audit.enabled or DEVPROBE_DB)")
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			if runID != "" {
				entries, err := c.journal.Run(ctx, runID)
				if err != nil {
					return err
				}
				return printJSON(cmd, entries)
			}
			entries, err := c.journal.Recent(ctx, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, entries)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "How many entries to show")
	cmd.Flags().StringVar(&runID, "run", "", "Show every entry of one automation run")
	return cmd
}
