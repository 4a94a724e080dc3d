package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"devprobe/internal/audit"
	"devprobe/internal/cdp"
	"devprobe/internal/discovery"
	"devprobe/internal/logging"
	"devprobe/internal/security"
	"devprobe/internal/translate"

	"github.com/spf13/cobra"
)

// errFailed marks a command whose JSON result was printed but reports failure.
var errFailed = errors.New("operation failed")

// target resolves the debug target: --ws/config URL first, then discovery.
func (c *cli) target(ctx context.Context) (cdp.DebugTarget, error) {
	if c.cfg.Target.WebSocketURL != "" {
		return discovery.Target(c.cfg.Target.WebSocketURL), nil
	}
	r := discovery.NewResolver(c.cfg.GetDiscoveryTimeout())
	return r.Resolve(ctx, c.cfg.Target.Host, c.cfg.Target.Ports)
}

// admit runs the gate and journals refusals.
func (c *cli) admit(ctx context.Context, d security.Decision, op string, target cdp.DebugTarget) error {
	if d.Allowed {
		if d.Risk == security.RiskHigh {
			logging.Get(logging.CategorySecurity).Warn("%s allowed with high risk: %s", op, d.Reason)
		}
		return nil
	}
	c.record(ctx, "", op, target, audit.StatusBlocked, d.Reason, time.Now())
	return fmt.Errorf("%s blocked: %s", op, d.Reason)
}

// record journals one operation when the journal is enabled.
func (c *cli) record(ctx context.Context, runID, op string, target cdp.DebugTarget, status audit.Status, detail string, started time.Time) {
	if c.journal == nil {
		return
	}
	_, err := c.journal.Record(ctx, audit.Entry{
		RunID:      runID,
		Operation:  op,
		Target:     target.ID,
		Status:     status,
		Detail:     detail,
		DurationMs: time.Since(started).Milliseconds(),
	})
	if err != nil {
		logging.Get(logging.CategoryAudit).Warn("%v", err)
	}
}

func (c *cli) recordErr(ctx context.Context, op string, target cdp.DebugTarget, err error, started time.Time) {
	if err != nil {
		c.record(ctx, "", op, target, audit.StatusFailure, err.Error(), started)
		return
	}
	c.record(ctx, "", op, target, audit.StatusSuccess, "", started)
}

func outcomeStatus(o translate.Outcome) audit.Status {
	if o.Failed() {
		return audit.StatusFailure
	}
	return audit.StatusSuccess
}

// writeScreenshot stores png under --screenshot-dir and returns its path.
func (c *cli) writeScreenshot(name string, png []byte) (string, error) {
	if len(png) == 0 {
		return "", nil
	}
	if err := os.MkdirAll(c.screenshotDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	path := filepath.Join(c.screenshotDir, fmt.Sprintf("%s-%s.png", name, time.Now().Format("20060102-150405.000")))
	if err := os.WriteFile(path, png, 0644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	return path, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
