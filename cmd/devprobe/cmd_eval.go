package main

import (
	"fmt"
	"strings"
	"time"

	"devprobe/internal/command"
	"devprobe/internal/security"
	"devprobe/internal/translate"

	"github.com/spf13/cobra"
)

func (c *cli) evalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "eval <script>",
		Short: "Evaluate script in the target page",
		Long: `Evaluates script in the page through the guarded eval wrapper and prints
the structured outcome. Arguments are joined with spaces.

Example:
  devprobe eval 'document.querySelectorAll("button").length'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			code := strings.Join(args, " ")
			target, err := c.target(ctx)
			if err != nil {
				return err
			}
			if err := c.admit(ctx, c.gate.Check(security.OpEval, code), "eval", target); err != nil {
				return err
			}

			started := time.Now()
			out := command.FromConfig(target, c.cfg).Evaluate(ctx, code)
			c.record(ctx, "", "eval", target, outcomeStatus(out), out.Message, started)
			if err := printJSON(cmd, out); err != nil {
				return err
			}
			if out.Failed() {
				return errFailed
			}
			return nil
		},
	}
}

func (c *cli) commandCmd() *cobra.Command {
	var args translate.Args
	cmd := &cobra.Command{
		Use:   "command <verb>",
		Short: "Run one named UI command",
		Long: fmt.Sprintf(`Runs one named command in the page.

Known commands: %s

Example:
  devprobe command click_by_text --text "Save"
  devprobe command fill_input --placeholder "Email" --value ada@example.com
  devprobe command send_keyboard_shortcut --text Ctrl+Shift+N`, strings.Join(translate.KnownVerbs(), ", ")),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			verb, err := translate.ParseVerb(argv[0])
			if err != nil {
				return err
			}
			target, err := c.target(ctx)
			if err != nil {
				return err
			}
			if err := c.admit(ctx, c.gate.CheckArgs(security.OpCommand, string(verb), args), string(verb), target); err != nil {
				return err
			}

			started := time.Now()
			out := command.FromConfig(target, c.cfg).Execute(ctx, verb, args)
			c.record(ctx, "", string(verb), target, outcomeStatus(out), out.Message, started)
			if err := printJSON(cmd, out); err != nil {
				return err
			}
			if out.Failed() {
				return errFailed
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&args.Selector, "selector", "", "CSS selector")
	f.StringVar(&args.Text, "text", "", "Visible text, URL fragment, hash or shortcut")
	f.StringVar(&args.Value, "value", "", "Value to fill or select, or a wait timeout in ms")
	f.StringVar(&args.Placeholder, "placeholder", "", "Input placeholder")
	f.StringVar(&args.Message, "message", "", "Message for console_log")
	f.StringVar(&args.Code, "code", "", "Script for eval")
	return cmd
}
