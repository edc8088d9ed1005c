package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/wayfinder/internal/events"
	"github.com/ShayCichocki/wayfinder/internal/logging"
	"github.com/ShayCichocki/wayfinder/internal/sandbox"
	"github.com/ShayCichocki/wayfinder/internal/synth"
	"github.com/ShayCichocki/wayfinder/internal/tui"
)

var (
	planMode     string
	planFragment bool
	planJSON     bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Work with plan programs",
}

var planCheckCmd = &cobra.Command{
	Use:   "check <file.star>",
	Short: "Run a plan program in the sandbox and show the resulting plan",
	Long: `Execute a plan program the way a session would and print the plan it builds.

With --fragment the file holds only the statements a synthesis pass would
generate; it is spliced into the standard scaffold before running. With
--mode the file is also checked for plan methods that mode may not call.

Exits non-zero when the program fails or the plan does not validate.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlanCheck,
}

func init() {
	planCheckCmd.Flags().StringVar(&planMode, "mode", "", "Check method usage for a synthesis mode (additive or subtractive)")
	planCheckCmd.Flags().BoolVar(&planFragment, "fragment", false, "Treat the file as a fragment and wrap it in the scaffold")
	planCheckCmd.Flags().BoolVar(&planJSON, "json", false, "Print the plan as JSON")
	planCmd.AddCommand(planCheckCmd)
}

func parseMode(s string) (synth.Mode, error) {
	switch strings.ToLower(s) {
	case "additive", "add":
		return synth.Additive, nil
	case "subtractive", "sub":
		return synth.Subtractive, nil
	default:
		return 0, fmt.Errorf("unknown mode %q (want additive or subtractive)", s)
	}
}

func runPlanCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read plan program: %w", err)
	}
	src := string(data)
	out := cmd.OutOrStdout()

	if planMode != "" {
		mode, err := parseMode(planMode)
		if err != nil {
			return err
		}
		violations, err := sandbox.CheckFragment(src, mode.Allowed())
		if err != nil {
			return fmt.Errorf("parse plan program: %w", err)
		}
		if len(violations) > 0 {
			for _, v := range violations {
				fmt.Fprintf(out, "%s %s\n", color.RedString("✗"), v)
			}
			return fmt.Errorf("%d method(s) not allowed in %s mode", len(violations), mode)
		}
	}
	if planFragment {
		src = synth.Wrap(src)
	}

	runner := sandbox.NewRunner(sandbox.Config{
		MaxSteps: cfg.Sandbox.MaxSteps,
		Timeout:  cfg.Sandbox.Timeout,
	}, events.Discard, logging.Discard())
	g, err := runner.Run(context.Background(), src)
	if err != nil {
		var execErr *sandbox.ExecutionError
		if errors.As(err, &execErr) {
			fmt.Fprintln(out, color.RedString("✗ %s", execErr.Message))
			if execErr.Backtrace != "" {
				fmt.Fprintln(out, execErr.Backtrace)
			}
		}
		return err
	}

	snap := g.Snapshot()
	if planJSON {
		fmt.Fprintln(out, g.Serialize())
	} else {
		fmt.Fprintln(out, tui.RenderPlan(snap))
	}
	if !snap.Validation.Valid {
		return fmt.Errorf("plan has %d validation issue(s)", len(snap.Validation.Issues))
	}
	return nil
}
