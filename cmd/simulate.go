package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/RealSaake/SkillBridge-sub000/internal/recovery"
	"github.com/RealSaake/SkillBridge-sub000/internal/scenario"
)

var simulateList bool

var simulateCmd = &cobra.Command{
	Use:   "simulate [SCENARIO|FILE]...",
	Short: "Replay scripted failure scenarios on a manual clock",
	Long:  "Replays YAML failure scenarios against a recovery controller driven by a manual clock. Arguments name built-in scenarios or YAML files; with none, every built-in scenario runs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if simulateList {
			for _, name := range scenario.Builtins() {
				fmt.Fprintln(out, name)
			}
			return nil
		}
		if err := cfg.Validate("simulate"); err != nil {
			return err
		}
		if len(args) == 0 {
			args = scenario.Builtins()
		}

		var failed []string
		for _, arg := range args {
			sc, err := scenario.Load(arg)
			if err != nil {
				return err
			}
			res, err := scenario.Run(sc, cfg.Recovery, recovery.NewZapSink(nil))
			if err != nil {
				return eris.Wrapf(err, "simulate %s", sc.Name)
			}
			printResult(out, res)
			if !res.Passed() {
				failed = append(failed, sc.Name)
			}
		}
		if len(failed) > 0 {
			return eris.Errorf("simulate: failed scenarios: %s", strings.Join(failed, ", "))
		}
		return nil
	},
}

func printResult(w io.Writer, res *scenario.Result) {
	sc := res.Scenario
	fmt.Fprintf(w, "== %s", sc.Name)
	if sc.Description != "" {
		fmt.Fprintf(w, ": %s", sc.Description)
	}
	fmt.Fprintln(w)

	for _, e := range res.Entries {
		if e.Command == "expect" {
			continue
		}
		line := fmt.Sprintf("  t+%-6s %-8s %s", e.Elapsed, e.Command, e.Arg)
		if e.Err != nil {
			line += fmt.Sprintf(" (error: %v)", e.Err)
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
		for _, s := range e.Snapshots {
			fmt.Fprintf(w, "           -> %s\n", s)
		}
	}

	if res.Passed() {
		fmt.Fprintln(w, "  PASS")
		return
	}
	for _, f := range res.Failures {
		fmt.Fprintf(w, "  FAIL %s\n", f)
	}
}

func init() {
	simulateCmd.Flags().BoolVar(&simulateList, "list", false, "list built-in scenarios")
	rootCmd.AddCommand(simulateCmd)
}
