package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RealSaake/SkillBridge-sub000/internal/fault"
)

var classifyJSON bool

var classifyCmd = &cobra.Command{
	Use:   "classify MESSAGE...",
	Short: "Classify failure messages into fault kinds",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		type row struct {
			Message   string     `json:"message"`
			Kind      fault.Kind `json:"kind"`
			Retriable bool       `json:"retriable"`
		}
		rows := make([]row, 0, len(args))
		for _, msg := range args {
			k := fault.ClassifyMessage(msg)
			rows = append(rows, row{Message: msg, Kind: k, Retriable: k.Retriable()})
		}

		out := cmd.OutOrStdout()
		if classifyJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}
		for _, r := range rows {
			retry := "auto-retry"
			if !r.Retriable {
				retry = "manual"
			}
			fmt.Fprintf(out, "%-10s %-10s %s\n", r.Kind, retry, strings.TrimSpace(r.Message))
		}
		return nil
	},
}

func init() {
	classifyCmd.Flags().BoolVar(&classifyJSON, "json", false, "print JSON")
	rootCmd.AddCommand(classifyCmd)
}
