package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fentz26/leaddesk/internal/allocation"
	"github.com/fentz26/leaddesk/internal/formatter"
	"github.com/fentz26/leaddesk/internal/importer"
)

var planCmd = &cobra.Command{
	Use:   "plan [file] [name=weight...]",
	Short: "Plan a distribution for a spreadsheet without a server",
	Long: `Reads an .xlsx or .csv lead file and prints how its rows would be split
between the named targets. Nothing is stored.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runPlan,
}

var (
	planMode     string
	planFormat   string
	planSkipRows int
	planSheet    int
)

func init() {
	planCmd.Flags().StringVar(&planMode, "mode", "", "count or percentage (default: inferred)")
	planCmd.Flags().StringVarP(&planFormat, "output", "o", formatter.FormatText, "Output format: text, json, yaml or csv")
	planCmd.Flags().IntVar(&planSkipRows, "skip-rows", 1, "Header rows to skip")
	planCmd.Flags().IntVar(&planSheet, "sheet", 0, "Worksheet index for .xlsx files")
}

func runPlan(cmd *cobra.Command, args []string) error {
	reqs, err := allocation.ParseShares(args[1:])
	if err != nil {
		return err
	}

	rows, err := importer.ReadFile(args[0], importer.Options{SheetIndex: planSheet, SkipRows: planSkipRows})
	if err != nil {
		return err
	}
	zap.L().Debug("read lead file", zap.String("path", args[0]), zap.Int("rows", len(rows.Rows)), zap.Int("skipped", rows.Skipped))

	mode := allocation.InferMode(reqs)
	if planMode != "" {
		if mode, err = allocation.ParseMode(planMode); err != nil {
			return err
		}
	}

	plan, err := allocation.Allocate(len(rows.Rows), reqs, mode)
	if err != nil {
		return err
	}
	out, err := formatter.Format(plan, nil, planFormat)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}
