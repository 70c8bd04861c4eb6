package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fentz26/leaddesk/internal/allocation"
	"github.com/fentz26/leaddesk/internal/formatter"
	"github.com/fentz26/leaddesk/internal/models"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Import and distribute lead batches",
}

var batchImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Upload an .xlsx or .csv file as a new batch",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatchImport,
}

var batchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List batches",
	RunE:  runBatchList,
}

var batchPlanCmd = &cobra.Command{
	Use:   "plan [batch-id] [handle=weight...]",
	Short: "Preview how a batch would be distributed",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runBatchPlan,
}

var batchAssignCmd = &cobra.Command{
	Use:   "assign [batch-id] [handle=weight...]",
	Short: "Distribute a batch's unassigned leads",
	Long: `Distribute a batch's unassigned leads in upload order.

In count mode each weight is a number of leads and any remainder stays
unassigned. In percentage mode the weights are shares of the whole batch.
Without --mode, weights that are all 100 or less are read as percentages.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runBatchAssign,
}

var (
	autoAssign   bool
	assignMode   string
	assignRole   string
	outputFormat string
)

func init() {
	batchCmd.AddCommand(batchImportCmd, batchListCmd, batchPlanCmd, batchAssignCmd)

	batchImportCmd.Flags().BoolVar(&autoAssign, "auto-assign", false, "Spread the batch round-robin over active managers")

	for _, c := range []*cobra.Command{batchPlanCmd, batchAssignCmd} {
		c.Flags().StringVar(&assignMode, "mode", "", "count or percentage (default: inferred)")
	}
	batchPlanCmd.Flags().StringVarP(&outputFormat, "output", "o", formatter.FormatText, "Output format: text, json, yaml or csv")
	batchAssignCmd.Flags().StringVar(&assignRole, "only-role", "", "Reject targets that do not hold this role")
}

func runBatchImport(cmd *cobra.Command, args []string) error {
	res, err := apiClient().UploadBatch(cmd.Context(), args[0], autoAssign)
	if err != nil {
		return err
	}
	fmt.Printf("Batch %s: %d leads imported, %d rows skipped\n", res.Batch.ID, res.Imported, res.Skipped)
	if res.AutoAssigned != nil {
		fmt.Printf("Auto-assigned %d leads across %d managers\n", res.AutoAssigned.Assigned, len(res.AutoAssigned.Plan.Entries))
	}
	return nil
}

func runBatchList(cmd *cobra.Command, args []string) error {
	batches, err := apiClient().ListBatches(cmd.Context())
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		fmt.Println("No batches found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSOURCE\tLEADS\tCREATED")
	for _, b := range batches {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", b.ID, truncate(b.Source, 40), b.LeadCount, b.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runBatchPlan(cmd *cobra.Command, args []string) error {
	c := apiClient()
	reqs, err := allocation.ParseShares(args[1:])
	if err != nil {
		return err
	}
	if reqs, err = c.ResolveHandles(cmd.Context(), reqs); err != nil {
		return err
	}

	plan, err := c.PlanBatch(cmd.Context(), args[0], assignMode, reqs)
	if err != nil {
		return err
	}
	agents, err := c.ListAgents(cmd.Context(), "", "")
	if err != nil {
		return err
	}

	out, err := formatter.Format(plan, handleLabels(agents), outputFormat)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func runBatchAssign(cmd *cobra.Command, args []string) error {
	c := apiClient()
	reqs, err := allocation.ParseShares(args[1:])
	if err != nil {
		return err
	}
	if reqs, err = c.ResolveHandles(cmd.Context(), reqs); err != nil {
		return err
	}

	res, err := c.AssignBatch(cmd.Context(), args[0], assignMode, reqs, models.Role(assignRole))
	if err != nil {
		return err
	}
	fmt.Printf("Assigned %d leads from batch %s (%s mode)\n", res.Assigned, res.BatchID, res.Mode)
	if res.Leftover > 0 {
		fmt.Printf("%d leads left unassigned\n", res.Leftover)
	}
	return nil
}

func handleLabels(agents []models.Agent) map[string]string {
	labels := make(map[string]string, len(agents))
	for _, a := range agents {
		labels[a.ID] = a.Handle
	}
	return labels
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
