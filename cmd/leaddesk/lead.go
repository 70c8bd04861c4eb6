package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/fentz26/leaddesk/internal/client"
)

var leadCmd = &cobra.Command{
	Use:   "lead",
	Short: "Work leads",
}

var leadListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads",
	RunE:  runLeadList,
}

var leadShowCmd = &cobra.Command{
	Use:   "show [lead-id]",
	Short: "Show a lead and its call history",
	Args:  cobra.ExactArgs(1),
	RunE:  runLeadShow,
}

var leadOutcomeCmd = &cobra.Command{
	Use:   "outcome [lead-id] [connected|missed]",
	Short: "Record a call attempt",
	Args:  cobra.ExactArgs(2),
	RunE:  runLeadOutcome,
}

var (
	leadQuery     client.LeadQuery
	outcomeReason string
)

func init() {
	leadCmd.AddCommand(leadListCmd, leadShowCmd, leadOutcomeCmd)

	leadListCmd.Flags().StringVar(&leadQuery.Status, "status", "", "Filter by status (fresh, in_progress, converted)")
	leadListCmd.Flags().StringVar(&leadQuery.AssignedTo, "assigned-to", "", "Filter by owning agent ID")
	leadListCmd.Flags().StringVar(&leadQuery.BatchID, "batch", "", "Filter by batch ID")
	leadListCmd.Flags().BoolVar(&leadQuery.Unassigned, "unassigned", false, "Only leads without an owner")
	leadListCmd.Flags().StringSliceVar(&leadQuery.Stages, "stage", nil, "Filter by latest call stage (repeatable, e.g. connected,warm)")
	leadListCmd.Flags().StringVarP(&leadQuery.Search, "search", "q", "", "Match a substring of the name or phone")
	leadListCmd.Flags().IntVar(&leadQuery.Limit, "limit", 0, "Maximum number of leads")

	leadOutcomeCmd.Flags().StringVar(&outcomeReason, "reason", "", "Why the call did not connect")
}

func runLeadList(cmd *cobra.Command, args []string) error {
	leads, err := apiClient().ListLeads(cmd.Context(), leadQuery)
	if err != nil {
		return err
	}
	if len(leads) == 0 {
		fmt.Println("No leads found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPHONE\tSTATUS\tASSIGNED TO")
	for _, l := range leads {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", l.ID, truncate(l.Name, 30), l.Phone, l.Status, l.AssignedTo)
	}
	return w.Flush()
}

func runLeadShow(cmd *cobra.Command, args []string) error {
	lead, err := apiClient().GetLead(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("ID:          %s\n", lead.ID)
	fmt.Printf("Name:        %s\n", lead.Name)
	fmt.Printf("Phone:       %s\n", lead.Phone)
	fmt.Printf("Status:      %s\n", lead.Status)
	if lead.PropertyType != "" {
		fmt.Printf("Property:    %s\n", lead.PropertyType)
	}
	if lead.AssignedTo != "" {
		fmt.Printf("Assigned To: %s\n", lead.AssignedTo)
	}
	fmt.Printf("Batch:       %s #%d\n", lead.BatchID, lead.Seq)

	if len(lead.Notes) > 0 {
		fmt.Println("\nHistory:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, n := range lead.Notes {
			fmt.Fprintf(w, "  %s\t%s\t%s\n", n.CreatedAt.Local().Format("2006-01-02 15:04"), n.Stage, n.Remarks)
		}
		return w.Flush()
	}
	return nil
}

func runLeadOutcome(cmd *cobra.Command, args []string) error {
	var connected bool
	switch args[1] {
	case "connected":
		connected = true
	case "missed":
	default:
		return eris.Errorf("outcome must be connected or missed, got %q", args[1])
	}

	note, err := apiClient().RecordOutcome(cmd.Context(), args[0], connected, outcomeReason)
	if err != nil {
		return err
	}
	fmt.Printf("Recorded %s on lead %s: %s\n", note.Stage, args[0], note.Remarks)
	return nil
}
