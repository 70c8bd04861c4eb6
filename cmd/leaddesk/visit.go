package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fentz26/leaddesk/internal/crm"
)

var visitCmd = &cobra.Command{
	Use:   "visit",
	Short: "List and reschedule site visits",
}

var visitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List site visits",
	RunE:  runVisitList,
}

var visitMoveCmd = &cobra.Command{
	Use:   "move [visit-id] [YYYY-MM-DD]",
	Short: "Move a site visit to another date",
	Args:  cobra.ExactArgs(2),
	RunE:  runVisitMove,
}

var (
	visitQuery crm.SiteVisitQuery
	visitNotes string
)

func init() {
	visitCmd.AddCommand(visitListCmd, visitMoveCmd)

	visitListCmd.Flags().StringVar(&visitQuery.Scope, "scope", crm.ScopeUpcoming, "upcoming, past, today or all")
	visitListCmd.Flags().StringVar(&visitQuery.Date, "date", "", "Only visits on this date (YYYY-MM-DD)")
	visitListCmd.Flags().StringVar(&visitQuery.AgentID, "agent", "", "Only visits for leads owned by this agent")

	visitMoveCmd.Flags().StringVar(&visitNotes, "notes", "", "Replace the visit notes")
}

func runVisitList(cmd *cobra.Command, args []string) error {
	visits, err := apiClient().ListSiteVisits(cmd.Context(), visitQuery)
	if err != nil {
		return err
	}
	if len(visits) == 0 {
		fmt.Println("No site visits found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tLEAD\tPROJECT\tNOTES")
	for _, v := range visits {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", v.ID, v.VisitDate, v.LeadID, v.ProjectID, truncate(v.Notes, 40))
	}
	return w.Flush()
}

func runVisitMove(cmd *cobra.Command, args []string) error {
	in := crm.SiteVisitUpdate{VisitDate: &args[1]}
	if cmd.Flags().Changed("notes") {
		in.Notes = &visitNotes
	}
	v, err := apiClient().UpdateSiteVisit(cmd.Context(), args[0], in)
	if err != nil {
		return err
	}
	fmt.Printf("Site visit %s moved to %s\n", v.ID, v.VisitDate)
	return nil
}
