package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the dashboard summary",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	st, err := apiClient().Stats(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Leads:       %d total, %d assigned, %d unassigned\n", st.TotalLeads, st.AssignedLeads, st.UnassignedLeads)
	fmt.Printf("By status:   fresh=%d in_progress=%d converted=%d\n",
		st.LeadsByStatus["fresh"], st.LeadsByStatus["in_progress"], st.LeadsByStatus["converted"])
	fmt.Printf("Projects:    %d\n", st.Projects)
	fmt.Printf("Visits today: %d\n", st.SiteVisitsToday)

	if len(st.AgentLoads) == 0 {
		return nil
	}
	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tASSIGNED\tCONVERTED")
	for _, l := range st.AgentLoads {
		fmt.Fprintf(w, "%s\t%d\t%d\n", l.Handle, l.Assigned, l.Converted)
	}
	return w.Flush()
}
