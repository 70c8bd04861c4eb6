package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/fentz26/leaddesk/internal/crm"
	"github.com/fentz26/leaddesk/internal/models"
)

var callbackCmd = &cobra.Command{
	Use:   "callback",
	Short: "List and reschedule callbacks",
}

var callbackListCmd = &cobra.Command{
	Use:   "list",
	Short: "List callbacks",
	RunE:  runCallbackList,
}

var callbackRescheduleCmd = &cobra.Command{
	Use:   "reschedule [callback-id] [due]",
	Short: "Move a callback to a new time (RFC 3339 or \"2006-01-02 15:04\" local)",
	Args:  cobra.ExactArgs(2),
	RunE:  runCallbackReschedule,
}

var (
	callbackAgent  string
	callbackStatus string
	callbackNote   string
)

func init() {
	callbackCmd.AddCommand(callbackListCmd, callbackRescheduleCmd)

	callbackListCmd.Flags().StringVar(&callbackAgent, "agent", "", "Filter by agent ID")
	callbackListCmd.Flags().StringVar(&callbackStatus, "status", "", "pending (default), done, canceled or all")

	callbackRescheduleCmd.Flags().StringVar(&callbackNote, "note", "", "Replace the callback note")
}

func runCallbackList(cmd *cobra.Command, args []string) error {
	callbacks, err := apiClient().ListCallbacks(cmd.Context(), callbackAgent, callbackStatus)
	if err != nil {
		return err
	}
	if len(callbacks) == 0 {
		fmt.Println("No callbacks found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDUE\tLEAD\tAGENT\tSTATUS\tNOTE")
	for _, cb := range callbacks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			cb.ID, cb.DueAt.Local().Format("2006-01-02 15:04"), cb.LeadID, cb.AgentID, cb.Status, truncate(cb.Note, 40))
	}
	return w.Flush()
}

func runCallbackReschedule(cmd *cobra.Command, args []string) error {
	due, err := parseDue(args[1])
	if err != nil {
		return err
	}
	in := crm.CallbackUpdate{DueAt: &due}
	if cmd.Flags().Changed("note") {
		in.Note = &callbackNote
	}
	// Rescheduling reopens a finished callback.
	pending := models.CallbackPending
	in.Status = &pending

	cb, err := apiClient().UpdateCallback(cmd.Context(), args[0], in)
	if err != nil {
		return err
	}
	fmt.Printf("Callback %s due %s\n", cb.ID, cb.DueAt.Local().Format("2006-01-02 15:04"))
	return nil
}

func parseDue(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, eris.Errorf("due time %q is neither RFC 3339 nor \"2006-01-02 15:04\"", s)
}
