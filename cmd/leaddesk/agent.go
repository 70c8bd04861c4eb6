package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fentz26/leaddesk/internal/models"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage agents",
}

var agentAddCmd = &cobra.Command{
	Use:   "add [handle]",
	Short: "Add an agent",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentAdd,
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agents",
	RunE:  runAgentList,
}

var agentStatusCmd = &cobra.Command{
	Use:   "status [agent-id] [active|hold|deactivated]",
	Short: "Change an agent's status",
	Args:  cobra.ExactArgs(2),
	RunE:  runAgentStatus,
}

var agentRemoveCmd = &cobra.Command{
	Use:   "remove [agent-id]",
	Short: "Delete an agent and release their leads",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentRemove,
}

var (
	agentRole       string
	agentListRole   string
	agentListStatus string
)

func init() {
	agentCmd.AddCommand(agentAddCmd, agentListCmd, agentStatusCmd, agentRemoveCmd)

	agentAddCmd.Flags().StringVar(&agentRole, "as", string(models.RoleTelecaller), "Role of the new agent")
	agentListCmd.Flags().StringVar(&agentListRole, "filter-role", "", "Only list agents with this role")
	agentListCmd.Flags().StringVar(&agentListStatus, "status", "", "Only list agents with this status")
}

func runAgentAdd(cmd *cobra.Command, args []string) error {
	agent, err := apiClient().CreateAgent(cmd.Context(), args[0], models.Role(agentRole))
	if err != nil {
		return err
	}
	fmt.Printf("Created agent %s (%s): %s\n", agent.Handle, agent.Role, agent.ID)
	return nil
}

func runAgentList(cmd *cobra.Command, args []string) error {
	agents, err := apiClient().ListAgents(cmd.Context(), models.Role(agentListRole), models.AgentStatus(agentListStatus))
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		fmt.Println("No agents found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tHANDLE\tROLE\tSTATUS")
	for _, a := range agents {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.Handle, a.Role, a.Status)
	}
	return w.Flush()
}

func runAgentStatus(cmd *cobra.Command, args []string) error {
	if err := apiClient().SetAgentStatus(cmd.Context(), args[0], models.AgentStatus(args[1])); err != nil {
		return err
	}
	fmt.Printf("Agent %s is now %s\n", args[0], args[1])
	return nil
}

func runAgentRemove(cmd *cobra.Command, args []string) error {
	released, err := apiClient().DeleteAgent(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Removed agent %s, released %d leads\n", args[0], released)
	return nil
}
