package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aegisai/aegis/pkg/client"
	"github.com/aegisai/aegis/pkg/types"
)

var submitCmd = &cobra.Command{
	Use:   "submit <brief.yaml>",
	Short: "Submit a mission brief for execution",
	Long: `Read a mission brief from a YAML file and submit it to the daemon.

With --dry-run the brief is validated and decomposed but nothing
executes; the response reports the task count and estimated duration.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		priority, _ := cmd.Flags().GetString("priority")

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read brief: %w", err)
		}
		var brief types.MissionBrief
		if err := yaml.Unmarshal(data, &brief); err != nil {
			return fmt.Errorf("failed to parse brief: %w", err)
		}

		resp, err := client.New(serverAddr).SubmitMission(context.Background(), types.SubmitMissionRequest{
			Brief:    brief,
			Priority: types.Priority(priority),
			DryRun:   dryRun,
		})
		if err != nil {
			return err
		}

		if dryRun {
			fmt.Println("Brief is valid (dry run, nothing scheduled)")
		} else {
			fmt.Println("Mission accepted")
		}
		fmt.Printf("  Mission ID: %s\n", resp.MissionID)
		fmt.Printf("  Channel:    %s\n", resp.Channel)
		fmt.Printf("  Tasks:      %d\n", resp.TotalTasks)
		fmt.Printf("  Estimate:   %s\n", time.Duration(resp.EstimatedDurationMs)*time.Millisecond)
		return nil
	},
}

var missionsCmd = &cobra.Command{
	Use:   "missions",
	Short: "List known missions",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := client.New(serverAddr).ListMissions(context.Background())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tPROGRESS\tAGENTS")
		for _, m := range resp.Missions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%d\n", m.ID, m.Title, m.Status, m.Progress, m.AgentCount)
		}
		return w.Flush()
	},
}

var missionCmd = &cobra.Command{
	Use:   "mission <mission-id>",
	Short: "Show one mission's full state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := client.New(serverAddr).GetMission(context.Background(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Mission:   %s\n", view.ID)
		fmt.Printf("Title:     %s\n", view.Brief.Title)
		fmt.Printf("Status:    %s\n", view.Status)
		fmt.Printf("Progress:  %d%%\n", view.Progress)
		if view.Reason != "" {
			fmt.Printf("Reason:    %s\n", view.Reason)
		}
		if view.Workspace != "" {
			fmt.Printf("Workspace: %s\n", view.Workspace)
		}
		fmt.Printf("Tasks:     %d pending, %d in progress, %d completed, %d failed\n",
			view.Counters.Pending, view.Counters.InProgress, view.Counters.Completed, view.Counters.Failed)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "\nTASK\tTYPE\tPRIORITY\tSTATUS\tRETRIES\tTITLE")
		for _, t := range view.Tasks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\n",
				t.ID, t.Type, t.Priority, t.Status, t.RetryCount, t.MaxRetries, t.Title)
		}
		if len(view.Agents) > 0 {
			fmt.Fprintln(w, "\nAGENT\tSLOT\tSTATUS\tPROGRESS")
			for _, a := range view.Agents {
				fmt.Fprintf(w, "%s\t%d\t%s\t%d%%\n", a.ID, a.SlotIndex, a.Status, a.Progress)
			}
		}
		return w.Flush()
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <mission-id>",
	Short: "Cancel a running mission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")

		resp, err := client.New(serverAddr).CancelMission(context.Background(), args[0], reason)
		if err != nil {
			return err
		}
		if resp.Note != "" {
			fmt.Printf("Mission %s: %s\n", args[0], resp.Note)
		} else {
			fmt.Printf("Mission %s cancelled\n", args[0])
		}
		return nil
	},
}

var swarmCmd = &cobra.Command{
	Use:   "swarm",
	Short: "Show the worker pool state",
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := client.New(serverAddr).GetSwarm(context.Background())
		if err != nil {
			return err
		}

		fmt.Printf("Slots: %d total, %d available, %d active agents\n",
			view.TotalSlots, view.AvailableSlots, view.ActiveAgents)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SLOT\tSTATUS\tAGENT\tTASK\tPROGRESS\tCOMPLETED\tFAILED")
		for _, sl := range view.Slots {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d%%\t%d\t%d\n",
				sl.Index, sl.Status, sl.AgentID, sl.TaskTitle, sl.Progress,
				sl.Metrics.TasksCompleted, sl.Metrics.TasksFailed)
		}
		return w.Flush()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon health",
	RunE: func(cmd *cobra.Command, args []string) error {
		health, err := client.New(serverAddr).Health(context.Background())
		if err != nil {
			return err
		}

		fmt.Printf("Healthy:         %v\n", health.Healthy)
		fmt.Printf("Version:         %s\n", health.Version)
		fmt.Printf("Uptime:          %s\n", time.Duration(health.UptimeSec)*time.Second)
		fmt.Printf("Workers:         %d/%d active\n", health.ActiveWorkers, health.TotalWorkers)
		fmt.Printf("Active missions: %d\n", health.ActiveMissions)
		return nil
	},
}

func init() {
	submitCmd.Flags().Bool("dry-run", false, "validate and decompose without executing")
	submitCmd.Flags().String("priority", "", "mission priority: low, medium, high, critical")
	cancelCmd.Flags().String("reason", "", "cancellation reason recorded on the mission")
}
