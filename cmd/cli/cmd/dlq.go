package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Manage the Dead Letter Queue (DLQ)",
	Long:  `Inspect and requeue tasks that have permanently failed after exceeding their retry limit.`,
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List failed tasks in the DLQ",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewDeckClient(viper.GetString("url"))

		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		// Fetch DLQ items with pagination
		items, err := client.ListDeadletters(limit, offset)
		if err != nil {
			cmd.Printf("Error fetching DLQ: %s\n", err)
			os.Exit(1)
		}

		if len(items) == 0 {
			if offset > 0 {
				cmd.Println("No more tasks found in DLQ.")
			} else {
				cmd.Println("No tasks found in DLQ.")
			}
			return
		}

		// Print table
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "TASK ID\tDELIVERIES\tFAILED AT\tREASON")
		for _, item := range items {
			// Truncate long reasons for the table view
			reason := item.Reason
			if len(reason) > 50 {
				reason = reason[:47] + "..."
			}

			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
				item.TaskID,
				item.Deliveries,
				item.FailedAt.Format(time.RFC3339),
				reason,
			)
		}
		w.Flush()
	},
}

var dlqRetryCmd = &cobra.Command{
	Use:   "retry [task_id]",
	Short: "Requeue a specific task from the DLQ",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		taskID := args[0]
		client := NewDeckClient(viper.GetString("url"))

		if err := client.RetryDeadletter(taskID); err != nil {
			cmd.Printf("Error retrying task: %s\n", err)
			os.Exit(1)
		}

		cmd.Printf("✓ Task %s requeued successfully.\n", taskID)
	},
}

func init() {
	rootCmd.AddCommand(dlqCmd)
	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqRetryCmd)

	dlqListCmd.Flags().IntP("limit", "l", 20, "Number of items demanded in the DLQ list")
	dlqListCmd.Flags().IntP("offset", "o", 0, "Offset for pagination")
}
