package cmd

import (
	"decksmith/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new deck generation task",
	Long: `Submit a topic for asynchronous deck generation.

The controller accepts the request immediately and returns a task ID; use
'deckctl status' to follow the pipeline and 'deckctl artifact' to download
the finished archive.

Example:
  deckctl submit --topic "Kubernetes networking" --pages 8
  deckctl submit --topic "Q3 roadmap" --pages 12 --style corporate`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		topic, _ := flags.GetString("topic")
		pages, _ := flags.GetInt("pages")
		style, _ := flags.GetString("style")

		if topic == "" {
			cmd.Println("Error: --topic is required")
			return
		}

		client := NewDeckClient(viper.GetString("url"))

		result, err := client.SubmitDeck(api.SubmitRequest{
			Topic:     topic,
			PageCount: pages,
			Style:     style,
		})
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Submit failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Submit failed: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Deck submitted!\nTask ID: %s\nStatus: %s\n", result.TaskID, result.Status)
	},
}

func init() {
	flags := submitCmd.Flags()
	flags.StringP("topic", "t", "", "Topic to generate a deck for (required)")
	flags.IntP("pages", "p", 6, "Number of slides")
	flags.StringP("style", "s", "", "Visual style (optional)")

	rootCmd.AddCommand(submitCmd)
}
