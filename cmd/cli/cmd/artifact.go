package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var artifactCmd = &cobra.Command{
	Use:   "artifact [task_id]",
	Short: "Get the download link for a completed deck",
	Long: `Fetch a time-limited download URL for the compiled deck archive.

The artifact is only available once the task reaches COMPLETED; for tasks still
in flight the controller responds with a conflict.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		taskID := args[0]
		client := NewDeckClient(viper.GetString("url"))

		artifact, err := client.GetArtifact(taskID)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Artifact unavailable (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Artifact unavailable: %v\n", err)
			}
			return
		}

		cmd.Printf("%s %sDeck Artifact%s\n", colorGreen+"✓"+colorReset, colorBold, colorReset)
		cmd.Println("──────────────────────────────")
		cmd.Printf("%sTask ID:%s     %s\n", colorDim, colorReset, artifact.TaskID)
		cmd.Printf("%sSlides:%s      %d\n", colorDim, colorReset, artifact.SlideCount)
		cmd.Printf("%sSize:%s        %d bytes\n", colorDim, colorReset, artifact.SizeBytes)
		cmd.Printf("%sExpires:%s     %s\n", colorDim, colorReset, artifact.ExpiresAt.Format(time.RFC3339))
		cmd.Printf("%sDownload:%s    %s\n", colorDim, colorReset, artifact.DownloadURL)
	},
}

func init() {
	rootCmd.AddCommand(artifactCmd)
}
