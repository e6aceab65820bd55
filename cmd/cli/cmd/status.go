package cmd

import (
	"decksmith/pkg/api"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status [task_id]",
	Short: "Get status of a generation task",
	Long:  `Retrieve detailed status information for a deck generation task, including the pipeline stage it is in (PENDING, OUTLINE, CONTENT, IMAGES, COMPILE, COMPLETED, FAILED), progress, and timestamps.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		taskID := args[0]

		url := viper.GetString("url")

		endpoint := fmt.Sprintf("%s/v1/decks/%s", url, taskID)
		req, err := http.NewRequest(http.MethodGet, endpoint, nil)
		if err != nil {
			cmd.Printf("Failed to create request: %v\n", err)
			return
		}
		req.Header.Add("Content-Type", "application/json")

		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			cmd.Printf("Failed to send request: %v\n", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			cmd.Printf("Request failed with status code: %d\n", resp.StatusCode)
			return
		}

		body, _ := io.ReadAll(resp.Body)

		var task api.TaskResponse
		if err := json.Unmarshal(body, &task); err != nil {
			cmd.Printf("Failed to parse response: %v\n", err)
			return
		}

		printStatus(cmd, task)
	},
}

func printStatus(cmd *cobra.Command, task api.TaskResponse) {
	// Header with status icon
	icon := statusIcon(task.Status)
	cmd.Printf("%s %sTask Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, task.ID)
	cmd.Printf("%sTopic:%s       %s\n", colorDim, colorReset, task.Topic)
	cmd.Printf("%sPages:%s       %d\n", colorDim, colorReset, task.PageCount)
	if task.Style != "" {
		cmd.Printf("%sStyle:%s       %s\n", colorDim, colorReset, task.Style)
	}

	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(task.Status))
	cmd.Printf("%sProgress:%s    %s\n", colorDim, colorReset, progressBar(task.Progress))

	if task.Error != nil {
		cmd.Printf("%sError:%s       %s%s: %s%s\n", colorDim, colorReset, colorRed, task.Error.Kind, task.Error.Message, colorReset)
	}

	cmd.Printf("%sSubmitted:%s   %s\n", colorDim, colorReset, formatTimeWithRelative(task.CreatedAt))

	// Duration since last transition for finished tasks
	if task.Status == "COMPLETED" || task.Status == "FAILED" {
		duration := task.UpdatedAt.Sub(task.CreatedAt)
		cmd.Printf("%sFinished:%s    %s %s(%s)%s\n", colorDim, colorReset,
			formatTimeWithRelative(task.UpdatedAt),
			colorCyan, formatDuration(duration), colorReset)
	} else {
		cmd.Printf("%sUpdated:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(task.UpdatedAt))
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case "COMPLETED":
		return colorGreen + "✓" + colorReset
	case "FAILED":
		return colorRed + "✗" + colorReset
	case "OUTLINE", "CONTENT", "IMAGES", "COMPILE":
		return colorYellow + "⏳" + colorReset
	case "PENDING":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case "COMPLETED":
		return icon + " " + colorGreen + status + colorReset
	case "FAILED":
		return icon + " " + colorRed + status + colorReset
	case "OUTLINE", "CONTENT", "IMAGES", "COMPILE":
		return icon + " " + colorYellow + status + colorReset
	case "PENDING":
		return icon + " " + colorCyan + status + colorReset
	default:
		return status
	}
}

func progressBar(pct int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := pct / 10
	bar := ""
	for i := 0; i < 10; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return fmt.Sprintf("%s %d%%", bar, pct)
}

func formatTimeWithRelative(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	relative := relativeTime(t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
