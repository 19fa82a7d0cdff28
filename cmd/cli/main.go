package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	serverURL   string
	noAutoStart bool
	rootCmd     = &cobra.Command{
		Use:   "coursedl",
		Short: "CourseDL CLI - Course content download manager",
		Long:  `A command-line interface for queueing and tracking course content downloads.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(itemsCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(retryCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

var addCmd = &cobra.Command{
	Use:   "add [course-id]",
	Short: "Queue a course for download",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		courseID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: course id must be numeric: %v\n", err)
			os.Exit(1)
		}

		title, _ := cmd.Flags().GetString("title")
		target, _ := cmd.Flags().GetString("target")
		quality, _ := cmd.Flags().GetString("quality")
		langs, _ := cmd.Flags().GetString("subtitle-langs")
		skipSubs, _ := cmd.Flags().GetBool("skip-subtitles")
		allowEnc, _ := cmd.Flags().GetBool("allow-encrypted")
		rangeStart, _ := cmd.Flags().GetInt("start")
		rangeEnd, _ := cmd.Flags().GetInt("end")
		zeroPad, _ := cmd.Flags().GetBool("zero-pad")
		dlType, _ := cmd.Flags().GetInt("type")

		payload := map[string]interface{}{
			"course_id": courseID,
		}
		if title != "" {
			payload["course_title"] = title
		}
		if target != "" {
			payload["target_root"] = target
		}
		if quality != "" {
			payload["quality"] = quality
		}
		if langs != "" {
			payload["subtitle_langs"] = langs
		}
		if skipSubs {
			payload["skip_subtitles"] = true
		}
		if allowEnc {
			payload["allow_encrypted"] = true
		}
		if rangeStart > 0 {
			payload["range_start"] = rangeStart
		}
		if rangeEnd > 0 {
			payload["range_end"] = rangeEnd
		}
		if zeroPad {
			payload["seq_zero_left"] = true
		}
		if cmd.Flags().Changed("type") {
			payload["type"] = dlType
		}

		data, _ := json.Marshal(payload)
		resp, err := http.Post(serverURL+"/api/v1/tasks", "application/json", bytes.NewBuffer(data))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusCreated {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}

		var result map[string]interface{}
		json.Unmarshal(body, &result)
		fmt.Printf("Task added successfully!\n")
		fmt.Printf("ID: %s\n", result["id"])
		fmt.Printf("Status: %s\n", result["status"])
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all download tasks",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		status, _ := cmd.Flags().GetString("status")

		url := serverURL + "/api/v1/tasks"
		if status != "" {
			url += "?status=" + status
		}

		resp, err := http.Get(url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		var tasks []map[string]interface{}
		json.Unmarshal(body, &tasks)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCOURSE\tSTATUS\tITEMS\tFAILED\tCREATED")
		for _, t := range tasks {
			title := fmt.Sprintf("%v", t["course_id"])
			if s, ok := t["course_title"].(string); ok && s != "" {
				title = s
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%v/%v\t%v\t%s\n",
				truncate(t["id"].(string), 8),
				truncate(title, 40),
				t["status"],
				t["completed_items"],
				t["total_items"],
				t["failed_items"],
				t["created_at"])
		}
		w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show task statistics",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		resp, err := http.Get(serverURL + "/api/v1/tasks/stats")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		var stats map[string]interface{}
		json.Unmarshal(body, &stats)

		fmt.Println("Task Statistics:")
		fmt.Printf("  Total:       %v\n", stats["total"])
		fmt.Printf("  Pending:     %v\n", stats["pending"])
		fmt.Printf("  Downloading: %v\n", stats["downloading"])
		fmt.Printf("  Completed:   %v\n", stats["completed"])
		fmt.Printf("  Failed:      %v\n", stats["failed"])
		fmt.Printf("  Cancelled:   %v\n", stats["cancelled"])
	},
}

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Get task details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		id := args[0]
		resp, err := http.Get(serverURL + "/api/v1/tasks/" + id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		var task map[string]interface{}
		json.Unmarshal(body, &task)

		fmt.Printf("Task Details:\n")
		fmt.Printf("  ID:        %s\n", task["id"])
		fmt.Printf("  Course:    %v\n", task["course_id"])
		if s, ok := task["course_title"].(string); ok && s != "" {
			fmt.Printf("  Title:     %s\n", s)
		}
		fmt.Printf("  Status:    %s\n", task["status"])
		fmt.Printf("  Quality:   %v\n", task["quality"])
		fmt.Printf("  Items:     %v/%v (failed: %v)\n", task["completed_items"], task["total_items"], task["failed_items"])
		fmt.Printf("  Target:    %s\n", task["target_root"])
		fmt.Printf("  Created:   %s\n", task["created_at"])
		if task["error_message"] != nil && task["error_message"] != "" {
			fmt.Printf("  Error:     %s\n", task["error_message"])
		}
	},
}

var itemsCmd = &cobra.Command{
	Use:   "items [id]",
	Short: "List the work items of a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		id := args[0]
		resp, err := http.Get(serverURL + "/api/v1/tasks/" + id + "/items")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}

		var items []map[string]interface{}
		json.Unmarshal(body, &items)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tTITLE\tSTATUS\tPATH")
		for _, item := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				item["kind"],
				truncate(fmt.Sprintf("%v", item["title"]), 40),
				item["status"],
				item["target_path"])
		}
		w.Flush()
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		id := args[0]
		resp, err := http.Post(serverURL+"/api/v1/tasks/"+id+"/cancel", "application/json", nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}
		fmt.Println("Task cancelled successfully")
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry [id]",
	Short: "Retry a failed task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		id := args[0]
		resp, err := http.Post(serverURL+"/api/v1/tasks/"+id+"/retry", "application/json", nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}
		fmt.Println("Task queued for retry")
	},
}

func init() {
	addCmd.Flags().StringP("title", "T", "", "Course title used for the output directory")
	addCmd.Flags().StringP("target", "o", "", "Target root directory (defaults to server config)")
	addCmd.Flags().StringP("quality", "q", "", "Video quality (Auto, Highest, Lowest or a number like 720)")
	addCmd.Flags().StringP("subtitle-langs", "l", "", "Pipe-separated subtitle languages (e.g. \"English|Spanish\")")
	addCmd.Flags().Bool("skip-subtitles", false, "Skip subtitle downloads")
	addCmd.Flags().Bool("allow-encrypted", false, "Include DRM-protected streams")
	addCmd.Flags().Int("start", 0, "First lecture number to download (1-based)")
	addCmd.Flags().Int("end", 0, "Last lecture number to download (0 = open-ended)")
	addCmd.Flags().Bool("zero-pad", false, "Zero-pad sequence numbers in file names")
	addCmd.Flags().Int("type", 0, "Download type (0 = both, 1 = videos only, 2 = attachments only)")
	listCmd.Flags().StringP("status", "s", "", "Filter by status")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
