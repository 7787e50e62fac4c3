package cmd

import (
	"fmt"

	"github.com/mitchellh/colorstring"
	"github.com/spf13/cobra"

	"cliptransfer/internal/task"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect the task store",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every known task",
	Args:  cobra.NoArgs,
	RunE:  runTasksList,
}

var tasksShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show one task in detail",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksShow,
}

var tasksCleanupCmd = &cobra.Command{
	Use:   "cleanup <keep-days>",
	Short: "Remove COMPLETED tasks older than keep-days",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksCleanup,
}

func init() {
	tasksCmd.AddCommand(tasksListCmd, tasksShowCmd, tasksCleanupCmd)
}

func statusColor(s task.Status) string {
	switch s {
	case task.StatusCompleted:
		return "[green]"
	case task.StatusFailed, task.StatusCancelled:
		return "[red]"
	case task.StatusPaused:
		return "[yellow]"
	default:
		return "[default]"
	}
}

func runTasksList(_ *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	for _, t := range store.List() {
		colorstring.Printf("%s%-10s[reset] %-36s %-24s %s\n", statusColor(t.Status), t.Status, t.TaskID, t.FileName, task.FormatSize(t.TotalSize))
	}
	stats := store.Statistics()
	fmt.Printf("\n%d tasks, %s completed of %s total\n", stats.Total, task.FormatSize(stats.CompletedBytes), task.FormatSize(stats.TotalBytes))
	return nil
}

func runTasksShow(_ *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	t, ok := store.Get(args[0])
	if !ok {
		return fmt.Errorf("no such task: %s", args[0])
	}
	fmt.Printf("task_id:    %s\n", t.TaskID)
	fmt.Printf("file_name:  %s\n", t.FileName)
	fmt.Printf("status:     %s\n", t.Status)
	fmt.Printf("total_size: %s\n", task.FormatSize(t.TotalSize))
	fmt.Printf("progress:   %d/%d chunks\n", len(t.CompletedChunks), t.ChunkTotal)
	if len(t.FailedChunks) > 0 {
		fmt.Printf("failed:     %v\n", t.FailedChunks)
	}
	if t.ErrorMessage != "" {
		fmt.Printf("error:      %s\n", t.ErrorMessage)
	}
	return nil
}

func runTasksCleanup(cmd *cobra.Command, args []string) error {
	var keepDays int
	if _, err := fmt.Sscanf(args[0], "%d", &keepDays); err != nil {
		return fmt.Errorf("keep-days must be an integer: %w", err)
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	removed, err := store.CleanupCompleted(keepDays)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d completed task(s)\n", removed)
	return nil
}
