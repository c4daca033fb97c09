package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/openworkhq/openwork/internal/state"
	"github.com/openworkhq/openwork/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status [taskID]",
	Short: "Show task status from the local state database",
	Long: `Show all recorded tasks, or the full record of one task including
its tool-invocation log.`,
	Args: cobra.MaximumNArgs(1),
	RunE: showStatus,
}

func showStatus(cmd *cobra.Command, args []string) error {
	projectRoot, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	db, err := state.OpenProject(projectRoot)
	if err != nil {
		return err
	}
	defer db.Close()

	if len(args) == 1 {
		return showTask(db, args[0])
	}
	return listTasks(db)
}

func listTasks(db *state.DB) error {
	tasks, err := db.ListTasks()
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("no tasks recorded")
		return nil
	}

	for _, task := range tasks {
		desc := task.Description
		if len(desc) > 60 {
			desc = desc[:60] + "..."
		}
		fmt.Printf("%s  %s  %s\n", task.ID, statusColor(task.Status).Sprintf("%-10s", task.Status), desc)
	}
	return nil
}

func showTask(db *state.DB, taskID string) error {
	task, err := db.GetTask(taskID)
	if err != nil {
		return err
	}

	fmt.Printf("id:      %s\n", task.ID)
	fmt.Printf("status:  %s\n", statusColor(task.Status).Sprint(task.Status))
	fmt.Printf("task:    %s\n", task.Description)
	fmt.Printf("paths:   %s\n", strings.Join(task.AuthorizedPaths, ", "))
	fmt.Printf("created: %s\n", task.CreatedAt.Format("2006-01-02 15:04:05"))
	if task.StartedAt != nil {
		fmt.Printf("started: %s\n", task.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if task.CompletedAt != nil {
		fmt.Printf("ended:   %s\n", task.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if task.Output != "" {
		fmt.Printf("\noutput:\n%s\n", task.Output)
	}
	if task.Error != "" {
		color.Red("\nerror: %s", task.Error)
	}

	if len(task.ToolLog) > 0 {
		fmt.Println("\ntool log:")
		for _, inv := range task.ToolLog {
			mark := color.GreenString("ok")
			if !inv.Success {
				mark = color.RedString("err")
			}
			fmt.Printf("  %3d. %-12s %-3s %s\n", inv.Seq, inv.Tool, mark, inv.Args)
		}
	}
	return nil
}

func statusColor(status models.TaskStatus) *color.Color {
	switch status {
	case models.TaskStatusCompleted:
		return color.New(color.FgGreen)
	case models.TaskStatusFailed:
		return color.New(color.FgRed)
	case models.TaskStatusCancelled:
		return color.New(color.FgYellow)
	case models.TaskStatusPending:
		return color.New(color.Faint)
	default:
		return color.New(color.FgCyan)
	}
}
