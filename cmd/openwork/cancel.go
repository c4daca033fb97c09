package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openworkhq/openwork/internal/orchestrator"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <taskID>",
	Short: "Request cancellation of a running task",
	Long: `Write a cancel signal for the given task. A running openwork process
in this project picks the signal up at the task's next iteration
boundary; the current step finishes before the task stops.`,
	Args: cobra.ExactArgs(1),
	RunE: cancelTask,
}

func cancelTask(cmd *cobra.Command, args []string) error {
	projectRoot, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	signals, err := orchestrator.NewSignalWatcher(runtimeDir(projectRoot))
	if err != nil {
		return err
	}
	defer signals.Close()

	if err := signals.SendCancel(args[0]); err != nil {
		return fmt.Errorf("send cancel signal: %w", err)
	}

	fmt.Printf("cancellation requested for task %s\n", args[0])
	return nil
}
