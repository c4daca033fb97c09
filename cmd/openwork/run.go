package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/openworkhq/openwork/internal/config"
	"github.com/openworkhq/openwork/pkg/models"
)

var (
	runPaths    []string
	runModel    string
	runNoVerify bool
)

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Run a task and stream its progress",
	Long: `Run a natural-language task against the authorized directories.

The agent may only read, write and execute within the paths given via
--path (default: the current directory). Progress events stream to the
terminal until the task reaches a terminal state.

Press Ctrl-C once to request cancellation; the current step finishes
before the task stops.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().StringArrayVar(&runPaths, "path", nil, "Authorized directory (repeatable; default: current directory)")
	runCmd.Flags().StringVar(&runModel, "model", "", "Model identifier override")
	runCmd.Flags().BoolVar(&runNoVerify, "no-verify", false, "Skip the verification pass on final output")
}

func runTask(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if runModel != "" {
		cfg.Anthropic.Model = runModel
	}
	if runNoVerify {
		cfg.Agent.Verify = false
	}

	paths := runPaths
	if len(paths) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		paths = []string{cwd}
	}
	for i, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolve path %q: %w", p, err)
		}
		paths[i] = abs
	}

	projectRoot, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	orch, db, signals, err := buildOrchestrator(cfg, projectRoot)
	if err != nil {
		return err
	}
	defer func() {
		orch.Stop()
		signals.Close()
		db.Close()
	}()

	taskID, err := orch.Submit(strings.Join(args, " "), paths)
	if err != nil {
		return err
	}
	events, err := orch.Subscribe(taskID)
	if err != nil {
		return err
	}

	fmt.Printf("task %s\n", taskID)

	// First Ctrl-C requests cooperative cancellation; a second one
	// aborts the process.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		color.Yellow("cancellation requested, finishing current step...")
		_ = orch.Cancel(taskID)
		<-sigCh
		os.Exit(130)
	}()

	return streamEvents(events)
}

// streamEvents renders the event stream until the terminal event.
func streamEvents(events <-chan models.Event) error {
	thinking := color.New(color.FgYellow)
	executing := color.New(color.FgCyan)
	faint := color.New(color.Faint)
	success := color.New(color.FgGreen, color.Bold)
	failure := color.New(color.FgRed, color.Bold)

	for event := range events {
		switch event.Kind {
		case models.EventQueued:
			faint.Println("queued")
		case models.EventThinking:
			thinking.Println("thinking...")
		case models.EventExecuting:
			executing.Printf("running %s\n", event.Tool)
		case models.EventCompacted:
			faint.Println("context compacted")
		case models.EventFinished:
			success.Println("done")
			if event.Payload != "" {
				fmt.Println(event.Payload)
			}
			return nil
		case models.EventError:
			failure.Printf("failed: %s\n", event.Payload)
			return fmt.Errorf("task failed")
		}
	}
	return fmt.Errorf("event stream ended without a terminal event")
}
