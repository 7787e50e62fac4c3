package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/colorstring"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"cliptransfer/internal/apperror"
	"cliptransfer/internal/clipboard/osclipboard"
	"cliptransfer/internal/events"
	"cliptransfer/internal/sender"
	"cliptransfer/internal/task"
)

var retryTaskID string

var sendCmd = &cobra.Command{
	Use:   "send [path]",
	Short: "Send a file or folder over the clipboard",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSend,
}

func init() {
	sendCmd.Flags().StringVar(&retryTaskID, "retry", "", "resend a FAILED/CANCELLED/PAUSED task's source under a fresh id")
}

func runSend(_ *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	var path string
	if len(args) > 0 {
		path = args[0]
	}
	if retryTaskID != "" {
		prior, ok := store.Get(retryTaskID)
		if !ok {
			return fmt.Errorf("no such task: %s", retryTaskID)
		}
		if !prior.Status.CanRestart() {
			return fmt.Errorf("task %s in status %s cannot be retried", retryTaskID, prior.Status)
		}
		path = prior.FilePath
	}
	if path == "" {
		return fmt.Errorf("send needs a path or --retry <task-id> of a task with a source path")
	}

	var bar *progressbar.ProgressBar
	sink := events.SenderSink{
		OnTaskStarted: func(t *task.Task) {
			colorstring.Println("[blue]sending " + t.FileName)
			if term.IsTerminal(int(os.Stdout.Fd())) {
				bar = progressbar.DefaultBytes(t.TotalSize, t.FileName)
			}
		},
		OnProgress: func(t *task.Task, completed, total int) {
			if bar != nil {
				bar.Set64(t.TransferredBytes)
				bar.Describe(fmt.Sprintf("%s (%s, eta %s)", t.FileName, task.FormatSpeed(t.Speed()), t.ETA().Truncate(time.Second)))
			}
		},
		OnTaskCompleted: func(t *task.Task) {
			apperror.PrintStatusLine(colorstring.Color("[green]completed[reset] " + t.FileName + " (" + task.FormatSize(t.TotalSize) + ")"))
		},
		OnTaskFailed: func(t *task.Task, err error) {
			apperror.PrintStatusLine(colorstring.Color("[red]failed[reset] " + t.FileName + ": " + err.Error()))
		},
		OnTaskPaused: func(t *task.Task) {
			apperror.PrintStatusLine(colorstring.Color("[yellow]paused[reset] " + t.FileName))
		},
		OnTaskResumed: func(t *task.Task) {
			colorstring.Println("[blue]resumed " + t.FileName)
		},
		OnTaskCancelled: func(t *task.Task) {
			apperror.PrintStatusLine(colorstring.Color("[yellow]cancelled[reset] " + t.FileName))
		},
		OnError: func(msg string) {
			apperror.PrintStatusLine(colorstring.Color("[red]error[reset] " + msg))
		},
	}

	engine := sender.New(osclipboard.New(), store, sender.Config{
		ChunkSize:    cfg.ChunkSize(),
		SendInterval: time.Duration(cfg.SendInterval()) * time.Millisecond,
	}, sink, logger)

	taskID, err := engine.Send(path)
	if err != nil {
		return err
	}
	fmt.Printf("task %s started\n", taskID)

	for engine.IsRunning() || engine.IsPaused() {
		time.Sleep(200 * time.Millisecond)
	}
	if bar != nil {
		bar.Finish()
	}
	return nil
}
