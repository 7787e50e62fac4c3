package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mitchellh/colorstring"
	"github.com/spf13/cobra"

	"cliptransfer/internal/clipboard/osclipboard"
	"cliptransfer/internal/events"
	"cliptransfer/internal/receiver"
	"cliptransfer/internal/task"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Poll the clipboard and reassemble incoming transfers",
	Args:  cobra.NoArgs,
	RunE:  runListen,
}

func runListen(_ *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	sink := events.ReceiverSink{
		OnListeningStarted: func() {
			colorstring.Println("[blue]listening on the clipboard, Ctrl-C to stop")
		},
		OnListeningStopped: func() {
			colorstring.Println("[blue]stopped listening")
		},
		OnTaskStarted: func(t *task.Task) {
			colorstring.Println("[blue]receiving " + t.FileName + " (" + task.FormatSize(t.TotalSize) + ")")
		},
		OnProgress: func(t *task.Task, completed, total int) {
			fmt.Printf("\r%s: %d/%d chunks (%s, eta %s)", t.FileName, completed, total, task.FormatSpeed(t.Speed()), t.ETA().Truncate(time.Second))
		},
		OnTaskCompleted: func(t *task.Task, outputPath string) {
			fmt.Println()
			colorstring.Println("[green]completed[reset] " + outputPath)
		},
		OnTaskFailed: func(t *task.Task, err error) {
			fmt.Println()
			colorstring.Println("[red]failed[reset] " + t.FileName + ": " + err.Error())
		},
		OnTaskIncomplete: func(t *task.Task, missing []int) {
			fmt.Println()
			colorstring.Printf("[yellow]incomplete[reset] %s, missing chunks: %v\n", t.FileName, missing)
		},
		OnError: func(msg string) {
			colorstring.Println("[red]error[reset] " + msg)
		},
	}

	engine := receiver.New(osclipboard.New(), store, receiver.Config{
		ReceiveInterval: time.Duration(cfg.ReceiveInterval()) * time.Millisecond,
		DownloadDir:     cfg.DownloadPath(),
	}, sink, logger)

	engine.StartListening()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)
	<-stopCh

	engine.StopListening()
	return nil
}
