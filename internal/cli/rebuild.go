package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/etoslabs/memvault/internal/model"
)

func init() {
	rebuild := &cobra.Command{
		Use:   "rebuild",
		Short: "Re-embed every memory from scratch",
		Run: func(cmd *cobra.Command, args []string) {
			runJob(cmd, model.JobFullRebuild)
		},
	}

	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Embed memories the index is missing or has stale vectors for",
		Run: func(cmd *cobra.Command, args []string) {
			runJob(cmd, model.JobReconcilePending)
		},
	}

	RootCmd.AddCommand(rebuild)
	RootCmd.AddCommand(reconcile)
}

func runJob(cmd *cobra.Command, kind model.JobKind) {
	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	updates := a.engine.Subscribe()

	ctx := cmd.Context()
	var trigger func(context.Context) error
	if kind == model.JobFullRebuild {
		trigger = a.engine.TriggerFullRebuild
	} else {
		trigger = a.engine.TriggerReconcile
	}
	if err := trigger(ctx); err != nil {
		exitErr(cmd.Name(), err)
	}

	// Updates are dropped when the subscriber lags, so the ticker is the
	// backstop that notices a terminal job either way.
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case u := <-updates:
			if u.Phase == model.JobRunning && u.CurrentItem != "" {
				fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", u.Processed+1, u.Total, u.CurrentItem)
			}
		case <-tick.C:
		}

		job, ok := a.engine.Snapshot()
		if !ok {
			return
		}
		if job.Terminal() {
			b, _ := json.MarshalIndent(job, "", "  ")
			fmt.Println(string(b))
			if job.Phase == model.JobFailed {
				a.Close()
				os.Exit(1)
			}
			return
		}
	}
}
