package run

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/guianderson/terrama2/internal/analysis/jobqueue"
	"github.com/guianderson/terrama2/internal/app"
	"github.com/guianderson/terrama2/internal/conf"
	"github.com/guianderson/terrama2/internal/logger"
)

// Command creates the run command, which executes analyses once and exits.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		analysisIDs []int64
		at          string
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute analyses once",
		Long: `Execute one or more analyses for a reference time and print the outcome.

Examples:
  terrama2 run --analysis 1
  terrama2 run --analysis 1 --analysis 2 --at 2024-03-10T12:00:00Z`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reference := time.Now().UTC().Truncate(time.Second)
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at value %q: %w", at, err)
				}
				reference = t
			}
			settings.API.Enabled = false
			return execute(cmd.Context(), settings, analysisIDs, reference, timeout, cmd.OutOrStdout())
		},
	}

	cmd.Flags().Int64SliceVarP(&analysisIDs, "analysis", "a", nil, "Analysis id to execute (repeatable)")
	cmd.Flags().StringVar(&at, "at", "", "Reference time in RFC 3339, defaults to now")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Give up waiting after this long")
	_ = cmd.MarkFlagRequired("analysis")
	return cmd
}

// outcome is printed per analysis.
type outcome struct {
	AnalysisID int64          `json:"analysis_id"`
	Reference  time.Time      `json:"reference"`
	State      jobqueue.State `json:"state"`
	Error      string         `json:"error,omitempty"`
}

func execute(parent context.Context, settings *conf.Settings, ids []int64, reference time.Time, timeout time.Duration, out io.Writer) error {
	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = central.Close() }()

	engine, err := app.New(settings, app.Options{Logger: central.Module("engine"), DisableAPI: true})
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	if err := engine.Start(ctx); err != nil {
		return err
	}

	jobs := make([]jobqueue.Job, 0, len(ids))
	for _, id := range ids {
		job, _, err := engine.Service().Enqueue(id, reference)
		if err != nil {
			return err
		}
		jobs = append(jobs, job)
	}

	failed := 0
	enc := json.NewEncoder(out)
	for _, job := range jobs {
		state, err := job.Wait(ctx)
		o := outcome{AnalysisID: job.AnalysisID, Reference: reference, State: state}
		if err != nil {
			o.Error = err.Error()
		}
		if state != jobqueue.StateCompleted {
			failed++
		}
		if err := enc.Encode(o); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d analyses failed", failed, len(jobs))
	}
	return nil
}
