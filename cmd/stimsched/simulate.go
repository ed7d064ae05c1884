package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fentz26/stimsched/internal/experiment"
	"github.com/fentz26/stimsched/internal/models"
	"github.com/fentz26/stimsched/internal/scheduler"
	"github.com/fentz26/stimsched/internal/session"
	"github.com/spf13/cobra"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run one synthetic trial and print its transitions",
	Long: `Runs one trial of the experiment at its frame rate, without a screen.
The trial starts at time 0 and ends at --until, or at --cancel-at if given.`,
	RunE: runSimulate,
}

var (
	simFlags    experimentFlags
	simUntil    float64
	simCancelAt float64
	simOutcome  string
	simDB       string
	simSubject  string
)

func init() {
	simFlags.register(simulateCmd)
	simulateCmd.Flags().Float64Var(&simUntil, "until", 5, "Trial length in seconds")
	simulateCmd.Flags().Float64Var(&simCancelAt, "cancel-at", -1, "End the trial early at this time")
	simulateCmd.Flags().StringVar(&simOutcome, "outcome", "succeeded", "Trial outcome (succeeded, failed, cancelled)")
	simulateCmd.Flags().StringVar(&simDB, "db", "", "Log the trial to this SQLite database")
	simulateCmd.Flags().StringVar(&simSubject, "subject", "", "Subject recorded with the session")
}

// simulation parameters, in seconds.
type simulation struct {
	until    float64
	cancelAt float64
	outcome  models.TrialOutcome
}

func parseOutcome(s string) (models.TrialOutcome, error) {
	switch o := models.TrialOutcome(s); o {
	case models.TrialOutcomeSucceeded, models.TrialOutcomeFailed, models.TrialOutcomeCancelled:
		return o, nil
	}
	return "", fmt.Errorf("invalid outcome %q, must be: succeeded, failed, or cancelled: %w", s, models.ErrInvalidArgument)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	exp, err := simFlags.load()
	if err != nil {
		return err
	}
	outcome, err := parseOutcome(simOutcome)
	if err != nil {
		return err
	}

	opts := session.Options{Logger: newLogger()}
	if simDB != "" {
		st, rec, err := openRecorder(simDB, simFlags.name(), simSubject)
		if err != nil {
			return err
		}
		defer st.Close()
		opts.Recorder = rec
	}

	sim := simulation{until: simUntil, cancelAt: simCancelAt, outcome: outcome}
	return simulate(cmd.Context(), cmd.OutOrStdout(), exp, opts, sim)
}

// simulate runs one trial frame by frame. The trial and session clocks
// both start at 0.
func simulate(ctx context.Context, w io.Writer, exp *experiment.Experiment, opts session.Options, sim simulation) error {
	svc, err := session.NewService(exp, opts)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tOP\tITEM\tSTIMULUS")
	svc.Scheduler().OnVisibilityChange(func(s *scheduler.Scheduler, item int, visible bool, t float64) {
		op := scheduler.Hide
		if visible {
			op = scheduler.Show
		}
		fmt.Fprintf(tw, "%.3f\t%s\t%d\t%s\n", t, op, item, s.Name(item))
	})

	if err := svc.BeginTrial(ctx, 0, 0); err != nil {
		return err
	}
	if err := svc.StartTrial(ctx, 0, 0); err != nil {
		return err
	}

	end := sim.until
	if sim.cancelAt >= 0 && sim.cancelAt < end {
		end = sim.cancelAt
	}

	period := exp.FramePeriod()
	for i := 1; ; i++ {
		t := float64(i) * period
		if t > end {
			break
		}
		if err := svc.Frame(ctx, t, t); err != nil {
			return err
		}
	}
	if err := svc.EndTrial(ctx, sim.outcome, end, end); err != nil {
		return err
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\ntrial %s at %.3fs, scheduler %s\n", sim.outcome, end, svc.Scheduler().State())
	return nil
}
