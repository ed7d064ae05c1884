package main

import (
	"fmt"

	"github.com/fentz26/stimsched/internal/session"
	"github.com/fentz26/stimsched/internal/trajectory"
	"github.com/fentz26/stimsched/internal/tui"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Present trials interactively in the terminal",
	RunE:  runTUI,
}

var (
	tuiFlags   experimentFlags
	tuiTraj    string
	tuiDB      string
	tuiSubject string
)

func init() {
	tuiFlags.register(tuiCmd)
	tuiCmd.Flags().StringVar(&tuiTraj, "traj", "", "Save mouse trajectories to this CSV file")
	tuiCmd.Flags().StringVar(&tuiDB, "db", "", "Log trials to this SQLite database")
	tuiCmd.Flags().StringVar(&tuiSubject, "subject", "", "Subject recorded with the session")
}

func runTUI(cmd *cobra.Command, args []string) error {
	exp, err := tuiFlags.load()
	if err != nil {
		return err
	}

	// Tracing on stderr would garble the screen, so the session logger is
	// left at its silent default.
	var opts session.Options

	if tuiDB != "" {
		st, rec, err := openRecorder(tuiDB, tuiFlags.name(), tuiSubject)
		if err != nil {
			return err
		}
		defer st.Close()
		opts.Recorder = rec
	}

	if tuiTraj != "" {
		tracker := trajectory.New(afero.NewOsFs(), tuiTraj)
		if err := tracker.InitOutputFile("", trajectory.DefaultXYPrecision, trajectory.DefaultTimePrecision); err != nil {
			return err
		}
		opts.Tracker = tracker
	}

	svc, err := session.NewService(exp, opts)
	if err != nil {
		return err
	}

	app := tui.New(svc)
	if err := app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
