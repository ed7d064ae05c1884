package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/fentz26/stimsched/internal/store"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List logged trials, or the transitions of one trial",
	RunE:  runHistory,
}

var (
	historyDB    string
	historyTrial string
)

func init() {
	homeDir, _ := os.UserHomeDir()
	defaultDB := filepath.Join(homeDir, ".stimsched", "results.db")

	historyCmd.Flags().StringVar(&historyDB, "db", defaultDB, "Path to SQLite database")
	historyCmd.Flags().StringVar(&historyTrial, "trial", "", "Show the transitions of this trial")
}

func runHistory(cmd *cobra.Command, args []string) error {
	s, err := store.New(historyDB)
	if err != nil {
		return err
	}
	defer s.Close()

	if historyTrial != "" {
		return printTransitions(cmd.OutOrStdout(), s, historyTrial)
	}
	return printTrials(cmd.OutOrStdout(), s)
}

func printTrials(out io.Writer, s *store.Store) error {
	trials, err := s.ListTrials("")
	if err != nil {
		return err
	}
	if len(trials) == 0 {
		fmt.Fprintln(out, "No trials found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSESSION\tTRIAL\tOUTCOME\tSTARTED\tCONFIG")
	for _, t := range trials {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			t.ID, truncateID(t.SessionID), t.Number, t.Outcome,
			t.StartedAt.Local().Format(time.DateTime), truncateID(t.ConfigHash))
	}
	return w.Flush()
}

func printTransitions(out io.Writer, s *store.Store, trialID string) error {
	trial, err := s.GetTrial(trialID)
	if err != nil {
		return err
	}
	if trial == nil {
		return fmt.Errorf("trial %s not found", trialID)
	}
	transitions, err := s.GetTransitions(trialID)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Trial %d (%s), %d transitions\n\n", trial.Number, trial.Outcome, len(transitions))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tTIME\tOP\tSTIMULUS")
	for _, tr := range transitions {
		op := "hide"
		if tr.Visible {
			op = "show"
		}
		fmt.Fprintf(w, "%d\t%.3f\t%s\t%s\n", tr.Seq, tr.ScheduledTime, op, tr.ItemName)
	}
	return w.Flush()
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
