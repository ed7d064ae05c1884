package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fentz26/stimsched/internal/audit"
	"github.com/fentz26/stimsched/internal/experiment"
	"github.com/fentz26/stimsched/internal/store"
	"github.com/spf13/cobra"
)

// experimentFlags are shared by the commands that run an experiment file.
type experimentFlags struct {
	file string
	sets []string
}

func (f *experimentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Experiment file (required)")
	cmd.Flags().StringArrayVar(&f.sets, "set", nil, "Override a trial attribute, e.g. --set duration=0.5 (repeatable)")
	cmd.MarkFlagRequired("file")
}

// load reads the experiment file and applies the --set overrides.
func (f *experimentFlags) load() (*experiment.Experiment, error) {
	exp, err := experiment.Load(f.file)
	if err != nil {
		return nil, err
	}
	if len(f.sets) == 0 {
		return exp, nil
	}

	attrs, err := experiment.ParseAssignments(f.sets)
	if err != nil {
		return nil, err
	}
	if err := exp.Apply(attrs); err != nil {
		return nil, fmt.Errorf("applying --set: %w", err)
	}
	return exp, nil
}

// name derives the experiment name recorded in the results log.
func (f *experimentFlags) name() string {
	base := filepath.Base(f.file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// openRecorder opens the results database and a new session in it.
func openRecorder(dbPath, experimentName, subject string) (*store.Store, *audit.Recorder, error) {
	s, err := store.New(dbPath)
	if err != nil {
		return nil, nil, err
	}
	sess, err := s.CreateSession(experimentName, subject)
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return s, audit.NewRecorder(s, sess.ID, audit.WithLogger(newLogger())), nil
}
