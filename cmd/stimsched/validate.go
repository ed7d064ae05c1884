package main

import (
	"errors"
	"fmt"

	"github.com/fentz26/stimsched/internal/scheduler"
	"github.com/spf13/cobra"
)

var validateFlags experimentFlags

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check an experiment file",
	RunE:  runValidate,
}

func init() {
	validateFlags.register(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	exp, err := validateFlags.load()
	if err != nil {
		return err
	}

	err = exp.Validate()
	var cfgErr *scheduler.ConfigError
	if errors.As(err, &cfgErr) {
		for _, v := range cfgErr.Violations {
			fmt.Fprintf(cmd.OutOrStdout(), "✗ %s\n", v)
		}
		return fmt.Errorf("%d problems found in %s", len(cfgErr.Violations), validateFlags.file)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid (%d stimuli shown per trial)\n",
		validateFlags.file, len(exp.Trial.ShownStimuli))
	return nil
}
