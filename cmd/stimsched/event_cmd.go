package main

import (
	"fmt"
	"strings"

	"github.com/fentz26/stimsched/internal/event"
	"github.com/spf13/cobra"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Work with event expressions",
}

var eventParseCmd = &cobra.Command{
	Use:   "parse [text]",
	Short: "Parse an event expression such as 'TRIAL_STARTED + 0.5'",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEventParse,
}

func init() {
	eventCmd.AddCommand(eventParseCmd)
}

func runEventParse(cmd *cobra.Command, args []string) error {
	e, err := event.Parse(strings.Join(args, " "))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if e == nil {
		fmt.Fprintln(out, "none")
		return nil
	}

	var chain []string
	for _, h := range e.Hierarchy() {
		chain = append(chain, h.ID())
	}
	fmt.Fprintf(out, "Event:   %s\n", e)
	fmt.Fprintf(out, "ID:      %s\n", e.ID())
	fmt.Fprintf(out, "Offset:  %gs\n", e.Offset())
	fmt.Fprintf(out, "Matches: %s\n", strings.Join(chain, " < "))
	return nil
}
