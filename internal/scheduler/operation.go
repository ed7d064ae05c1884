package scheduler

import (
	"fmt"
	"sort"
)

// Kind is what an operation does to its stimulus.
type Kind int

const (
	Show Kind = iota
	Hide
)

func (k Kind) String() string {
	if k == Show {
		return "show"
	}
	return "hide"
}

// Operation is one scheduled show or hide.
type Operation struct {
	// Item is the index of the stimulus in the shown list.
	Item int
	Kind Kind
	// Offset is the delay from the trigger instant.
	Offset float64
	// ScheduledTime is the absolute time at which the operation fires. It
	// equals Offset until the trigger instant is known.
	ScheduledTime float64
	Executed      bool

	// seq is the insertion order, used to break ties between operations
	// scheduled for the same instant.
	seq int
}

func (op Operation) String() string {
	return fmt.Sprintf("%s #%d at %.3f", op.Kind, op.Item, op.ScheduledTime)
}

// sortOperations orders operations by scheduled time. Stable sort on the
// insertion sequence keeps ties in the order the operations were built.
func sortOperations(ops []Operation) {
	sort.SliceStable(ops, func(i, j int) bool {
		if ops[i].ScheduledTime != ops[j].ScheduledTime {
			return ops[i].ScheduledTime < ops[j].ScheduledTime
		}
		return ops[i].seq < ops[j].seq
	})
}
