package absint

import (
	"fmt"
	"time"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeCached  Outcome = "cached"
)

// Metrics describes one run of the loop bound analysis.
type Metrics struct {
	Outcome Outcome
	Time    time.Duration
	// Steps counts processed worklist items.
	Steps  int
	Frames int
	States int
}

func (m *Metrics) String() string {
	if m == nil {
		return "no metrics"
	}
	return fmt.Sprintf("%s in %s: %d steps, %d frames, %d states",
		m.Outcome, m.Time, m.Steps, m.Frames, m.States)
}
