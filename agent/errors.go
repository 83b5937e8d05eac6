package agent

import "fmt"

// MaxIterationsError is the terminal failure returned when a run demands more
// decide/execute cycles than the configured cap. The run aborts instead of
// looping forever or returning a possibly incomplete answer.
type MaxIterationsError struct {
	Limit int
}

func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("agent exceeded maximum of %d tool iterations without a final response", e.Limit)
}
