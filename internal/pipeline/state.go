package pipeline

// State is a step of a single pipeline run.
type State int

const (
	StateFetching State = iota
	StateExtracting
	StatePrompting
	StateInvoking
	StateValidating
	StateRepairPrompting
	StateRepairInvoking
	StateRepairValidating
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateFetching:         "fetching",
	StateExtracting:       "extracting",
	StatePrompting:        "prompting",
	StateInvoking:         "invoking",
	StateValidating:       "validating",
	StateRepairPrompting:  "repair_prompting",
	StateRepairInvoking:   "repair_invoking",
	StateRepairValidating: "repair_validating",
	StateDone:             "done",
	StateFailed:           "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// Observer is notified of every state a run enters. It must not block.
type Observer func(runID string, s State)
