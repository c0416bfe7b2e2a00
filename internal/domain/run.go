package domain

import "time"

// RunState is a state of the pipeline state machine.
type RunState string

const (
	StateFetch              RunState = "fetch"
	StateNormalize          RunState = "normalize"
	StatePersistRelational  RunState = "persist_relational"
	StatePersistSpreadsheet RunState = "persist_spreadsheet"
	StateDone               RunState = "done"
	StateEmptyInput         RunState = "empty_input"
)

// Terminal reports whether no transition leaves the state.
func (s RunState) Terminal() bool {
	return s == StateDone || s == StateEmptyInput
}

// RunOutcome summarises how a run ended.
type RunOutcome string

const (
	OutcomeSuccess RunOutcome = "success"
	OutcomePartial RunOutcome = "partial"
	OutcomeFailed  RunOutcome = "failed"
	OutcomeEmpty   RunOutcome = "empty"
)

// RunReport describes one pipeline run.
type RunReport struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration

	State   RunState
	Outcome RunOutcome
	// Err is the fatal error that ended the run early, if any.
	Err error

	Fetched   int
	Partition PartitionedDataset
	// SinkErrors maps sink name to its failure. Sinks that succeeded are absent.
	SinkErrors map[string]error
	// SinksAttempted lists sink names in the order they ran.
	SinksAttempted []string
}

// Valid returns the number of records that survived normalization.
func (r *RunReport) Valid() int {
	return r.Partition.Len()
}
