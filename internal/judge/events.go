package judge

import "github.com/Mapleshade20/online-judge/internal/model"

// EventKind distinguishes the shape of a JobUpdate.
type EventKind int

const (
	// BeginRunning announces the state=Running, case[0]=Running transition.
	BeginRunning EventKind = iota
	// CaseUpdate reports a single case's final result.
	CaseUpdate
	// Finished announces the terminal state/result/score.
	Finished
)

// Update is one event in the sequence judge() emits through its sink.
// Consumers (the Worker Pool) re-acquire the registry's per-job lock on
// each Update, mutate the in-memory job, and write the delta through to the
// persistent store within the same critical section.
type Update struct {
	Kind   EventKind
	State  model.State
	Result model.Result
	Score  float64
	Case   model.JobCase // valid when Kind == CaseUpdate
}

// Sink receives Updates in emission order.
type Sink func(Update)
