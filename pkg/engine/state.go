package engine

// State is a phase of the controller's generation loop.
type State int

const (
	StateInitializing State = iota
	StateEvaluating
	StateSelecting
	StateMutating
	StateCheckpointing
	StateTerminated
)

var stateNames = []string{
	StateInitializing:  "initializing",
	StateEvaluating:    "evaluating",
	StateSelecting:     "selecting",
	StateMutating:      "mutating",
	StateCheckpointing: "checkpointing",
	StateTerminated:    "terminated",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// StopReason says why a run terminated.
type StopReason string

const (
	StopNone           StopReason = ""
	StopGenerationGoal StopReason = "generation_goal"
	StopFitnessGoal    StopReason = "fitness_goal"
	StopFlag           StopReason = "stop_flag"
	StopCanceled       StopReason = "canceled"
)
