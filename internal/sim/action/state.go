package action

// State is the lifecycle of one in-flight action. Idle is both the initial
// state and the state an instance returns to after the grace delay, so a
// single instance can be reused across invocations.
type State int

const (
	Idle State = iota
	Starting
	InProgress
	Completing
	Completed
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Starting:
		return "Starting"
	case InProgress:
		return "InProgress"
	case Completing:
		return "Completing"
	case Completed:
		return "Completed"
	case Cancelled:
		return "Cancelled"
	case Failed:
		return "Failed"
	}
	return "Unknown"
}

// Active reports whether the action currently occupies its owner: a second
// action may not start while one is in any of these states.
func (s State) Active() bool {
	switch s {
	case Starting, InProgress, Completing:
		return true
	}
	return false
}
