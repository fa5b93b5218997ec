package pipeline

// Phase describes the container lifecycle state.
type Phase uint8

const (
	PhaseBuilding Phase = iota
	PhaseAssembled
	PhaseStarting
	PhaseServing
	PhaseExited
	PhaseKilled
)

func (p Phase) String() string {
	switch p {
	case PhaseBuilding:
		return "building"
	case PhaseAssembled:
		return "assembled"
	case PhaseStarting:
		return "starting"
	case PhaseServing:
		return "serving"
	case PhaseExited:
		return "exited"
	case PhaseKilled:
		return "killed"
	default:
		return "unknown"
	}
}
