package driver

// State is the lifecycle stage of a Driver.
type State int

// Driver states. A driver moves from Configuring to Running and ends in
// Completed, or in Aborted if a step fails.
const (
	Configuring State = iota
	Running
	Completed
	Aborted
)

func (s State) String() string {
	switch s {
	case Configuring:
		return "configuring"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}
