package agent

// State is the lifecycle state of an agent version.
type State int

const (
	// StateParsed is the state of a freshly constructed agent.
	StateParsed State = iota
	StateInstalling
	// StateWaiting means install succeeded and the agent may be activated.
	StateWaiting
	StateActivating
	// StateActive agents handle fetches.
	StateActive
	// StateRedundant means the last install failed. Installing may be retried.
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateWaiting:
		return "waiting"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateRedundant:
		return "redundant"
	}
	return "unknown"
}
