package redirect

// State is the lifecycle stage of a Server.
type State int

const (
	Created State = iota
	Listening
	RequestCaptured
	ShuttingDown
	Stopped
)

func (s State) String() string {
	switch s {
	case Created:
		return "Created"
	case Listening:
		return "Listening"
	case RequestCaptured:
		return "RequestCaptured"
	case ShuttingDown:
		return "ShuttingDown"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}
