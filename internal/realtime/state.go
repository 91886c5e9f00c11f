package realtime

// State is the lifecycle state of the realtime channel. It is owned
// exclusively by the channel implementation; everything else reads it.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Reconnecting:
		return "RECONNECTING"
	default:
		return "DISCONNECTED"
	}
}
