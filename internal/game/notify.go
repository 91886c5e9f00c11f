package game

// NotifyLevel classifies a user-facing notification.
type NotifyLevel int

const (
	NotifySuccess NotifyLevel = iota + 1
	NotifyError
	NotifyWarning
	NotifyInfo
)

func (l NotifyLevel) String() string {
	switch l {
	case NotifySuccess:
		return "success"
	case NotifyError:
		return "error"
	case NotifyWarning:
		return "warning"
	default:
		return "info"
	}
}

// Notifier surfaces transient messages to the player. Implementations must
// never block; every failure path in the game core ends in a notification,
// a retry, or a state reset rather than an error escaping upward.
type Notifier interface {
	Notify(level NotifyLevel, message string)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(NotifyLevel, string) {}
