package riotls

// State
// 连接生命周期。
//
// Disconnected -> Connecting -> Connected -> Handshaking -> ApplicationData -> Closed，
// 任何阶段的失败都进入 Failed。
type State uint32

const (
	Disconnected State = iota
	Connecting
	Connected
	Handshaking
	ApplicationData
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Handshaking:
		return "handshaking"
	case ApplicationData:
		return "application_data"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}
