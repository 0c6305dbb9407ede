package exchange

import (
	"fmt"
	"time"
)

// ConnState 行情流连接状态。
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateAuthenticating
	StateSubscribed
	StateStreaming
	StateBackoff
)

var stateNames = [...]string{
	StateDisconnected:   "disconnected",
	StateConnecting:     "connecting",
	StateAuthenticating: "authenticating",
	StateSubscribed:     "subscribed",
	StateStreaming:      "streaming",
	StateBackoff:        "backoff",
}

func (s ConnState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText 让 Status 序列化为可读的状态名。
func (s ConnState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// handshaking 认证/订阅阶段，读超时使用 HandshakeTimeout。
func (s ConnState) handshaking() bool {
	return s == StateConnecting || s == StateAuthenticating || s == StateSubscribed
}

// Status 行情流状态快照，供 /stream_status 与健康检查使用。
type Status struct {
	State          ConnState  `json:"state"`
	LastError      string     `json:"last_error,omitempty"`
	LastErrorAt    *time.Time `json:"last_error_at,omitempty"`
	LastUpdate     *time.Time `json:"last_update,omitempty"`
	ConnectedSince *time.Time `json:"connected_since,omitempty"`
	Reconnects     int64      `json:"reconnects"`
	Dropped        int64      `json:"dropped"`
	Ignored        int64      `json:"ignored"`
	Symbols        []string   `json:"symbols"`
	Feed           string     `json:"feed"`
	URL            string     `json:"url"`
	AckTrades      []string   `json:"subscribed_trades"`
	AckQuotes      []string   `json:"subscribed_quotes"`
	CachedSymbols  int        `json:"cached_symbols"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
