package exchange

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyStarted   = errors.New("stream already started")
	ErrAuthRejected     = errors.New("stream authentication rejected")
	ErrHandshakeTimeout = errors.New("stream handshake timed out")
)

// TransportError 拨号/读/写失败，状态机进入 Backoff。
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stream %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// VendorError 服务端返回的非认证类错误（例如 406 连接数超限）。
type VendorError struct {
	Code int
	Msg  string
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("vendor error %d: %s", e.Code, e.Msg)
}
