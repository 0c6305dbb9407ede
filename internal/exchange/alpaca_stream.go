package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"market-bridge-go/gateway"
	"market-bridge-go/infrastructure/logger"
	"market-bridge-go/infrastructure/monitor"
	"market-bridge-go/internal/store"
	"market-bridge-go/market"
)

const (
	// maxBackoffCap 指数退避的绝对上限。
	maxBackoffCap = 60 * time.Second
	writeWait     = 5 * time.Second
	stopWait      = 5 * time.Second
)

// StreamConfig 行情流参数，构造后不可变。
type StreamConfig struct {
	URL       string // 例如 wss://stream.data.alpaca.markets，不含 /v2/{feed}
	APIKey    string
	APISecret string
	Feed      market.Feed
	Symbols   market.SymbolSet

	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration // 大于 ReconnectDelay 时启用指数退避
	HandshakeTimeout  time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration
	StopOnAuthReject  bool

	Dialer *websocket.Dialer
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.URL == "" {
		c.URL = gateway.AlpacaStreamEndpoint
	}
	if c.Feed == "" {
		c.Feed = market.FeedIEX
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 3 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 15 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 45 * time.Second
	}
	if c.Dialer == nil {
		c.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: c.HandshakeTimeout,
		}
	}
	return c
}

// AlpacaStream 维护到 Alpaca 行情流的长连接，把订阅集合内的最新成交/报价写入 store。
// 连接断开后按退避策略自动重连；所有传输和解析错误都留在循环内部。
type AlpacaStream struct {
	cfg     StreamConfig
	url     string
	store   *store.Store
	logger  *logger.Logger
	monitor *monitor.Monitor

	mu             sync.RWMutex
	state          ConnState
	lastErr        string
	lastErrAt      time.Time
	connectedSince time.Time
	ackTrades      []string
	ackQuotes      []string
	listener       func(from, to ConnState, err error)

	reconnects atomic.Int64
	dropped    atomic.Int64
	ignored    atomic.Int64

	started atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewAlpacaStream 创建行情流；logger 与 monitor 可为 nil。
func NewAlpacaStream(cfg StreamConfig, lg *logger.Logger, mon *monitor.Monitor) *AlpacaStream {
	cfg = cfg.withDefaults()
	if lg == nil {
		lg = logger.NewNop()
	}
	return &AlpacaStream{
		cfg:     cfg,
		url:     gateway.StreamURL(cfg.URL, cfg.Feed),
		store:   store.New(cfg.Symbols),
		logger:  lg,
		monitor: mon,
		state:   StateDisconnected,
		done:    make(chan struct{}),
	}
}

// SetStateListener 设置状态切换回调，在行情流 goroutine 中同步调用。需在 Start 之前设置。
func (s *AlpacaStream) SetStateListener(fn func(from, to ConnState, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = fn
}

// Start 启动后台连接循环后立即返回；重复调用返回 ErrAlreadyStarted。
func (s *AlpacaStream) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	go s.run(ctx)
	return nil
}

// Stop 取消循环、发送 close 帧并等待 goroutine 退出（最多 stopWait）。
func (s *AlpacaStream) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-s.done:
	case <-time.After(stopWait):
		s.logger.Warn("stream goroutine did not exit in time")
	}
}

// Done 在后台循环退出后关闭。
func (s *AlpacaStream) Done() <-chan struct{} { return s.done }

// GetLatest 返回 symbol 的最新 Tick；从未收到时返回 store.ErrNotFound。
func (s *AlpacaStream) GetLatest(symbol string) (market.Tick, error) {
	sym := market.NormalizeSymbol(symbol)
	t, ok := s.store.Latest(sym)
	if !ok {
		return market.Tick{}, fmt.Errorf("%w: %s", store.ErrNotFound, sym)
	}
	return t, nil
}

// Symbols 返回订阅集合。
func (s *AlpacaStream) Symbols() market.SymbolSet { return s.cfg.Symbols }

// Feed 返回当前 feed。
func (s *AlpacaStream) Feed() market.Feed { return s.cfg.Feed }

// Status 返回状态快照。
func (s *AlpacaStream) Status() Status {
	s.mu.RLock()
	st := Status{
		State:          s.state,
		LastError:      s.lastErr,
		LastErrorAt:    timePtr(s.lastErrAt),
		ConnectedSince: timePtr(s.connectedSince),
		AckTrades:      cloneStrings(s.ackTrades),
		AckQuotes:      cloneStrings(s.ackQuotes),
	}
	s.mu.RUnlock()
	st.LastUpdate = timePtr(s.store.LastUpdate())
	st.Reconnects = s.reconnects.Load()
	st.Dropped = s.dropped.Load()
	st.Ignored = s.ignored.Load()
	st.Symbols = s.cfg.Symbols.List()
	st.Feed = s.cfg.Feed.String()
	st.URL = s.url
	st.CachedSymbols = s.store.Len()
	return st
}

func (s *AlpacaStream) setState(to ConnState, err error) {
	s.mu.Lock()
	from := s.state
	if from == to && err == nil {
		s.mu.Unlock()
		return
	}
	s.state = to
	if err != nil {
		s.lastErr = err.Error()
		s.lastErrAt = time.Now()
	}
	switch {
	case to == StateStreaming:
		s.connectedSince = time.Now()
	case from == StateStreaming:
		s.connectedSince = time.Time{}
	}
	fn := s.listener
	s.mu.Unlock()

	s.monitor.UpdateStreamState(int(to), to.String())
	fields := map[string]interface{}{"from": from.String(), "to": to.String()}
	if err != nil {
		fields["error"] = err.Error()
	}
	s.logger.LogEvent("stream_state", fields)
	if fn != nil {
		fn(from, to, err)
	}
}

func (s *AlpacaStream) run(ctx context.Context) {
	defer close(s.done)

	failures := 0
	for {
		streamed, err := s.session(ctx)
		if ctx.Err() != nil {
			s.setState(StateDisconnected, nil)
			return
		}
		if errors.Is(err, ErrAuthRejected) && s.cfg.StopOnAuthReject {
			s.setState(StateDisconnected, err)
			return
		}
		if streamed {
			failures = 0
		}
		failures++
		delay := s.backoffDelay(failures)
		s.setState(StateBackoff, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.setState(StateDisconnected, nil)
			return
		case <-timer.C:
		}
		s.reconnects.Add(1)
		s.monitor.RecordReconnect()
	}
}

// backoffDelay 第 failures 次连续失败后的等待时间。
// 未配置 MaxReconnectDelay 时固定为 ReconnectDelay。
func (s *AlpacaStream) backoffDelay(failures int) time.Duration {
	base := s.cfg.ReconnectDelay
	limit := s.cfg.MaxReconnectDelay
	if limit <= base {
		return base
	}
	if limit > maxBackoffCap {
		limit = maxBackoffCap
	}
	d := base
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	return d
}

// session 完成一次 拨号 -> 认证 -> 订阅 -> 读循环，返回是否进入过 Streaming 以及断开原因。
func (s *AlpacaStream) session(ctx context.Context) (bool, error) {
	s.setState(StateConnecting, nil)

	dialCtx, cancelDial := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	conn, _, err := s.cfg.Dialer.DialContext(dialCtx, s.url, nil)
	cancelDial()
	if err != nil {
		return false, &TransportError{Op: "dial", Err: err}
	}
	defer conn.Close()

	// ctx 取消时发送 close 帧并关闭连接，使阻塞中的 ReadMessage 返回
	stopClose := context.AfterFunc(ctx, func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stopClose()

	pingDone := make(chan struct{})
	defer close(pingDone)
	go s.keepalive(conn, pingDone)

	state := StateAuthenticating
	streamed := false
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	conn.SetPongHandler(func(string) error {
		if state == StateStreaming {
			return conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		return nil
	})

	s.setState(StateAuthenticating, nil)
	if err := s.write(conn, gateway.AuthMessage(s.cfg.APIKey, s.cfg.APISecret)); err != nil {
		return false, err
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if state.handshaking() && isTimeout(err) {
				return streamed, ErrHandshakeTimeout
			}
			return streamed, &TransportError{Op: "read", Err: err}
		}
		if state == StateStreaming {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}

		frame, err := gateway.ParseStreamFrame(raw)
		if err != nil {
			s.drop("malformed", 1)
			continue
		}
		s.drop("malformed", frame.Malformed)

		for _, c := range frame.Controls {
			switch c.Type {
			case gateway.MsgTypeSuccess:
				if c.Msg == gateway.SuccessAuthenticated && state == StateAuthenticating {
					if err := s.write(conn, gateway.SubscribeMessage(s.cfg.Symbols.List())); err != nil {
						return streamed, err
					}
					state = StateSubscribed
					s.setState(StateSubscribed, nil)
				}
			case gateway.MsgTypeSubscription:
				s.mu.Lock()
				s.ackTrades = cloneStrings(c.Trades)
				s.ackQuotes = cloneStrings(c.Quotes)
				s.mu.Unlock()
				s.logger.LogEvent("stream_subscribed", map[string]interface{}{
					"trades": c.Trades,
					"quotes": c.Quotes,
				})
				if state == StateSubscribed {
					state = StateStreaming
					streamed = true
					_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
					s.setState(StateStreaming, nil)
				}
			case gateway.MsgTypeError:
				if gateway.IsAuthRejection(c.Code) {
					return streamed, fmt.Errorf("%w: code %d %s", ErrAuthRejected, c.Code, c.Msg)
				}
				verr := &VendorError{Code: c.Code, Msg: c.Msg}
				if state.handshaking() {
					return streamed, verr
				}
				s.logger.Warn("vendor error while streaming", zap.Int("code", c.Code), zap.String("msg", c.Msg))
			}
		}

		s.apply(frame)
	}
}

func (s *AlpacaStream) apply(frame gateway.Frame) {
	accepted := false
	for _, t := range frame.Trades {
		if s.store.ApplyTrade(t) {
			accepted = true
			s.monitor.RecordStreamMessage(string(market.KindTrade))
		} else {
			s.ignore()
		}
	}
	for _, q := range frame.Quotes {
		if s.store.ApplyQuote(q) {
			accepted = true
			s.monitor.RecordStreamMessage(string(market.KindQuote))
		} else {
			s.ignore()
		}
	}
	if frame.Unknown > 0 {
		s.monitor.RecordStreamDropped("unknown", frame.Unknown)
	}
	if accepted {
		s.monitor.UpdateLastStreamUpdate(float64(s.store.LastUpdate().UnixNano()) / 1e9)
	}
}

func (s *AlpacaStream) drop(reason string, n int) {
	if n <= 0 {
		return
	}
	s.dropped.Add(int64(n))
	s.monitor.RecordStreamDropped(reason, n)
	s.logger.LogEvent("stream_dropped", map[string]interface{}{"reason": reason, "count": n})
}

func (s *AlpacaStream) ignore() {
	s.ignored.Add(1)
	s.monitor.RecordStreamDropped("unsubscribed", 1)
}

func (s *AlpacaStream) write(conn *websocket.Conn, msg []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// keepalive 定期发送 ping；WriteControl 可与读写并发调用。
func (s *AlpacaStream) keepalive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
