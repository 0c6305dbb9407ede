package exchange

import (
	"context"
	"errors"
	"sync"
	"time"

	"market-bridge-go/infrastructure/alert"
)

const (
	alertKeyStreamDown   = "stream_down"
	alertKeyAuthRejected = "stream_auth_rejected"
	alertKeyRecovered    = "stream_recovered"
)

// Watchdog 订阅行情流状态切换：认证被拒立即告警，
// 持续 downAfter 未处于 Streaming 时告警一次，恢复后发送恢复通知。
type Watchdog struct {
	alerts    *alert.Manager
	downAfter time.Duration
	interval  time.Duration
	now       func() time.Time

	mu        sync.Mutex
	streaming bool
	downSince time.Time
	lastState ConnState
	alerted   bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatchdog downAfter 为 0 时只处理认证失败告警。
func NewWatchdog(alerts *alert.Manager, downAfter time.Duration) *Watchdog {
	interval := downAfter / 4
	if interval <= 0 || interval > 5*time.Second {
		interval = 5 * time.Second
	}
	w := &Watchdog{
		alerts:    alerts,
		downAfter: downAfter,
		interval:  interval,
		now:       time.Now,
	}
	w.downSince = w.now()
	return w
}

// Observe 作为 AlpacaStream 的状态监听器。
func (w *Watchdog) Observe(from, to ConnState, err error) {
	now := w.now()

	w.mu.Lock()
	w.lastState = to
	recovered := false
	switch {
	case to == StateStreaming:
		recovered = w.alerted
		w.streaming = true
		w.downSince = time.Time{}
		w.alerted = false
	case from == StateStreaming || w.downSince.IsZero():
		w.streaming = false
		w.downSince = now
	}
	w.mu.Unlock()

	if recovered {
		w.alerts.Resolve(alertKeyStreamDown)
		_, _ = w.alerts.Send(alert.Alert{
			Level:     alert.LevelInfo,
			Key:       alertKeyRecovered,
			Message:   "market data stream recovered",
			Timestamp: now,
		})
	}
	if errors.Is(err, ErrAuthRejected) {
		_, _ = w.alerts.Send(alert.Alert{
			Level:     alert.LevelError,
			Key:       alertKeyAuthRejected,
			Message:   "market data stream authentication rejected",
			Timestamp: now,
			Fields:    map[string]interface{}{"error": err.Error(), "state": to.String()},
		})
	}
}

// Check 判断是否需要发出 stream_down 告警。
func (w *Watchdog) Check() {
	if w.downAfter <= 0 {
		return
	}
	now := w.now()

	w.mu.Lock()
	if w.streaming || w.alerted || w.downSince.IsZero() || now.Sub(w.downSince) < w.downAfter {
		w.mu.Unlock()
		return
	}
	w.alerted = true
	downFor := now.Sub(w.downSince)
	state := w.lastState
	w.mu.Unlock()

	_, _ = w.alerts.Send(alert.Alert{
		Level:     alert.LevelWarning,
		Key:       alertKeyStreamDown,
		Message:   "market data stream not streaming",
		Timestamp: now,
		Fields:    map[string]interface{}{"down_for": downFor.String(), "state": state.String()},
	})
}

func (w *Watchdog) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.Check()
			}
		}
	}()
	return nil
}

func (w *Watchdog) Stop() error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	<-w.done
	return nil
}

func (w *Watchdog) Health() error { return nil }
