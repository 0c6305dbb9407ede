package alert

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"market-bridge-go/infrastructure/logger"
)

type recordingChannel struct {
	name string
	err  error

	mu   sync.Mutex
	sent []Alert
}

func (c *recordingChannel) Send(a Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, a)
	return c.err
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func TestThrottler(t *testing.T) {
	th := NewThrottler(time.Minute)
	now := time.Now()

	assert.True(t, th.Allow("k", now))
	assert.False(t, th.Allow("k", now.Add(30*time.Second)))
	assert.True(t, th.Allow("other", now))
	assert.True(t, th.Allow("k", now.Add(time.Minute)))

	th.Reset("k")
	assert.True(t, th.Allow("k", now.Add(61*time.Second)))
}

func TestManagerFanOutAndThrottle(t *testing.T) {
	a := &recordingChannel{name: "a"}
	b := &recordingChannel{name: "b"}
	m := NewManager(time.Minute, a)
	m.AddChannel(b)
	assert.Equal(t, []string{"a", "b"}, m.Channels())

	now := time.Now()
	sent, err := m.Send(Alert{Level: LevelWarning, Key: "stream_down", Message: "down", Timestamp: now})
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = m.Send(Alert{Level: LevelWarning, Key: "stream_down", Message: "down", Timestamp: now.Add(time.Second)})
	require.NoError(t, err)
	assert.False(t, sent)

	m.Resolve("stream_down")
	sent, _ = m.Send(Alert{Level: LevelWarning, Key: "stream_down", Message: "down", Timestamp: now.Add(2 * time.Second)})
	assert.True(t, sent)

	assert.Equal(t, 2, a.count())
	assert.Equal(t, 2, b.count())
}

func TestManagerDefaultKeyAndTimestamp(t *testing.T) {
	ch := &recordingChannel{name: "rec"}
	m := NewManager(time.Hour, ch)

	sent, _ := m.Send(Alert{Level: LevelInfo, Message: "hello"})
	assert.True(t, sent)
	sent, _ = m.Send(Alert{Level: LevelInfo, Message: "hello"})
	assert.False(t, sent)
	sent, _ = m.Send(Alert{Level: LevelError, Message: "hello"})
	assert.True(t, sent)

	require.Equal(t, 2, ch.count())
	assert.False(t, ch.sent[0].Timestamp.IsZero())
}

func TestManagerChannelErrors(t *testing.T) {
	ok := &recordingChannel{name: "ok"}
	bad := &recordingChannel{name: "bad", err: errors.New("boom")}

	sent, err := NewManager(0, ok, bad).Send(Alert{Level: LevelError, Message: "x"})
	assert.True(t, sent)
	assert.NoError(t, err)

	sent, err = NewManager(0, bad).Send(Alert{Level: LevelError, Message: "x"})
	assert.True(t, sent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel bad failed")
}

func TestLogChannelLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ch := NewLogChannel("log", logger.FromZap(zap.New(core)))
	assert.Equal(t, "log", ch.Name())

	require.NoError(t, ch.Send(Alert{Level: LevelCritical, Key: "a", Message: "critical"}))
	require.NoError(t, ch.Send(Alert{Level: LevelWarning, Key: "b", Message: "warn", Fields: map[string]interface{}{"down_for": "1m0s"}}))
	require.NoError(t, ch.Send(Alert{Level: LevelInfo, Key: "c", Message: "info"}))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "1m0s", entries[1].ContextMap()["down_for"])
	assert.Equal(t, "b", entries[1].ContextMap()["alert_key"])
	assert.Equal(t, zapcore.InfoLevel, entries[2].Level)
}
