package gateway

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-bridge-go/market"
)

func TestParseStreamFrameTradesAndQuotes(t *testing.T) {
	raw := []byte(`[
		{"T":"t","S":"spy","i":52983525029461,"x":"V","p":680.12,"s":100,"c":["@"],"z":"B","t":"2025-01-02T15:04:05.123456789Z"},
		{"T":"q","S":"SPY","bx":"V","bp":680.10,"bs":3,"ax":"V","ap":680.14,"as":5,"c":["R"],"z":"B","t":"2025-01-02T15:04:05.2Z"},
		{"T":"b","S":"SPY","o":1,"h":2,"l":0.5,"c":1.5,"v":10}
	]`)
	frame, err := ParseStreamFrame(raw)
	require.NoError(t, err)
	require.Len(t, frame.Trades, 1)
	require.Len(t, frame.Quotes, 1)
	assert.Equal(t, 1, frame.Unknown)
	assert.Equal(t, 0, frame.Malformed)

	tr := frame.Trades[0]
	assert.Equal(t, "SPY", tr.Symbol)
	assert.True(t, tr.Price.Equal(decimal.RequireFromString("680.12")))
	assert.True(t, tr.HasSize)
	assert.Equal(t, int64(100), tr.Size)
	assert.Equal(t, "2025-01-02T15:04:05.123456789Z", tr.Timestamp)

	q := frame.Quotes[0]
	assert.True(t, q.BidPrice.Equal(decimal.RequireFromString("680.10")))
	assert.True(t, q.AskPrice.Equal(decimal.RequireFromString("680.14")))
	assert.Equal(t, int64(3), q.BidSize)
	assert.Equal(t, int64(5), q.AskSize)
}

func TestParseStreamFrameControls(t *testing.T) {
	frame, err := ParseStreamFrame([]byte(`[{"T":"success","msg":"connected"}]`))
	require.NoError(t, err)
	require.Len(t, frame.Controls, 1)
	assert.Equal(t, MsgTypeSuccess, frame.Controls[0].Type)
	assert.Equal(t, SuccessConnected, frame.Controls[0].Msg)

	frame, err = ParseStreamFrame([]byte(`[{"T":"error","code":402,"msg":"auth failed"}]`))
	require.NoError(t, err)
	require.Len(t, frame.Controls, 1)
	assert.Equal(t, CodeAuthFailed, frame.Controls[0].Code)
	assert.True(t, IsAuthRejection(frame.Controls[0].Code))

	frame, err = ParseStreamFrame([]byte(`{"T":"subscription","trades":["SPY"],"quotes":["SPY"],"bars":[]}`))
	require.NoError(t, err)
	require.Len(t, frame.Controls, 1)
	assert.Equal(t, []string{"SPY"}, frame.Controls[0].Trades)
	assert.Equal(t, []string{"SPY"}, frame.Controls[0].Quotes)
}

func TestParseStreamFrameMalformed(t *testing.T) {
	for _, raw := range []string{"", "not json", "[{", `"str"`, "42"} {
		_, err := ParseStreamFrame([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformedFrame, "frame %q", raw)
	}

	frame, err := ParseStreamFrame([]byte(`[{"T":"t","S":"SPY"},{"T":"q","S":"SPY","bp":1},"x",{"T":"t","S":"SPY","p":"abc"},{"T":"t","S":"QQQ","p":1.5}]`))
	require.NoError(t, err)
	assert.Equal(t, 4, frame.Malformed)
	require.Len(t, frame.Trades, 1)
	assert.Equal(t, "QQQ", frame.Trades[0].Symbol)
	assert.False(t, frame.Trades[0].HasSize)
}

func TestIsAuthRejection(t *testing.T) {
	assert.True(t, IsAuthRejection(CodeInsufficientSubscription))
	assert.False(t, IsAuthRejection(CodeConnectionLimitExceeded))
	assert.False(t, IsAuthRejection(CodeAuthTimeout))
}

func TestAuthAndSubscribeMessages(t *testing.T) {
	var auth map[string]string
	require.NoError(t, json.Unmarshal(AuthMessage("k", "s"), &auth))
	assert.Equal(t, map[string]string{"action": "auth", "key": "k", "secret": "s"}, auth)

	var sub struct {
		Action string   `json:"action"`
		Trades []string `json:"trades"`
		Quotes []string `json:"quotes"`
	}
	require.NoError(t, json.Unmarshal(SubscribeMessage([]string{"SPY", "QQQ"}), &sub))
	assert.Equal(t, "subscribe", sub.Action)
	assert.Equal(t, []string{"SPY", "QQQ"}, sub.Trades)
	assert.Equal(t, []string{"SPY", "QQQ"}, sub.Quotes)

	assert.JSONEq(t, `{"action":"subscribe","trades":[],"quotes":[]}`, string(SubscribeMessage(nil)))
}

func TestStreamURL(t *testing.T) {
	assert.Equal(t, "wss://stream.data.alpaca.markets/v2/sip", StreamURL(AlpacaStreamEndpoint+"/", market.FeedSIP))
	assert.Equal(t, "ws://127.0.0.1:1/v2/iex", StreamURL("ws://127.0.0.1:1", market.FeedIEX))
}
