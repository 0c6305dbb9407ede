package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"market-bridge-go/market"
)

// ErrMalformedFrame 整帧不是合法 JSON（数组或对象）。
var ErrMalformedFrame = errors.New("malformed stream frame")

// 行情流消息类型（字段 "T"）。
const (
	MsgTypeTrade        = "t"
	MsgTypeQuote        = "q"
	MsgTypeSuccess      = "success"
	MsgTypeError        = "error"
	MsgTypeSubscription = "subscription"
)

// success 消息的 msg 取值
const (
	SuccessConnected     = "connected"
	SuccessAuthenticated = "authenticated"
)

// 行情流错误码，见 Alpaca market data stream 文档。
const (
	CodeInvalidSyntax            = 400
	CodeNotAuthenticated         = 401
	CodeAuthFailed               = 402
	CodeAlreadyAuthenticated     = 403
	CodeAuthTimeout              = 404
	CodeSymbolLimitExceeded      = 405
	CodeConnectionLimitExceeded  = 406
	CodeSlowClient               = 407
	CodeInsufficientSubscription = 409
	CodeInternalError            = 500
)

// IsAuthRejection 认证失败或账户无权订阅该 feed；换同样的凭证重试也不会成功。
func IsAuthRejection(code int) bool {
	return code == CodeAuthFailed || code == CodeInsufficientSubscription
}

// StreamControl 控制类消息：success / error / subscription。
type StreamControl struct {
	Type   string
	Msg    string
	Code   int
	Trades []string
	Quotes []string
}

// Frame 一次 ReadMessage 解出的全部内容。
type Frame struct {
	Trades    []market.TradeUpdate
	Quotes    []market.QuoteUpdate
	Controls  []StreamControl
	Unknown   int // 无法识别的类型，忽略
	Malformed int // 类型已知但字段缺失/非法的元素
}

type streamElement struct {
	Type   string `json:"T"`
	Symbol string `json:"S"`

	Price *decimal.Decimal `json:"p"`
	Size  *int64           `json:"s"`

	BidPrice *decimal.Decimal `json:"bp"`
	BidSize  int64            `json:"bs"`
	AskPrice *decimal.Decimal `json:"ap"`
	AskSize  int64            `json:"as"`

	Timestamp string `json:"t"`

	Msg    string   `json:"msg"`
	Code   int      `json:"code"`
	Trades []string `json:"trades"`
	Quotes []string `json:"quotes"`
}

// ParseStreamFrame 解析一帧行情流消息。服务端通常发送 JSON 数组，单个对象也接受。
// 只有整帧无法解析时返回 ErrMalformedFrame；单个坏元素计入 Malformed 后跳过。
func ParseStreamFrame(raw []byte) (Frame, error) {
	var frame Frame
	elems, err := splitFrame(raw)
	if err != nil {
		return frame, err
	}
	for _, el := range elems {
		var e streamElement
		if err := json.Unmarshal(el, &e); err != nil {
			frame.Malformed++
			continue
		}
		switch e.Type {
		case MsgTypeTrade:
			if e.Symbol == "" || e.Price == nil {
				frame.Malformed++
				continue
			}
			tu := market.TradeUpdate{
				Symbol:    market.NormalizeSymbol(e.Symbol),
				Price:     *e.Price,
				Timestamp: e.Timestamp,
			}
			if e.Size != nil {
				tu.Size = *e.Size
				tu.HasSize = true
			}
			frame.Trades = append(frame.Trades, tu)
		case MsgTypeQuote:
			if e.Symbol == "" || e.BidPrice == nil || e.AskPrice == nil {
				frame.Malformed++
				continue
			}
			frame.Quotes = append(frame.Quotes, market.QuoteUpdate{
				Symbol:    market.NormalizeSymbol(e.Symbol),
				BidPrice:  *e.BidPrice,
				BidSize:   e.BidSize,
				AskPrice:  *e.AskPrice,
				AskSize:   e.AskSize,
				Timestamp: e.Timestamp,
			})
		case MsgTypeSuccess, MsgTypeError, MsgTypeSubscription:
			frame.Controls = append(frame.Controls, StreamControl{
				Type:   e.Type,
				Msg:    e.Msg,
				Code:   e.Code,
				Trades: e.Trades,
				Quotes: e.Quotes,
			})
		default:
			frame.Unknown++
		}
	}
	return frame, nil
}

func splitFrame(raw []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, ErrMalformedFrame
	}
	switch trimmed[0] {
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return nil, ErrMalformedFrame
		}
		return elems, nil
	case '{':
		if !json.Valid(trimmed) {
			return nil, ErrMalformedFrame
		}
		return []json.RawMessage{json.RawMessage(trimmed)}, nil
	default:
		return nil, ErrMalformedFrame
	}
}

type authRequest struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

type subscribeRequest struct {
	Action string   `json:"action"`
	Trades []string `json:"trades"`
	Quotes []string `json:"quotes"`
}

// AuthMessage 构造认证消息。
func AuthMessage(key, secret string) []byte {
	b, _ := json.Marshal(authRequest{Action: "auth", Key: key, Secret: secret})
	return b
}

// SubscribeMessage 同时订阅 trades 与 quotes。
func SubscribeMessage(symbols []string) []byte {
	if symbols == nil {
		symbols = []string{}
	}
	b, _ := json.Marshal(subscribeRequest{Action: "subscribe", Trades: symbols, Quotes: symbols})
	return b
}

// StreamURL 拼出 {base}/v2/{feed}，例如 wss://stream.data.alpaca.markets/v2/sip。
func StreamURL(base string, feed market.Feed) string {
	return strings.TrimRight(base, "/") + "/v2/" + feed.String()
}
