package market

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// 价格按 JSON 数字输出（而不是带引号的字符串），保持与行情源一致。
	decimal.MarshalJSONWithoutQuotes = true
}

// Kind 标识一次更新来自成交还是报价。
type Kind string

const (
	KindTrade Kind = "trade"
	KindQuote Kind = "quote"
)

// TradeUpdate 一条成交消息中我们关心的字段。
type TradeUpdate struct {
	Symbol    string
	Price     decimal.Decimal
	Size      int64
	HasSize   bool
	Timestamp string
}

// QuoteUpdate 一条报价消息中我们关心的字段。
type QuoteUpdate struct {
	Symbol    string
	BidPrice  decimal.Decimal
	BidSize   int64
	AskPrice  decimal.Decimal
	AskSize   int64
	Timestamp string
}

// Tick 某个 symbol 最近一次观测到的成交/报价。
// 成交字段与报价字段互不覆盖：报价更新不会清空成交字段，反之亦然。
type Tick struct {
	Symbol string
	Kind   Kind

	HasTrade       bool
	Price          decimal.Decimal
	Size           int64
	HasSize        bool
	TradeTimestamp string

	HasQuote       bool
	BidPrice       decimal.Decimal
	BidSize        int64
	AskPrice       decimal.Decimal
	AskSize        int64
	QuoteTimestamp string

	// Timestamp 是最近一次更新的行情源时间戳，原样保存，不做解析。
	Timestamp string
	UpdatedAt time.Time
}

// ApplyTrade 覆盖成交字段并返回新的 Tick。
func (t Tick) ApplyTrade(u TradeUpdate, now time.Time) Tick {
	t.Symbol = u.Symbol
	t.Kind = KindTrade
	t.HasTrade = true
	t.Price = u.Price
	t.Size = u.Size
	t.HasSize = u.HasSize
	t.TradeTimestamp = u.Timestamp
	t.Timestamp = u.Timestamp
	t.UpdatedAt = now
	return t
}

// ApplyQuote 覆盖报价字段并返回新的 Tick。
func (t Tick) ApplyQuote(u QuoteUpdate, now time.Time) Tick {
	t.Symbol = u.Symbol
	t.Kind = KindQuote
	t.HasQuote = true
	t.BidPrice = u.BidPrice
	t.BidSize = u.BidSize
	t.AskPrice = u.AskPrice
	t.AskSize = u.AskSize
	t.QuoteTimestamp = u.Timestamp
	t.Timestamp = u.Timestamp
	t.UpdatedAt = now
	return t
}

// Mid 返回买卖一中间价；报价缺失时返回 0, false。
func (t Tick) Mid() (decimal.Decimal, bool) {
	if !t.HasQuote || t.BidPrice.IsZero() || t.AskPrice.IsZero() {
		return decimal.Zero, false
	}
	return t.BidPrice.Add(t.AskPrice).Div(decimal.NewFromInt(2)), true
}

// Staleness 返回距离上次更新的时长；从未更新时返回一年。
func (t Tick) Staleness(now time.Time) time.Duration {
	if t.UpdatedAt.IsZero() {
		return time.Hour * 24 * 365
	}
	return now.Sub(t.UpdatedAt)
}
