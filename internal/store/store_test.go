package store

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-bridge-go/market"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fixedClock(start time.Time) func() time.Time {
	cur := start
	return func() time.Time {
		cur = cur.Add(time.Millisecond)
		return cur
	}
}

func TestStore_IgnoresUnsubscribedSymbols(t *testing.T) {
	st := New(market.NewSymbolSet("SPY"))

	assert.False(t, st.ApplyTrade(market.TradeUpdate{Symbol: "QQQ", Price: dec("500")}))
	assert.False(t, st.ApplyQuote(market.QuoteUpdate{Symbol: "QQQ", BidPrice: dec("1"), AskPrice: dec("2")}))

	_, ok := st.Latest("QQQ")
	assert.False(t, ok)
	assert.Equal(t, 0, st.Len())
	assert.True(t, st.LastUpdate().IsZero())
}

func TestStore_TradeOverwrites(t *testing.T) {
	st := New(market.NewSymbolSet("SPY"))
	st.now = fixedClock(time.Unix(0, 0))

	prices := []string{"680.01", "680.50", "679.99"}
	for i, p := range prices {
		require.True(t, st.ApplyTrade(market.TradeUpdate{
			Symbol:    "spy",
			Price:     dec(p),
			Size:      int64(i + 1),
			HasSize:   true,
			Timestamp: p + "-ts",
		}))
	}

	tk, ok := st.Latest("SPY")
	require.True(t, ok)
	assert.Equal(t, "SPY", tk.Symbol)
	assert.True(t, tk.Price.Equal(dec("679.99")))
	assert.Equal(t, int64(3), tk.Size)
	assert.Equal(t, "679.99-ts", tk.TradeTimestamp)
	assert.Equal(t, market.KindTrade, tk.Kind)
	assert.False(t, tk.HasQuote)
	assert.Equal(t, tk.UpdatedAt, st.LastUpdate())
}

func TestStore_QuoteThenTradeKeepsQuoteFields(t *testing.T) {
	st := New(market.NewSymbolSet("SPY"))

	require.True(t, st.ApplyQuote(market.QuoteUpdate{
		Symbol: "SPY", BidPrice: dec("680.10"), BidSize: 2, AskPrice: dec("680.15"), AskSize: 4, Timestamp: "q1",
	}))
	require.True(t, st.ApplyTrade(market.TradeUpdate{Symbol: "SPY", Price: dec("680.12"), Timestamp: "t1"}))

	tk, ok := st.Latest("spy")
	require.True(t, ok)
	assert.True(t, tk.HasQuote)
	assert.True(t, tk.HasTrade)
	assert.True(t, tk.BidPrice.Equal(dec("680.10")))
	assert.True(t, tk.AskPrice.Equal(dec("680.15")))
	assert.Equal(t, int64(4), tk.AskSize)
	assert.Equal(t, "q1", tk.QuoteTimestamp)
	assert.True(t, tk.Price.Equal(dec("680.12")))
	assert.False(t, tk.HasSize)

	// 再来一条报价，成交字段保持不变
	require.True(t, st.ApplyQuote(market.QuoteUpdate{Symbol: "SPY", BidPrice: dec("681"), AskPrice: dec("681.02"), Timestamp: "q2"}))
	tk, _ = st.Latest("SPY")
	assert.True(t, tk.Price.Equal(dec("680.12")))
	assert.Equal(t, "t1", tk.TradeTimestamp)
	assert.Equal(t, market.KindQuote, tk.Kind)
	assert.Equal(t, "q2", tk.Timestamp)
}

func TestStore_Symbols(t *testing.T) {
	st := New(market.ParseSymbolList("spy,qqq"))
	assert.Equal(t, []string{"SPY", "QQQ"}, st.Subscribed().List())
	assert.True(t, st.Subscribed().Contains("qqq"))
}
