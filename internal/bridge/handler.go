package bridge

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"market-bridge-go/gateway"
	"market-bridge-go/infrastructure/logger"
	"market-bridge-go/infrastructure/monitor"
	"market-bridge-go/internal/exchange"
	"market-bridge-go/internal/store"
	"market-bridge-go/market"
)

const (
	defaultTimeframe = "5Min"
	defaultLimit     = 20
	minLimit         = 1
	maxLimit         = 1000

	healthMessage = "Alpaca Bridge is live (raw prices, stocks + futures)."
)

// TickSource 行情缓存的只读视图（由 exchange.AlpacaStream 实现）。
type TickSource interface {
	GetLatest(symbol string) (market.Tick, error)
	Status() exchange.Status
	Symbols() market.SymbolSet
	Feed() market.Feed
}

// VendorClient 上游 REST 调用（由 gateway.AlpacaRESTClient 实现）。
type VendorClient interface {
	Bars(ctx context.Context, req gateway.BarsRequest) (*gateway.RawResponse, error)
	LatestTrade(ctx context.Context, symbol string) (market.Tick, error)
}

// Options HTTP 层的开关。
type Options struct {
	CredentialsConfigured bool
	QuoteFallback         bool
	VendorTimeout         time.Duration
}

// Handler 实现所有对外接口。
type Handler struct {
	ticks   TickSource
	vendor  VendorClient
	opts    Options
	logger  *logger.Logger
	monitor *monitor.Monitor
}

func NewHandler(ticks TickSource, vendor VendorClient, opts Options, lg *logger.Logger, mon *monitor.Monitor) *Handler {
	if lg == nil {
		lg = logger.NewNop()
	}
	if opts.VendorTimeout <= 0 {
		opts.VendorTimeout = 10 * time.Second
	}
	return &Handler{ticks: ticks, vendor: vendor, opts: opts, logger: lg, monitor: mon}
}

type healthResponse struct {
	Status                string   `json:"status"`
	Message               string   `json:"message"`
	CredentialsConfigured bool     `json:"credentials_configured"`
	Symbols               []string `json:"symbols"`
	Feed                  string   `json:"feed"`
	StreamState           string   `json:"stream_state"`
	FuturesRoots          []string `json:"futures_roots"`
}

// Health GET / 与 /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:                "ok",
		Message:               healthMessage,
		CredentialsConfigured: h.opts.CredentialsConfigured,
		Symbols:               h.ticks.Symbols().List(),
		Feed:                  h.ticks.Feed().String(),
		StreamState:           h.ticks.Status().State.String(),
		FuturesRoots:          market.FuturesRoots(),
	})
}

// Bars GET /bars：原样透传上游状态码与响应体。
func (h *Handler) Bars(c *gin.Context) {
	symbol := market.NormalizeSymbol(c.Query("symbol"))
	if symbol == "" {
		fail(c, http.StatusBadRequest, "query parameter 'symbol' is required")
		return
	}
	limit := defaultLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < minLimit || n > maxLimit {
			fail(c, http.StatusBadRequest, "limit must be an integer between 1 and 1000")
			return
		}
		limit = n
	}
	timeframe := strings.TrimSpace(c.Query("timeframe"))
	if timeframe == "" {
		timeframe = defaultTimeframe
	}
	req := gateway.BarsRequest{
		Symbol:    symbol,
		Timeframe: timeframe,
		Limit:     limit,
		Start:     strings.TrimSpace(c.Query("start")),
		End:       strings.TrimSpace(c.Query("end")),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.opts.VendorTimeout)
	defer cancel()

	class := market.Classify(symbol)
	start := time.Now()
	h.monitor.RecordRESTRequest("bars")
	resp, err := h.vendor.Bars(ctx, req)
	h.monitor.RecordRESTLatency("bars", time.Since(start).Seconds())
	if err != nil {
		h.monitor.RecordRESTError("bars")
		h.logger.LogEvent("bars_request", map[string]interface{}{
			"symbol": symbol, "class": string(class), "status": http.StatusBadGateway, "error": err.Error(),
		})
		fail(c, http.StatusBadGateway, "vendor error: "+err.Error())
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		h.monitor.RecordRESTError("bars")
	}
	h.logger.LogEvent("bars_request", map[string]interface{}{
		"symbol": symbol, "class": string(class), "status": resp.StatusCode,
	})
	c.Data(resp.StatusCode, relayContentType(resp.ContentType), resp.Body)
}

// relayContentType 上游未声明类型时按 JSON 处理。
func relayContentType(ct string) string {
	if ct == "" {
		return "application/json"
	}
	return ct
}

type quoteResponse struct {
	Symbol         string           `json:"symbol"`
	Kind           market.Kind      `json:"kind,omitempty"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	Mid            *decimal.Decimal `json:"mid,omitempty"`
	Size           *int64           `json:"size,omitempty"`
	Timestamp      string           `json:"timestamp"`
	BidPrice       *decimal.Decimal `json:"bid_price,omitempty"`
	BidSize        *int64           `json:"bid_size,omitempty"`
	AskPrice       *decimal.Decimal `json:"ask_price,omitempty"`
	AskSize        *int64           `json:"ask_size,omitempty"`
	TradeTimestamp string           `json:"trade_timestamp,omitempty"`
	QuoteTimestamp string           `json:"quote_timestamp,omitempty"`
	UpdatedAt      *time.Time       `json:"updated_at,omitempty"`
	StalenessMS    *int64           `json:"staleness_ms,omitempty"`
	Source         string           `json:"source"`
}

// newQuoteResponse price 只来自成交；只有报价时 price 为空，mid 单独给出。
func newQuoteResponse(t market.Tick, source string, now time.Time) quoteResponse {
	r := quoteResponse{
		Symbol:    t.Symbol,
		Kind:      t.Kind,
		Timestamp: t.Timestamp,
		Source:    source,
	}
	if t.HasTrade {
		price := t.Price
		r.Price = &price
		if t.HasSize {
			size := t.Size
			r.Size = &size
		}
		r.TradeTimestamp = t.TradeTimestamp
	}
	if t.HasQuote {
		bp, ap := t.BidPrice, t.AskPrice
		bs, as := t.BidSize, t.AskSize
		r.BidPrice, r.AskPrice = &bp, &ap
		r.BidSize, r.AskSize = &bs, &as
		r.QuoteTimestamp = t.QuoteTimestamp
		if mid, ok := t.Mid(); ok {
			r.Mid = &mid
		}
	}
	if !t.UpdatedAt.IsZero() {
		u := t.UpdatedAt
		r.UpdatedAt = &u
		age := t.Staleness(now).Milliseconds()
		r.StalenessMS = &age
	}
	return r
}

// Quote GET /quote（及别名 /last_quote、/latest_trade）：只读缓存，不访问网络，
// 除非开启了 quote_fallback 且缓存未命中。
func (h *Handler) Quote(c *gin.Context) {
	symbol := market.NormalizeSymbol(c.Query("symbol"))
	if symbol == "" {
		symbol = h.ticks.Symbols().First()
	}
	tick, err := h.ticks.GetLatest(symbol)
	if err == nil {
		h.monitor.RecordQuoteLookup("hit")
		c.JSON(http.StatusOK, newQuoteResponse(tick, "stream", time.Now()))
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	if h.opts.QuoteFallback && market.Classify(symbol) == market.AssetStock {
		h.quoteFallback(c, symbol)
		return
	}
	h.monitor.RecordQuoteLookup("miss")
	fail(c, http.StatusNotFound, "No quote received yet for "+symbol+".")
}

func (h *Handler) quoteFallback(c *gin.Context, symbol string) {
	h.monitor.RecordQuoteLookup("fallback")
	h.logger.LogEvent("quote_fallback", map[string]interface{}{"symbol": symbol})

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.opts.VendorTimeout)
	defer cancel()
	start := time.Now()
	h.monitor.RecordRESTRequest("latest_trade")
	tick, err := h.vendor.LatestTrade(ctx, symbol)
	h.monitor.RecordRESTLatency("latest_trade", time.Since(start).Seconds())
	if err != nil {
		h.monitor.RecordRESTError("latest_trade")
		var up *gateway.UpstreamError
		if errors.As(err, &up) {
			c.Data(up.StatusCode, relayContentType(up.ContentType), up.Body)
			return
		}
		h.logger.Warn("latest trade fallback failed", zap.String("symbol", symbol), zap.Error(err))
		fail(c, http.StatusBadGateway, "vendor error: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, newQuoteResponse(tick, "rest", time.Now()))
}

// StreamStatus GET /stream_status
func (h *Handler) StreamStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.ticks.Status())
}
