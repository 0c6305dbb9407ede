package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"market-bridge-go/market"
)

const (
	// AlpacaDataRoot 行情 REST 根地址（不带版本号）。
	AlpacaDataRoot = "https://data.alpaca.markets"
	// AlpacaStreamEndpoint 行情 WebSocket 根地址，完整地址为 {endpoint}/v2/{feed}。
	AlpacaStreamEndpoint = "wss://stream.data.alpaca.markets"

	headerAPIKey    = "APCA-API-KEY-ID"
	headerAPISecret = "APCA-API-SECRET-KEY"

	maxBodyBytes = 16 << 20
)

// AlpacaRESTClient 行情 REST 客户端；HTTPClient 可注入 httptest。
// 返回的行情数据一律原样透传，不做任何缩放或转换。
type AlpacaRESTClient struct {
	DataRoot   string
	APIKey     string
	APISecret  string
	Feed       market.Feed
	HTTPClient *http.Client
}

// BarsRequest bars 查询参数；Timeframe 由行情源定义（如 1Min、5Min、1Day）。
type BarsRequest struct {
	Symbol    string
	Timeframe string
	Limit     int
	Start     string
	End       string
}

// RawResponse 上游响应的原始内容。
type RawResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// UpstreamError 上游返回非 2xx。
type UpstreamError struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, string(e.Body))
}

// BarsURL 根据 symbol 选择股票或期货路径并拼出完整 URL。
func (c *AlpacaRESTClient) BarsURL(req BarsRequest) (string, market.AssetClass) {
	sym := market.NormalizeSymbol(req.Symbol)
	class := market.Classify(sym)
	var path string
	if class == market.AssetFutures {
		path = "/v1beta3/markets/futures/us/" + url.PathEscape(sym) + "/bars"
	} else {
		path = "/v2/stocks/" + url.PathEscape(sym) + "/bars"
	}
	q := url.Values{}
	if req.Timeframe != "" {
		q.Set("timeframe", req.Timeframe)
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Start != "" {
		q.Set("start", req.Start)
	}
	if req.End != "" {
		q.Set("end", req.End)
	}
	if class == market.AssetStock && c.Feed != "" {
		q.Set("feed", c.Feed.String())
	}
	u := c.root() + path
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u, class
}

// Bars 调用一次 bars 接口；任何 HTTP 状态都原样返回，仅网络层失败时返回 error。
func (c *AlpacaRESTClient) Bars(ctx context.Context, req BarsRequest) (*RawResponse, error) {
	endpoint, _ := c.BarsURL(req)
	return c.get(ctx, endpoint)
}

type latestTradeResp struct {
	Symbol string `json:"symbol"`
	Trade  struct {
		Price     decimal.Decimal `json:"p"`
		Size      *int64          `json:"s"`
		Timestamp string          `json:"t"`
	} `json:"trade"`
}

// LatestTrade 查询股票最新成交（缓存未命中时的兜底）。
func (c *AlpacaRESTClient) LatestTrade(ctx context.Context, symbol string) (market.Tick, error) {
	sym := market.NormalizeSymbol(symbol)
	q := url.Values{}
	if c.Feed != "" {
		q.Set("feed", c.Feed.String())
	}
	endpoint := c.root() + "/v2/stocks/" + url.PathEscape(sym) + "/trades/latest"
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}
	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return market.Tick{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return market.Tick{}, &UpstreamError{StatusCode: resp.StatusCode, ContentType: resp.ContentType, Body: resp.Body}
	}
	var lt latestTradeResp
	if err := json.Unmarshal(resp.Body, &lt); err != nil {
		return market.Tick{}, fmt.Errorf("decode latest trade: %w", err)
	}
	tu := market.TradeUpdate{Symbol: sym, Price: lt.Trade.Price, Timestamp: lt.Trade.Timestamp}
	if lt.Trade.Size != nil {
		tu.Size = *lt.Trade.Size
		tu.HasSize = true
	}
	return market.Tick{}.ApplyTrade(tu, time.Now().UTC()), nil
}

func (c *AlpacaRESTClient) get(ctx context.Context, endpoint string) (*RawResponse, error) {
	if c == nil || c.HTTPClient == nil {
		return nil, fmt.Errorf("http client not set")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(headerAPIKey, c.APIKey)
	req.Header.Set(headerAPISecret, c.APISecret)
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &RawResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (c *AlpacaRESTClient) root() string {
	if c.DataRoot == "" {
		return AlpacaDataRoot
	}
	return c.DataRoot
}

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
