package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"market-bridge-go/config"
	"market-bridge-go/gateway"
)

// bars_probe 通过与服务相同的 REST 客户端拉一次 bars，原样打印响应体，用于排查凭证和路由。
func main() {
	cfgPath := flag.String("config", "", "YAML 配置文件路径（可选）")
	symbol := flag.String("symbol", "SPY", "股票代码或期货根（ES、MES、NQ...）")
	timeframe := flag.String("timeframe", "5Min", "K线周期，例如 1Min、5Min、1Day")
	limit := flag.Int("limit", 20, "返回条数（1-1000）")
	start := flag.String("start", "", "起始时间（RFC3339，可选）")
	end := flag.String("end", "", "结束时间（RFC3339，可选）")
	showURL := flag.Bool("url", false, "只打印请求地址，不发送请求")
	flag.Parse()

	if *limit < 1 || *limit > 1000 {
		log.Fatalf("limit 必须在 1-1000 之间: %d", *limit)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	client := &gateway.AlpacaRESTClient{
		DataRoot:   cfg.Alpaca.BaseURL,
		APIKey:     cfg.Alpaca.APIKey,
		APISecret:  cfg.Alpaca.APISecret,
		Feed:       cfg.Feed(),
		HTTPClient: gateway.NewDefaultHTTPClient(),
	}
	req := gateway.BarsRequest{
		Symbol:    *symbol,
		Timeframe: *timeframe,
		Limit:     *limit,
		Start:     *start,
		End:       *end,
	}

	u, class := client.BarsURL(req)
	fmt.Fprintf(os.Stderr, "GET %s (%s)\n", u, class)
	if *showURL {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	resp, err := client.Bars(ctx, req)
	if err != nil {
		log.Fatalf("请求失败: %v", err)
	}
	fmt.Fprintf(os.Stderr, "status=%d content-type=%s bytes=%d\n", resp.StatusCode, resp.ContentType, len(resp.Body))
	_, _ = os.Stdout.Write(resp.Body)
	fmt.Println()
	if resp.StatusCode >= 300 {
		os.Exit(2)
	}
}
