package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"market-bridge-go/internal/container"
)

func main() {
	cfgPath := flag.String("config", "", "YAML 配置文件路径（可选，留空则只读环境变量）")
	envFile := flag.String("env", "", ".env 文件路径（默认读取当前目录下的 .env）")
	flag.Parse()

	if *envFile != "" {
		// 显式指定的 .env 必须存在；已有的环境变量不会被覆盖
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("加载 env 文件失败: %v", err)
		}
	}

	// 配置错误（例如缺少凭证）在打开任何端口之前退出
	c, err := container.New(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := c.Build(); err != nil {
		log.Fatalf("初始化失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		c.Logger().Error("start failed", zap.Error(err))
		_ = c.Stop()
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	c.Logger().Info("shutdown signal received", zap.String("signal", sig.String()))

	cancel()
	if err := c.Stop(); err != nil {
		os.Exit(1)
	}
}
