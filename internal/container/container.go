package container

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"market-bridge-go/config"
	"market-bridge-go/gateway"
	"market-bridge-go/infrastructure/alert"
	"market-bridge-go/infrastructure/logger"
	"market-bridge-go/infrastructure/monitor"
	"market-bridge-go/internal/bridge"
	"market-bridge-go/internal/exchange"
)

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	// 配置
	cfgMu      sync.Mutex
	cfg        config.AppConfig
	configPath string

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager

	// 行情源
	restClient *gateway.AlpacaRESTClient
	stream     *exchange.AlpacaStream
	watchdog   *exchange.Watchdog

	// HTTP
	router        http.Handler
	apiServer     *httpServerComponent
	metricsServer *httpServerComponent

	// 生命周期管理
	lifecycle *LifecycleManager

	// notify 向 systemd 汇报状态，测试中可替换
	notify func(state string) (bool, error)
}

// New 加载配置并创建 Container；凭证缺失等配置错误在这里返回，此时尚未打开任何端口。
func New(configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithConfig(cfg, configPath), nil
}

// NewWithConfig 使用已解析的配置创建 Container（configPath 为空时不监听配置文件）。
func NewWithConfig(cfg config.AppConfig, configPath string) *Container {
	return &Container{
		cfg:        cfg,
		configPath: configPath,
		lifecycle:  NewLifecycleManager(),
		notify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
	}
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}
	c.buildGateway()
	c.buildStream()
	c.buildHTTP()

	if err := c.registerLifecycleComponents(); err != nil {
		return err
	}
	c.logger.Info("container built successfully",
		zap.Strings("symbols", c.cfg.Alpaca.Symbols),
		zap.String("feed", c.cfg.Alpaca.Feed),
		zap.String("data_root", c.cfg.Alpaca.BaseURL),
	)
	return nil
}

func (c *Container) buildInfrastructure() error {
	logCfg := logger.Config{
		Level:   c.cfg.Log.Level,
		Outputs: []string{"stdout"},
		Format:  c.cfg.Log.Format,
	}
	if c.cfg.Log.File != "" {
		logCfg.Outputs = append(logCfg.Outputs, "file")
		logCfg.OutputFile = c.cfg.Log.File
	}

	var err error
	c.logger, err = logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}

	c.monitor = monitor.New(monitor.DefaultConfig())
	c.alerts = alert.NewManager(c.cfg.Alert.Throttle,
		alert.NewLogChannel("log", c.logger.WithFields(map[string]interface{}{"component": "alert"})))
	return nil
}

func (c *Container) buildGateway() {
	httpClient := gateway.NewDefaultHTTPClient()
	httpClient.Timeout = c.cfg.HTTP.VendorTimeout
	c.restClient = &gateway.AlpacaRESTClient{
		DataRoot:   c.cfg.Alpaca.BaseURL,
		APIKey:     c.cfg.Alpaca.APIKey,
		APISecret:  c.cfg.Alpaca.APISecret,
		Feed:       c.cfg.Feed(),
		HTTPClient: httpClient,
	}
}

func (c *Container) buildStream() {
	s := c.cfg.Stream
	c.stream = exchange.NewAlpacaStream(exchange.StreamConfig{
		URL:               s.URL,
		APIKey:            c.cfg.Alpaca.APIKey,
		APISecret:         c.cfg.Alpaca.APISecret,
		Feed:              c.cfg.Feed(),
		Symbols:           c.cfg.SymbolSet(),
		ReconnectDelay:    s.ReconnectDelay,
		MaxReconnectDelay: s.MaxReconnectDelay,
		HandshakeTimeout:  s.HandshakeTimeout,
		PingInterval:      s.PingInterval,
		ReadTimeout:       s.ReadTimeout,
		StopOnAuthReject:  s.StopOnAuthReject,
	}, c.logger.WithFields(map[string]interface{}{"component": "stream"}), c.monitor)

	c.watchdog = exchange.NewWatchdog(c.alerts, c.cfg.Alert.StreamDownAfter)
	c.stream.SetStateListener(c.watchdog.Observe)
}

func (c *Container) buildHTTP() {
	h := bridge.NewHandler(c.stream, c.restClient, bridge.Options{
		CredentialsConfigured: c.cfg.Alpaca.APIKey != "" && c.cfg.Alpaca.APISecret != "",
		QuoteFallback:         c.cfg.HTTP.QuoteFallback,
		VendorTimeout:         c.cfg.HTTP.VendorTimeout,
	}, c.logger, c.monitor)
	c.router = bridge.NewRouter(h, c.logger, c.monitor)
}

func (c *Container) registerLifecycleComponents() error {
	c.lifecycle.Register(c.watchdog)
	c.lifecycle.Register(&streamComponent{stream: c.stream})

	if c.cfg.HTTP.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", c.monitor.Handler())
		c.metricsServer = &httpServerComponent{
			name:   "metrics_server",
			server: &http.Server{Addr: c.cfg.HTTP.MetricsAddr, Handler: mux},
			logger: c.logger,
		}
		c.lifecycle.Register(c.metricsServer)
	}

	c.apiServer = &httpServerComponent{
		name:   "api_server",
		server: bridge.NewServer(c.cfg.HTTP.Addr, c.router),
		logger: c.logger,
	}
	c.lifecycle.Register(c.apiServer)

	if c.configPath != "" {
		w, err := config.NewWatcher(c.configPath, config.DefaultWatchCooldown)
		if err != nil {
			return fmt.Errorf("create config watcher failed: %w", err)
		}
		w.SetErrorHandler(func(err error) {
			c.logger.LogError(err, map[string]interface{}{"component": "config_watcher"})
		})
		c.lifecycle.Register(&watcherComponent{watcher: w, onUpdate: c.onConfigReload})
	}
	return nil
}

// onConfigReload 只有日志级别支持热更新，其余差异记录为需要重启。
func (c *Container) onConfigReload(next config.AppConfig) {
	c.cfgMu.Lock()
	prev := c.cfg
	c.cfg.Log.Level = next.Log.Level
	c.cfgMu.Unlock()

	fields := map[string]interface{}{"path": c.configPath, "level": next.Log.Level}
	if err := c.logger.SetLevel(next.Log.Level); err != nil {
		fields["error"] = err.Error()
	}
	if changed := config.RestartRequired(prev, next); len(changed) > 0 {
		fields["restart_required"] = changed
	}
	c.logger.LogEvent("config_reload", fields)
}

func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}
	if ok, err := c.notify(daemon.SdNotifyReady); err != nil {
		c.logger.Warn("sd_notify ready failed", zap.Error(err))
	} else if ok {
		c.logger.Info("sd_notify ready sent")
	}

	c.logger.Info("container started", zap.String("api_addr", c.APIAddr()), zap.String("metrics_addr", c.MetricsAddr()))
	return nil
}

func (c *Container) Stop() error {
	c.logger.Info("stopping container...")
	_, _ = c.notify(daemon.SdNotifyStopping)

	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}
	c.logger.Info("container stopped")
	_ = c.logger.Close()
	return err
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// Stream 返回行情流（用于状态查询）。
func (c *Container) Stream() *exchange.AlpacaStream { return c.stream }

// Logger 返回容器日志器。
func (c *Container) Logger() *logger.Logger { return c.logger }

// Config 返回当前配置副本。
func (c *Container) Config() config.AppConfig {
	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()
	return c.cfg
}

// APIAddr 对外 HTTP 实际监听地址。
func (c *Container) APIAddr() string {
	if c.apiServer == nil {
		return ""
	}
	return c.apiServer.Addr()
}

// MetricsAddr metrics 实际监听地址；未启用时为空。
func (c *Container) MetricsAddr() string {
	if c.metricsServer == nil {
		return ""
	}
	return c.metricsServer.Addr()
}
