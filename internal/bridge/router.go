package bridge

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"market-bridge-go/infrastructure/logger"
	"market-bridge-go/infrastructure/monitor"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// NewRouter 组装 gin 引擎与全部路由。
func NewRouter(h *Handler, lg *logger.Logger, mon *monitor.Monitor) *gin.Engine {
	if lg == nil {
		lg = logger.NewNop()
	}
	r := gin.New()
	r.Use(
		RequestID(),
		AccessLog(lg),
		Metrics(mon),
		cors.New(corsConfig()),
		Recover(lg),
	)

	r.GET("/", h.Health)
	r.GET("/health", h.Health)
	r.GET("/bars", h.Bars)
	for _, p := range []string{"/quote", "/last_quote", "/latest_trade"} {
		r.GET(p, h.Quote)
	}
	r.GET("/stream_status", h.StreamStatus)

	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "Not Found")
	})
	return r
}

// corsConfig 允许任意来源调用（行情只读接口）。
func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AllowMethods = []string{http.MethodGet, http.MethodHead, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", HeaderRequestID}
	cfg.ExposeHeaders = []string{HeaderRequestID}
	cfg.MaxAge = 12 * time.Hour
	return cfg
}

// NewServer 包装成 http.Server，超时参数与网关一致。
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}
