package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"market-bridge-go/market"
)

const (
	DefaultBaseURL   = "https://data.alpaca.markets"
	DefaultStreamURL = "wss://stream.data.alpaca.markets"
	DefaultHTTPAddr  = ":8000"
	DefaultSymbol    = "SPY"
)

// 凭证与行情源的环境变量候选，按顺序取第一个非空值。
var (
	APIKeyEnvNames    = []string{"ALPACA_API_KEY_ID", "APCA_API_KEY_ID", "ALPACA_API_KEY", "ALPACA_KEY"}
	APISecretEnvNames = []string{"ALPACA_API_SECRET_KEY", "APCA_API_SECRET_KEY", "ALPACA_SECRET_KEY", "ALPACA_SECRET"}
	BaseURLEnvNames   = []string{"ALPACA_BASE_URL", "ALPACA_DATA_URL"}
	FeedEnvNames      = []string{"ALPACA_FEED", "ALPACA_DATA_FEED"}
	SymbolsEnvNames   = []string{"ALPACA_STREAM_SYMBOLS", "STREAM_SYMBOLS"}
)

// AppConfig holds the bridge runtime configuration.
type AppConfig struct {
	Env    string       `yaml:"env" env:"BRIDGE_ENV"`
	Alpaca AlpacaConfig `yaml:"alpaca"`
	Stream StreamConfig `yaml:"stream"`
	HTTP   HTTPConfig   `yaml:"http"`
	Log    LogConfig    `yaml:"log"`
	Alert  AlertConfig  `yaml:"alert"`
}

// AlpacaConfig 凭证、数据根地址、feed 与订阅列表。
// BaseURL 在加载后已归一化为不带版本段的数据根。
type AlpacaConfig struct {
	APIKey    string   `yaml:"api_key"`
	APISecret string   `yaml:"api_secret"`
	BaseURL   string   `yaml:"base_url"`
	Feed      string   `yaml:"feed"`
	Symbols   []string `yaml:"symbols"`
}

type StreamConfig struct {
	URL               string        `yaml:"url" env:"BRIDGE_STREAM_URL"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay" env:"BRIDGE_RECONNECT_DELAY"`
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay" env:"BRIDGE_MAX_RECONNECT_DELAY"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout" env:"BRIDGE_HANDSHAKE_TIMEOUT"`
	PingInterval      time.Duration `yaml:"ping_interval" env:"BRIDGE_PING_INTERVAL"`
	ReadTimeout       time.Duration `yaml:"read_timeout" env:"BRIDGE_READ_TIMEOUT"`
	StopOnAuthReject  bool          `yaml:"stop_on_auth_reject" env:"BRIDGE_STOP_ON_AUTH_REJECT"`
}

type HTTPConfig struct {
	Addr          string        `yaml:"addr" env:"BRIDGE_HTTP_ADDR"`
	MetricsAddr   string        `yaml:"metrics_addr"`
	QuoteFallback bool          `yaml:"quote_fallback" env:"BRIDGE_QUOTE_FALLBACK"`
	VendorTimeout time.Duration `yaml:"vendor_timeout" env:"BRIDGE_VENDOR_TIMEOUT"`
}

// AlertConfig 行情流告警。StreamDownAfter 为 0 时关闭断流告警。
type AlertConfig struct {
	StreamDownAfter time.Duration `yaml:"stream_down_after" env:"BRIDGE_ALERT_STREAM_DOWN_AFTER"`
	Throttle        time.Duration `yaml:"throttle" env:"BRIDGE_ALERT_THROTTLE"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"BRIDGE_LOG_LEVEL"`
	Format string `yaml:"format" env:"BRIDGE_LOG_FORMAT"`
	File   string `yaml:"file" env:"BRIDGE_LOG_FILE"`
}

// Default returns a config with every optional field filled in.
func Default() AppConfig {
	return AppConfig{
		Env: "dev",
		Alpaca: AlpacaConfig{
			BaseURL: DefaultBaseURL,
			Feed:    string(market.FeedIEX),
			Symbols: []string{DefaultSymbol},
		},
		Stream: StreamConfig{
			URL:              DefaultStreamURL,
			ReconnectDelay:   3 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			PingInterval:     15 * time.Second,
			ReadTimeout:      45 * time.Second,
		},
		HTTP: HTTPConfig{
			Addr:          DefaultHTTPAddr,
			MetricsAddr:   ":9100",
			VendorTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Alert: AlertConfig{
			StreamDownAfter: time.Minute,
			Throttle:        5 * time.Minute,
		},
	}
}

// Load 按 默认值 -> YAML -> .env -> 环境变量 的顺序解析配置，然后归一化并校验。
// path 为空时跳过 YAML。
func Load(path string) (AppConfig, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml: %w", err)
		}
	}
	LoadDotEnv()
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	Normalize(&cfg)
	return cfg, Validate(cfg)
}

// LoadDotEnv 读取 .env，已存在的环境变量不会被覆盖；文件不存在时忽略。
func LoadDotEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// ApplyEnv overlays BRIDGE_* settings and the vendor env fallbacks onto cfg.
func ApplyEnv(cfg *AppConfig) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if os.Getenv("BRIDGE_HTTP_ADDR") == "" {
		if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
			cfg.HTTP.Addr = ":" + port
		}
	}
	// 显式设置为空字符串表示关闭 metrics 监听
	if v, ok := os.LookupEnv("BRIDGE_METRICS_ADDR"); ok {
		cfg.HTTP.MetricsAddr = strings.TrimSpace(v)
	}
	if v, _ := ResolveEnv(APIKeyEnvNames...); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v, _ := ResolveEnv(APISecretEnvNames...); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v, _ := ResolveEnv(BaseURLEnvNames...); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v, _ := ResolveEnv(FeedEnvNames...); v != "" {
		cfg.Alpaca.Feed = v
	}
	if v, _ := ResolveEnv(SymbolsEnvNames...); v != "" {
		cfg.Alpaca.Symbols = market.ParseSymbolList(v).List()
	}
	return nil
}

// ResolveEnv returns the first non-empty (trimmed) value among names and the name it came from.
func ResolveEnv(names ...string) (string, string) {
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v, name
		}
	}
	return "", ""
}

var versionSuffix = regexp.MustCompile(`/v\d+(beta\d+)?$`)

// NormalizeBaseURL 去掉空白和末尾斜杠，再剥掉一个末尾版本段（/v2、/v1beta3）。
func NormalizeBaseURL(raw string) string {
	u := strings.TrimRight(strings.TrimSpace(raw), "/")
	u = versionSuffix.ReplaceAllString(u, "")
	return strings.TrimRight(u, "/")
}

// Normalize canonicalizes URLs, feed and symbols in place.
func Normalize(cfg *AppConfig) {
	cfg.Alpaca.APIKey = strings.TrimSpace(cfg.Alpaca.APIKey)
	cfg.Alpaca.APISecret = strings.TrimSpace(cfg.Alpaca.APISecret)
	if strings.TrimSpace(cfg.Alpaca.BaseURL) == "" {
		cfg.Alpaca.BaseURL = DefaultBaseURL
	}
	cfg.Alpaca.BaseURL = NormalizeBaseURL(cfg.Alpaca.BaseURL)
	if strings.TrimSpace(cfg.Stream.URL) == "" {
		cfg.Stream.URL = DefaultStreamURL
	}
	cfg.Stream.URL = strings.TrimRight(strings.TrimSpace(cfg.Stream.URL), "/")
	cfg.Alpaca.Feed = strings.ToLower(strings.TrimSpace(cfg.Alpaca.Feed))
	if cfg.Alpaca.Feed == "" {
		cfg.Alpaca.Feed = string(market.FeedIEX)
	}
	set := market.NewSymbolSet(cfg.Alpaca.Symbols...)
	if set.Len() == 0 {
		set = market.NewSymbolSet(DefaultSymbol)
	}
	cfg.Alpaca.Symbols = set.List()
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

var (
	ErrMissingCredentials = errors.New("alpaca api key/secret is required")
	ErrInvalidFeed        = errors.New("invalid alpaca feed")
)

// Validate ensures required fields are present and enumerations are known.
func Validate(cfg AppConfig) error {
	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		return fmt.Errorf("%w (set %s and %s)", ErrMissingCredentials, APIKeyEnvNames[0], APISecretEnvNames[0])
	}
	if _, err := market.ParseFeed(cfg.Alpaca.Feed); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFeed, err)
	}
	if len(cfg.Alpaca.Symbols) == 0 {
		return ErrInvalid("alpaca.symbols must not be empty")
	}
	if cfg.HTTP.Addr == "" {
		return ErrInvalid("http.addr is required")
	}
	return ValidateParams(cfg)
}

// SymbolSet 返回订阅集合（配置顺序）。
func (c AppConfig) SymbolSet() market.SymbolSet {
	return market.NewSymbolSet(c.Alpaca.Symbols...)
}

// Feed 返回已校验的 feed；Validate 通过后不会出错。
func (c AppConfig) Feed() market.Feed {
	f, err := market.ParseFeed(c.Alpaca.Feed)
	if err != nil {
		return market.FeedIEX
	}
	return f
}
