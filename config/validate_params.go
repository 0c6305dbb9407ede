package config

// ValidateParams 额外验证时间参数的取值范围。
func ValidateParams(cfg AppConfig) error {
	s := cfg.Stream
	if s.ReconnectDelay <= 0 {
		return ErrInvalid("stream.reconnect_delay must be > 0")
	}
	if s.MaxReconnectDelay < 0 {
		return ErrInvalid("stream.max_reconnect_delay must be >= 0")
	}
	if s.HandshakeTimeout <= 0 {
		return ErrInvalid("stream.handshake_timeout must be > 0")
	}
	if s.PingInterval <= 0 || s.ReadTimeout <= 0 {
		return ErrInvalid("stream.ping_interval/read_timeout must be > 0")
	}
	if s.ReadTimeout <= s.PingInterval {
		return ErrInvalid("stream.read_timeout must be greater than stream.ping_interval")
	}
	if cfg.HTTP.VendorTimeout <= 0 {
		return ErrInvalid("http.vendor_timeout must be > 0")
	}
	if cfg.Alert.StreamDownAfter < 0 || cfg.Alert.Throttle < 0 {
		return ErrInvalid("alert.stream_down_after/throttle must be >= 0")
	}
	return nil
}

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }
