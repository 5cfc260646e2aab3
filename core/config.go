package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultThrottleBaseDelay       = time.Second
	DefaultThrottleFactor          = 2.0
	DefaultThrottleMaxDelay        = 4 * time.Minute
	DefaultThrottleHardBlockWindow = 24 * time.Hour
	DefaultExchangeRequestTimeout  = 30 * time.Second
)

type ExchangeConfig struct {
	Endpoint       string        `koanf:"endpoint" mapstructure:"endpoint"`
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
}

type ThrottleConfig struct {
	BaseDelay       time.Duration `koanf:"base_delay" mapstructure:"base_delay"`
	Factor          float64       `koanf:"factor" mapstructure:"factor"`
	MaxDelay        time.Duration `koanf:"max_delay" mapstructure:"max_delay"`
	HardBlockWindow time.Duration `koanf:"hard_block_window" mapstructure:"hard_block_window"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Exchange    ExchangeConfig `koanf:"exchange" mapstructure:"exchange"`
	Throttle    ThrottleConfig `koanf:"throttle" mapstructure:"throttle"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "attest",
		Exchange: ExchangeConfig{
			RequestTimeout: DefaultExchangeRequestTimeout,
		},
		Throttle: ThrottleConfig{
			BaseDelay:       DefaultThrottleBaseDelay,
			Factor:          DefaultThrottleFactor,
			MaxDelay:        DefaultThrottleMaxDelay,
			HardBlockWindow: DefaultThrottleHardBlockWindow,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Throttle.BaseDelay < 0 {
		return fmt.Errorf("core: throttle.base_delay must not be negative")
	}
	if c.Throttle.Factor != 0 && c.Throttle.Factor < 1 {
		return fmt.Errorf("core: throttle.factor must be at least 1")
	}
	if c.Throttle.MaxDelay < 0 {
		return fmt.Errorf("core: throttle.max_delay must not be negative")
	}
	if c.Throttle.HardBlockWindow < 0 {
		return fmt.Errorf("core: throttle.hard_block_window must not be negative")
	}
	if c.Exchange.RequestTimeout < 0 {
		return fmt.Errorf("core: exchange.request_timeout must not be negative")
	}
	return nil
}
