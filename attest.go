package attest

import "github.com/goliatone/go-attest/core"

type Config = core.Config

type ExchangeConfig = core.ExchangeConfig
type ThrottleConfig = core.ThrottleConfig

type Option = core.Option

type Client = core.Client

type Token = core.Token
type AppContext = core.AppContext
type Provider = core.Provider
type Registry = core.Registry
type AttestationProducer = core.AttestationProducer
type TokenExchanger = core.TokenExchanger
type TokenCallback = core.TokenCallback
type MetricsRecorder = core.MetricsRecorder
type ErrorMapper = core.ErrorMapper
type ConfigProvider = core.ConfigProvider
type OptionsResolver = core.OptionsResolver

var (
	WithAppContext      = core.WithAppContext
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithMetricsRecorder = core.WithMetricsRecorder
	WithErrorMapper     = core.WithErrorMapper
	WithConfigProvider  = core.WithConfigProvider
	WithOptionsResolver = core.WithOptionsResolver
	WithRegistry        = core.WithRegistry
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	return core.NewClient(cfg, opts...)
}
