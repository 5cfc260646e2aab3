package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

var ErrNoActiveProvider = errors.New("core: no active attestation provider")

// Client is the caller-facing entry point: it activates a provider for an
// app context and dispatches token requests to it.
type Client struct {
	config          Config
	app             AppContext
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	registry        Registry
}

func NewClient(cfg Config, options ...Option) (*Client, error) {
	builder := defaultClientBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("attest", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("attest"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = attestErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewProviderRegistry()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	return &Client{
		config:          finalConfig,
		app:             builder.app,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		registry:        builder.registry,
	}, nil
}

func (c *Client) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.config
}

func (c *Client) Registry() Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Activate initializes the provider with the client's app context, registers
// it, and makes it the active dispatch target. Activating a second,
// non-equal provider fails.
func (c *Client) Activate(provider Provider) error {
	if c == nil {
		return fmt.Errorf("core: client is nil")
	}
	if provider == nil {
		return c.mapError(fmt.Errorf("core: provider is required"))
	}
	if err := c.registry.Register(provider); err != nil {
		return c.mapError(err)
	}
	if err := c.registry.SetActive(provider.ID()); err != nil {
		return c.mapError(err)
	}
	if c.app != nil {
		if err := provider.Initialize(c.app); err != nil {
			return c.mapError(err)
		}
	}
	c.logInfo(context.Background(), "attestation provider activated", map[string]any{
		"provider_id": provider.ID(),
		"app_name":    c.appName(),
	})
	return nil
}

// GetToken dispatches to the active provider. Failures surface to the
// caller exactly once; no retries happen here.
func (c *Client) GetToken(ctx context.Context) (Token, error) {
	if c == nil {
		return Token{}, fmt.Errorf("core: client is nil")
	}
	startedAt := time.Now().UTC()

	provider, ok := c.registry.Active()
	if !ok {
		err := c.mapError(ErrNoActiveProvider)
		c.observeOperation(ctx, startedAt, "get_token", err, map[string]any{
			"app_name": c.appName(),
		})
		return Token{}, err
	}

	token, err := provider.GetToken(ctx)
	fields := map[string]any{
		"provider_id": provider.ID(),
		"app_name":    c.appName(),
	}
	if err != nil {
		mapped := c.mapError(err)
		c.observeOperation(ctx, startedAt, "get_token", mapped, fields)
		return Token{}, mapped
	}
	c.observeOperation(ctx, startedAt, "get_token", nil, fields)
	return token, nil
}

func (c *Client) appName() string {
	if c == nil || c.app == nil {
		return ""
	}
	return strings.TrimSpace(c.app.Name())
}

func (c *Client) mapError(err error) error {
	if err == nil {
		return nil
	}
	if c == nil || c.errorMapper == nil {
		return err
	}
	if mapped := c.errorMapper(err); mapped != nil {
		return mapped
	}
	return err
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		mapper = attestErrorMapper
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "attest client build failed")
}
