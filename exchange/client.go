// Package exchange trades attestation artifacts for signed tokens over
// HTTP. Failures are classified at this boundary: status-carrying failures
// yield an ExchangeError with StatusCode set, everything else propagates
// without one.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-attest/core"
	"github.com/google/uuid"
)

const (
	defaultRequestTimeout        = 30 * time.Second
	maxExchangeResponseBodyBytes = 1 << 20
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type ClientConfig struct {
	Endpoint         string
	RequestTimeout   time.Duration
	HTTPClient       HTTPDoer
	Now              func() time.Time
	BuildExchangeURL func(app core.AppContext) (string, error)
}

type Client struct {
	config     ClientConfig
	httpClient HTTPDoer
}

func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	builder := cfg.BuildExchangeURL
	if builder == nil {
		endpoint := strings.TrimSpace(cfg.Endpoint)
		builder = func(core.AppContext) (string, error) {
			if endpoint == "" {
				return "", fmt.Errorf("exchange: endpoint is required")
			}
			return endpoint, nil
		}
	}
	return &Client{
		config: ClientConfig{
			Endpoint:         strings.TrimSpace(cfg.Endpoint),
			RequestTimeout:   timeout,
			Now:              now,
			BuildExchangeURL: builder,
		},
		httpClient: httpClient,
	}
}

func (c *Client) ExchangeAttestation(
	ctx context.Context,
	app core.AppContext,
	artifact string,
) (core.Token, error) {
	if c == nil || c.httpClient == nil {
		return core.Token{}, &ExchangeError{
			Message: "http client is not configured",
			Cause:   ErrExchangeFailed,
		}
	}
	artifact = strings.TrimSpace(artifact)
	if artifact == "" {
		return core.Token{}, &ExchangeError{
			Message: "attestation artifact is required",
			Cause:   ErrExchangeFailed,
		}
	}
	exchangeURL, err := c.config.BuildExchangeURL(app)
	if err != nil {
		return core.Token{}, &ExchangeError{
			Message: "resolve exchange url",
			Cause:   err,
		}
	}

	appName := ""
	if app != nil {
		appName = strings.TrimSpace(app.Name())
	}
	payload := map[string]any{
		"artifact":   artifact,
		"app":        appName,
		"request_id": uuid.NewString(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return core.Token{}, &ExchangeError{
			Message: "encode exchange request",
			Cause:   err,
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	requestCtx := ctx
	cancel := func() {}
	if c.config.RequestTimeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		requestCtx,
		http.MethodPost,
		exchangeURL,
		bytes.NewReader(body),
	)
	if err != nil {
		return core.Token{}, &ExchangeError{
			Message: "build exchange request",
			Cause:   err,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(httpReq)
	if err != nil {
		return core.Token{}, &ExchangeError{
			Message: "exchange request failed",
			Cause:   err,
		}
	}
	defer response.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(response.Body, maxExchangeResponseBodyBytes+1))
	if readErr != nil {
		return core.Token{}, &ExchangeError{
			Message: "read exchange response",
			Cause:   readErr,
		}
	}
	if int64(len(raw)) > maxExchangeResponseBodyBytes {
		return core.Token{}, &ExchangeError{
			Message: fmt.Sprintf("exchange response exceeds %d bytes", maxExchangeResponseBodyBytes),
			Cause:   ErrExchangeFailed,
		}
	}

	decoded := map[string]any{}
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return core.Token{}, &ExchangeError{
				StatusCode: response.StatusCode,
				Message:    "decode exchange response",
				Cause:      err,
			}
		}
	}

	errorCode := strings.TrimSpace(readAnyString(decoded["error"]))
	errorDescription := strings.TrimSpace(readAnyString(decoded["error_description"]))
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices || errorCode != "" {
		if errorDescription == "" {
			errorDescription = "attestation exchange rejected"
		}
		return core.Token{}, &ExchangeError{
			StatusCode: response.StatusCode,
			ErrorCode:  errorCode,
			Message:    errorDescription,
			Cause:      ErrExchangeFailed,
		}
	}

	tokenValue := strings.TrimSpace(readAnyString(decoded["token"]))
	if tokenValue == "" {
		return core.Token{}, &ExchangeError{
			StatusCode: response.StatusCode,
			Message:    "exchange response missing token",
			Cause:      ErrExchangeFailed,
		}
	}

	now := c.config.Now().UTC()
	token := core.Token{
		Value:      tokenValue,
		IssuedAt:   now,
		ReceivedAt: now,
	}
	if issuedAtSeconds := readAnyInt64(decoded["issued_at"]); issuedAtSeconds > 0 {
		// A claimed issuance time in the future is not trusted; the receipt
		// time stands in for it.
		if issuedAt := time.Unix(issuedAtSeconds, 0).UTC(); issuedAt.Before(now) {
			token.IssuedAt = issuedAt
		}
	}
	if ttlSeconds := readAnyInt64(decoded["ttl_seconds"]); ttlSeconds > 0 {
		expiresAt := token.IssuedAt.Add(time.Duration(ttlSeconds) * time.Second)
		token.ExpiresAt = &expiresAt
	}
	return token, nil
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case fmt.Stringer:
		return typed.String()
	default:
		return ""
	}
}

func readAnyInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err == nil {
			return parsed
		}
		floatParsed, floatErr := typed.Float64()
		if floatErr == nil {
			return int64(floatParsed)
		}
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err == nil {
			return parsed
		}
	}
	return 0
}

var _ core.TokenExchanger = (*Client)(nil)
