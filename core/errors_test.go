package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestAttestErrorMapper_NilPassthrough(t *testing.T) {
	if mapped := attestErrorMapper(nil); mapped != nil {
		t.Fatalf("expected nil for nil input, got %v", mapped)
	}
}

func TestAttestErrorMapper_PreservesRichErrors(t *testing.T) {
	source := goerrors.New("exchange quota exhausted", goerrors.CategoryRateLimit).
		WithTextCode(AttestErrorThrottled).
		WithMetadata(map[string]any{"allow_requests_after_ms": int64(1000)})

	mapped := attestErrorMapper(fmt.Errorf("wrapped: %w", source))
	if mapped == nil {
		t.Fatalf("expected mapped error")
	}
	if mapped.TextCode != AttestErrorThrottled {
		t.Fatalf("unexpected text code %q", mapped.TextCode)
	}
	if mapped.Code != http.StatusTooManyRequests {
		t.Fatalf("expected envelope code 429, got %d", mapped.Code)
	}
	if mapped.Metadata["allow_requests_after_ms"] != int64(1000) {
		t.Fatalf("expected metadata preserved, got %v", mapped.Metadata)
	}
}

func TestAttestErrorMapper_ClassifiesByMessage(t *testing.T) {
	cases := []struct {
		name         string
		err          error
		wantTextCode string
		wantCode     int
	}{
		{
			name:         "provider not registered",
			err:          errors.New("core: provider not registered: recaptcha-v3"),
			wantTextCode: AttestErrorProviderNotFound,
			wantCode:     http.StatusNotFound,
		},
		{
			name:         "use before initialization",
			err:          errors.New("attestation provider used before initialization"),
			wantTextCode: AttestErrorUseBeforeActivation,
			wantCode:     http.StatusInternalServerError,
		},
		{
			name:         "no active provider",
			err:          ErrNoActiveProvider,
			wantTextCode: AttestErrorUseBeforeActivation,
			wantCode:     http.StatusInternalServerError,
		},
		{
			name:         "throttled",
			err:          errors.New("provider throttled until tomorrow"),
			wantTextCode: AttestErrorThrottled,
			wantCode:     http.StatusTooManyRequests,
		},
		{
			name:         "attestation failed",
			err:          errors.New("attestation production failed"),
			wantTextCode: AttestErrorAttestationFailed,
			wantCode:     http.StatusBadGateway,
		},
		{
			name:         "exchange failed",
			err:          errors.New("exchange request failed"),
			wantTextCode: AttestErrorExchangeFailed,
			wantCode:     http.StatusBadGateway,
		},
		{
			name:         "bad input",
			err:          errors.New("core: provider id is required"),
			wantTextCode: AttestErrorBadInput,
			wantCode:     http.StatusBadRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := attestErrorMapper(tc.err)
			if mapped == nil {
				t.Fatalf("expected mapped error")
			}
			if mapped.TextCode != tc.wantTextCode {
				t.Fatalf("expected text code %q, got %q", tc.wantTextCode, mapped.TextCode)
			}
			if mapped.Code != tc.wantCode {
				t.Fatalf("expected code %d, got %d", tc.wantCode, mapped.Code)
			}
		})
	}
}

func TestNewUseBeforeActivationError_NamesNoApp(t *testing.T) {
	err := NewUseBeforeActivationError()
	if err.TextCode != AttestErrorUseBeforeActivation {
		t.Fatalf("unexpected text code %q", err.TextCode)
	}
	if err.Category != goerrors.CategoryOperation {
		t.Fatalf("unexpected category %v", err.Category)
	}
}

func TestNewAttestationError_CarriesNoDetail(t *testing.T) {
	err := NewAttestationError()
	if err.TextCode != AttestErrorAttestationFailed {
		t.Fatalf("unexpected text code %q", err.TextCode)
	}
	if err.Message != "attestation production failed" {
		t.Fatalf("unexpected message %q", err.Message)
	}
}
