package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	AttestErrorBadInput            = "ATTEST_BAD_INPUT"
	AttestErrorProviderNotFound    = "ATTEST_PROVIDER_NOT_FOUND"
	AttestErrorUseBeforeActivation = "ATTEST_USE_BEFORE_ACTIVATION"
	AttestErrorAttestationFailed   = "ATTEST_ATTESTATION_FAILED"
	AttestErrorThrottled           = "ATTEST_THROTTLED"
	AttestErrorExchangeFailed      = "ATTEST_EXCHANGE_FAILED"
	AttestErrorInternal            = "ATTEST_INTERNAL_ERROR"
)

// NewUseBeforeActivationError reports GetToken being called before
// Initialize. App identity is unknown at that call site, so the message
// intentionally names no app.
func NewUseBeforeActivationError() *goerrors.Error {
	return newAttestError(
		"attestation provider used before initialization",
		goerrors.CategoryOperation,
		AttestErrorUseBeforeActivation,
	)
}

// NewAttestationError reports a failed attestation production. The underlying
// failure reason is intentionally discarded; the collaborator's native
// failure signal carries no useful detail.
func NewAttestationError() *goerrors.Error {
	return newAttestError(
		"attestation production failed",
		goerrors.CategoryExternal,
		AttestErrorAttestationFailed,
	)
}

func attestErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureAttestErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "provider") && strings.Contains(msg, "not registered"):
		return newAttestError(err.Error(), goerrors.CategoryNotFound, AttestErrorProviderNotFound)
	case strings.Contains(msg, "before initialization"),
		strings.Contains(msg, "not initialized"),
		strings.Contains(msg, "no active"):
		return newAttestError(err.Error(), goerrors.CategoryOperation, AttestErrorUseBeforeActivation)
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newAttestError(err.Error(), goerrors.CategoryRateLimit, AttestErrorThrottled)
	case strings.Contains(msg, "attestation") && strings.Contains(msg, "failed"):
		return newAttestError(err.Error(), goerrors.CategoryExternal, AttestErrorAttestationFailed)
	case strings.Contains(msg, "exchange"):
		return newAttestError(err.Error(), goerrors.CategoryExternal, AttestErrorExchangeFailed)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newAttestError(err.Error(), goerrors.CategoryBadInput, AttestErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureAttestErrorEnvelope(mapped)
}

func newAttestError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureAttestErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureAttestErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = attestHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultAttestTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultAttestTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return AttestErrorBadInput
	case goerrors.CategoryNotFound:
		return AttestErrorProviderNotFound
	case goerrors.CategoryRateLimit:
		return AttestErrorThrottled
	case goerrors.CategoryExternal:
		return AttestErrorExchangeFailed
	case goerrors.CategoryOperation:
		return AttestErrorUseBeforeActivation
	default:
		return AttestErrorInternal
	}
}

func attestHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
