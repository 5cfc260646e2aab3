package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Token is a signed attestation token issued by the verification service.
// Callers must treat it as immutable once constructed.
type Token struct {
	Value      string
	IssuedAt   time.Time
	ExpiresAt  *time.Time
	ReceivedAt time.Time
}

// IssuedAtMillis reports the issuance time in milliseconds since the epoch.
func (t Token) IssuedAtMillis() int64 {
	if t.IssuedAt.IsZero() {
		return 0
	}
	return t.IssuedAt.UnixMilli()
}

// AppContext is a non-owning handle to the application a provider attests
// for. It supplies stable identity for logging and attribution; providers
// must not extend the app's lifetime through it.
type AppContext interface {
	Name() string
}

// Provider produces an attestation artifact and exchanges it for a Token.
// Initialize is called exactly once with an app context before first use.
type Provider interface {
	ID() string
	Initialize(app AppContext) error
	GetToken(ctx context.Context) (Token, error)
	Equal(other Provider) bool
}

// AttestationProducer is the external collaborator that produces an opaque
// attestation artifact. Its failures carry no structured detail.
type AttestationProducer interface {
	ProduceAttestation(ctx context.Context, app AppContext) (string, error)
}

// TokenExchanger trades an attestation artifact for a signed Token.
type TokenExchanger interface {
	ExchangeAttestation(ctx context.Context, app AppContext, artifact string) (Token, error)
}

// TokenCallback is a caller-supplied token source used by custom providers.
type TokenCallback func(ctx context.Context) (string, error)

type Registry interface {
	Register(provider Provider) error
	Get(providerID string) (Provider, bool)
	List() []Provider
	SetActive(providerID string) error
	Active() (Provider, bool)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
