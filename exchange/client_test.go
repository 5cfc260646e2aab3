package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type testApp struct{ name string }

func (a testApp) Name() string { return a.name }

func TestClient_SendsExpectedJSONBodyAndHeaders(t *testing.T) {
	var receivedContentType string
	var receivedBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedContentType = strings.TrimSpace(r.Header.Get("Content-Type"))
		if err := json.NewDecoder(r.Body).Decode(&receivedBody); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":       "signed_token_1",
			"ttl_seconds": 3600,
		})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		Endpoint: server.URL,
		Now: func() time.Time {
			return time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)
		},
	})
	token, err := client.ExchangeAttestation(context.Background(), testApp{name: "demo-app"}, "artifact_1")
	if err != nil {
		t.Fatalf("exchange attestation: %v", err)
	}

	if receivedContentType != "application/json" {
		t.Fatalf("unexpected content type: %q", receivedContentType)
	}
	if receivedBody["artifact"] != "artifact_1" {
		t.Fatalf("unexpected artifact: %v", receivedBody["artifact"])
	}
	if receivedBody["app"] != "demo-app" {
		t.Fatalf("unexpected app: %v", receivedBody["app"])
	}
	if strings.TrimSpace(readAnyString(receivedBody["request_id"])) == "" {
		t.Fatalf("expected request_id to be set")
	}
	if token.Value != "signed_token_1" {
		t.Fatalf("unexpected token value: %q", token.Value)
	}
	if token.ExpiresAt == nil {
		t.Fatalf("expected expiry from ttl_seconds")
	}
	wantExpiry := time.Date(2026, 2, 20, 13, 0, 0, 0, time.UTC)
	if !token.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expected expiry %s, got %s", wantExpiry, token.ExpiresAt)
	}
}

func TestClient_HonorsEmbeddedIssuedAtSeconds(t *testing.T) {
	issuedAt := int64(1_700_000_000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":     "signed_token_1",
			"issued_at": issuedAt,
		})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Endpoint: server.URL})
	token, err := client.ExchangeAttestation(context.Background(), testApp{name: "demo-app"}, "artifact_1")
	if err != nil {
		t.Fatalf("exchange attestation: %v", err)
	}
	if token.IssuedAt.Unix() != issuedAt {
		t.Fatalf("expected issued-at %d, got %d", issuedAt, token.IssuedAt.Unix())
	}
}

func TestClient_FutureIssuedAtFallsBackToReceiptTime(t *testing.T) {
	receivedAt := time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":     "signed_token_1",
			"issued_at": receivedAt.Add(time.Hour).Unix(),
		})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		Endpoint: server.URL,
		Now:      func() time.Time { return receivedAt },
	})
	token, err := client.ExchangeAttestation(context.Background(), testApp{name: "demo-app"}, "artifact_1")
	if err != nil {
		t.Fatalf("exchange attestation: %v", err)
	}
	if !token.IssuedAt.Equal(receivedAt) {
		t.Fatalf("expected issued-at %s, got %s", receivedAt, token.IssuedAt)
	}
}

func TestClient_FailureStatusYieldsStatusCarryingError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":             "attestation_rejected",
			"error_description": "attestation was rejected",
		})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Endpoint: server.URL})
	_, err := client.ExchangeAttestation(context.Background(), testApp{name: "demo-app"}, "artifact_1")
	if err == nil {
		t.Fatalf("expected error")
	}

	status, ok := StatusOf(err)
	if !ok {
		t.Fatalf("expected status-carrying error, got %v", err)
	}
	if status != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", status)
	}

	var exchangeErr *ExchangeError
	if !errors.As(err, &exchangeErr) {
		t.Fatalf("expected ExchangeError, got %T", err)
	}
	if exchangeErr.ErrorCode != "attestation_rejected" {
		t.Fatalf("unexpected error code %q", exchangeErr.ErrorCode)
	}
}

func TestClient_TransportFailureCarriesNoStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client := NewClient(ClientConfig{Endpoint: server.URL})
	_, err := client.ExchangeAttestation(context.Background(), testApp{name: "demo-app"}, "artifact_1")
	if err == nil {
		t.Fatalf("expected transport error")
	}
	if _, ok := StatusOf(err); ok {
		t.Fatalf("transport failure must not carry an http status: %v", err)
	}
}

func TestClient_MissingTokenInSuccessBodyFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ttl_seconds": 60})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Endpoint: server.URL})
	_, err := client.ExchangeAttestation(context.Background(), testApp{name: "demo-app"}, "artifact_1")
	if err == nil {
		t.Fatalf("expected error for missing token")
	}
	var exchangeErr *ExchangeError
	if !errors.As(err, &exchangeErr) {
		t.Fatalf("expected ExchangeError, got %T", err)
	}
}

func TestClient_EmptyArtifactRejectedBeforeNetworkCall(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls++
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Endpoint: server.URL})
	_, err := client.ExchangeAttestation(context.Background(), testApp{name: "demo-app"}, "  ")
	if err == nil {
		t.Fatalf("expected error for empty artifact")
	}
	if calls != 0 {
		t.Fatalf("expected no network call, got %d", calls)
	}
}
