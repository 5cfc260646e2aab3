package refresher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-attest/core"
	"github.com/goliatone/go-attest/throttle"
)

type scriptedSource struct {
	mu      sync.Mutex
	results []sourceResult
	calls   int
}

type sourceResult struct {
	token core.Token
	err   error
}

func (s *scriptedSource) GetToken(context.Context) (core.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.calls
	s.calls++
	if index >= len(s.results) {
		index = len(s.results) - 1
	}
	result := s.results[index]
	return result.token, result.err
}

func (s *scriptedSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func expiringToken(value string, expiresIn time.Duration) core.Token {
	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	return core.Token{
		Value:      value,
		IssuedAt:   now,
		ExpiresAt:  &expiresAt,
		ReceivedAt: now,
	}
}

func TestRefresher_FetchesAndExposesCurrentToken(t *testing.T) {
	source := &scriptedSource{results: []sourceResult{
		{token: expiringToken("signed_token_1", time.Hour)},
	}}
	tokens := make(chan core.Token, 1)
	r, err := New(Config{
		Source:  source,
		OnToken: func(token core.Token) { tokens <- token },
	})
	if err != nil {
		t.Fatalf("new refresher: %v", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer r.Stop()

	select {
	case token := <-tokens:
		if token.Value != "signed_token_1" {
			t.Fatalf("unexpected token %q", token.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for token")
	}

	current, ok := r.Current()
	if !ok || current.Value != "signed_token_1" {
		t.Fatalf("expected current token, got %q (ok=%v)", current.Value, ok)
	}
}

func TestRefresher_RetriesAfterFailure(t *testing.T) {
	source := &scriptedSource{results: []sourceResult{
		{err: errors.New("transient failure")},
		{token: expiringToken("signed_token_2", time.Hour)},
	}}
	tokens := make(chan core.Token, 1)
	failures := make(chan error, 1)
	r, err := New(Config{
		Source:    source,
		BaseDelay: 10 * time.Millisecond,
		MaxDelay:  20 * time.Millisecond,
		OnToken:   func(token core.Token) { tokens <- token },
		OnError: func(err error) {
			select {
			case failures <- err:
			default:
			}
		},
	})
	if err != nil {
		t.Fatalf("new refresher: %v", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer r.Stop()

	select {
	case <-failures:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for failure callback")
	}
	select {
	case token := <-tokens:
		if token.Value != "signed_token_2" {
			t.Fatalf("unexpected token %q", token.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for recovery")
	}
	if source.callCount() < 2 {
		t.Fatalf("expected at least two fetch attempts, got %d", source.callCount())
	}
}

func TestRefresher_HonorsThrottleWindowAsWaitFloor(t *testing.T) {
	allowAfter := time.Now().UTC().Add(time.Hour)
	source := &scriptedSource{results: []sourceResult{
		{err: throttle.ThrottledError{
			ProviderID: "recaptcha-v3",
			AppID:      "demo-app",
			AllowAfter: allowAfter,
		}},
	}}
	r, err := New(Config{
		Source:    source,
		BaseDelay: 10 * time.Millisecond,
		MaxDelay:  20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new refresher: %v", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer r.Stop()

	// The throttle window lasts an hour: the loop must park after the first
	// attempt instead of polling on its short backoff schedule.
	time.Sleep(300 * time.Millisecond)
	if got := source.callCount(); got != 1 {
		t.Fatalf("expected a single attempt inside the throttle window, got %d", got)
	}
}

func TestRefresher_StopCancelsLoop(t *testing.T) {
	source := &scriptedSource{results: []sourceResult{
		{token: expiringToken("signed_token_3", time.Hour)},
	}}
	r, err := New(Config{Source: source})
	if err != nil {
		t.Fatalf("new refresher: %v", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	r.Stop()

	// Restart after a clean stop is allowed.
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	r.Stop()
}

func TestThrottleWait_ExtractsWindowFromStructuredError(t *testing.T) {
	now := time.Now().UTC()
	throttled := throttle.ThrottledError{
		ProviderID: "recaptcha-v3",
		AppID:      "demo-app",
		AllowAfter: now.Add(30 * time.Second),
	}

	wait, ok := throttleWait(throttled, now)
	if !ok {
		t.Fatalf("expected throttle wait from ThrottledError")
	}
	if wait != 30*time.Second {
		t.Fatalf("expected 30s wait, got %s", wait)
	}

	wait, ok = throttleWait(throttled.ToAttestError(), now)
	if !ok {
		t.Fatalf("expected throttle wait from mapped error")
	}
	if wait <= 0 || wait > 30*time.Second {
		t.Fatalf("unexpected wait %s", wait)
	}

	if _, ok := throttleWait(errors.New("plain failure"), now); ok {
		t.Fatalf("plain errors carry no throttle window")
	}
}
