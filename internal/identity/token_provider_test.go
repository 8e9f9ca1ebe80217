package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("castlog-test-secret")

func TestSetTokenInstallsVerifiedUser(t *testing.T) {
	clock := func() time.Time { return time.Unix(1770000000, 0).UTC() }
	provider := NewTokenProvider(TokenProviderConfig{SigningSecret: testSecret, Clock: clock})

	token := signToken(t, testSecret, "user-1", "angler@example.com", clock().Add(time.Hour))
	user, err := provider.SetToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != "user-1" || user.Email != "angler@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}

	current, ok := provider.CurrentUser()
	if !ok || current.ID != "user-1" {
		t.Fatalf("expected current user user-1, got %+v ok=%v", current, ok)
	}
}

func TestSetTokenRejectsExpiredToken(t *testing.T) {
	clock := func() time.Time { return time.Unix(1770000000, 0).UTC() }
	provider := NewTokenProvider(TokenProviderConfig{SigningSecret: testSecret, Clock: clock})

	token := signToken(t, testSecret, "user-1", "", clock().Add(-time.Minute))
	if _, err := provider.SetToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
	if _, ok := provider.CurrentUser(); ok {
		t.Fatalf("expected no current user after rejected token")
	}
}

func TestSetTokenRejectsBadSignature(t *testing.T) {
	provider := NewTokenProvider(TokenProviderConfig{SigningSecret: testSecret})

	token := signToken(t, []byte("other-secret"), "user-1", "", time.Now().Add(time.Hour))
	if _, err := provider.SetToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSetTokenRejectsMissingSubject(t *testing.T) {
	provider := NewTokenProvider(TokenProviderConfig{SigningSecret: testSecret})

	token := signToken(t, testSecret, "", "", time.Now().Add(time.Hour))
	if _, err := provider.SetToken(token); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}

func TestUnverifiedParseStillChecksExpiry(t *testing.T) {
	clock := func() time.Time { return time.Unix(1770000000, 0).UTC() }
	provider := NewTokenProvider(TokenProviderConfig{Clock: clock})

	expired := signToken(t, testSecret, "user-1", "", clock().Add(-time.Minute))
	if _, err := provider.SetToken(expired); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}

	valid := signToken(t, testSecret, "user-1", "", clock().Add(time.Hour))
	if _, err := provider.SetToken(valid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	provider := NewTokenProvider(TokenProviderConfig{SigningSecret: testSecret})

	var events []Event
	cancel := provider.Subscribe(func(event Event, user User) {
		events = append(events, event)
	})

	token := signToken(t, testSecret, "user-1", "", time.Now().Add(time.Hour))
	if _, err := provider.SetToken(token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	provider.ClearToken()
	provider.ClearToken() // already signed out, no extra event

	cancel()
	if _, err := provider.SetToken(token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(events) != 2 || events[0] != EventSignedIn || events[1] != EventSignedOut {
		t.Fatalf("unexpected event sequence: %v", events)
	}
}

func signToken(t *testing.T, secret []byte, subject, email string, expiresAt time.Time) string {
	t.Helper()
	claims := sessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}
