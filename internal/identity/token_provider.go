package identity

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken   = errors.New("identity: token required")
	ErrInvalidToken   = errors.New("identity: invalid token")
	ErrExpiredToken   = errors.New("identity: token expired")
	ErrMissingSubject = errors.New("identity: subject required")
)

// sessionClaims mirrors the JWT payload issued by the auth service.
type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenProviderConfig describes how session tokens are validated.
type TokenProviderConfig struct {
	// SigningSecret enables HS256 signature verification. When empty the
	// token is decoded without verification, which is acceptable on the
	// client side where the token only selects the local data partition.
	SigningSecret []byte
	Clock         func() time.Time
}

// TokenProvider derives the current user from a stored JWT access token
// and notifies subscribers of sign-in/sign-out transitions.
type TokenProvider struct {
	signingSecret []byte
	clock         func() time.Time

	mu          sync.RWMutex
	current     *User
	subscribers map[int64]func(Event, User)
	nextID      int64
}

// NewTokenProvider constructs a provider with no active session.
func NewTokenProvider(cfg TokenProviderConfig) *TokenProvider {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenProvider{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		clock:         clock,
		subscribers:   make(map[int64]func(Event, User)),
	}
}

// SetToken validates the token, installs the derived user as the current
// identity and notifies subscribers of the sign-in.
func (p *TokenProvider) SetToken(tokenString string) (User, error) {
	user, err := p.parseToken(tokenString)
	if err != nil {
		return User{}, err
	}

	p.mu.Lock()
	p.current = &user
	listeners := p.snapshotSubscribersLocked()
	p.mu.Unlock()

	for _, listener := range listeners {
		listener(EventSignedIn, user)
	}
	return user, nil
}

// ClearToken drops the current identity and notifies subscribers.
func (p *TokenProvider) ClearToken() {
	p.mu.Lock()
	previous := p.current
	p.current = nil
	listeners := p.snapshotSubscribersLocked()
	p.mu.Unlock()

	if previous == nil {
		return
	}
	for _, listener := range listeners {
		listener(EventSignedOut, *previous)
	}
}

// CurrentUser returns the signed-in user, if any.
func (p *TokenProvider) CurrentUser() (User, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return User{}, false
	}
	return *p.current, true
}

// Subscribe registers a transition listener.
func (p *TokenProvider) Subscribe(listener func(Event, User)) func() {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.subscribers[id] = listener
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subscribers, id)
		p.mu.Unlock()
	}
}

func (p *TokenProvider) parseToken(tokenString string) (User, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return User{}, ErrMissingToken
	}

	claims := &sessionClaims{}
	var err error
	if len(p.signingSecret) > 0 {
		_, err = jwt.ParseWithClaims(
			token,
			claims,
			func(t *jwt.Token) (interface{}, error) {
				if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
					return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidToken, t.Method.Alg())
				}
				return p.signingSecret, nil
			},
			jwt.WithTimeFunc(p.clock),
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		)
	} else {
		_, _, err = jwt.NewParser().ParseUnverified(token, claims)
		if err == nil && claims.ExpiresAt != nil && !claims.ExpiresAt.After(p.clock()) {
			err = jwt.ErrTokenExpired
		}
	}
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return User{}, ErrExpiredToken
		}
		return User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return User{}, ErrMissingSubject
	}

	return User{ID: subject, Email: strings.TrimSpace(claims.Email)}, nil
}

func (p *TokenProvider) snapshotSubscribersLocked() []func(Event, User) {
	listeners := make([]func(Event, User), 0, len(p.subscribers))
	for _, listener := range p.subscribers {
		listeners = append(listeners, listener)
	}
	return listeners
}
