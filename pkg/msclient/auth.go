package msclient

import (
	"context"
	cryptorand "crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionAuthenticator performs the OpenID handshake with the MS's
// identity provider, out of scope here, and returns the session password
// the gateway uses for all subsequent basic-auth RPCs.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context) (sessionPassword string, expiresAt time.Time, err error)
}

// sessionClaims is the locally-signed JWT a Session wraps its password in,
// so "has the session expired" is a cheap jwt.Claims check instead of a
// bare timestamp field threaded through every call site.
type sessionClaims struct {
	jwt.RegisteredClaims
	GatewayType string `json:"gwt"`
	GatewayID   uint64 `json:"gwid"`
	Password    string `json:"pwd"`
}

// localSessionKey signs the session token for this process's own
// consumption only; it never leaves the process or crosses a trust
// boundary, so a process-lifetime random key is sufficient.
var localSessionKey = func() []byte {
	b := make([]byte, 32)
	if _, err := cryptorand.Read(b); err != nil {
		panic("msclient: failed to seed local session key: " + err.Error())
	}
	return b
}()

// Session holds the basic-auth credential used for every MS RPC, and
// re-authenticates transparently when the wrapped JWT has expired.
type Session struct {
	mu          sync.Mutex
	auth        SessionAuthenticator
	gatewayType string
	gatewayID   uint64
	token       string
	claims      *sessionClaims
}

// NewSession constructs a Session for the given gateway identity, backed
// by auth for (re-)authentication.
func NewSession(auth SessionAuthenticator, gatewayType string, gatewayID uint64) *Session {
	return &Session{auth: auth, gatewayType: gatewayType, gatewayID: gatewayID}
}

// BasicAuth returns the current basic-auth username/password pair,
// re-authenticating first if the held session has expired or none exists
// yet.
func (s *Session) BasicAuth(ctx context.Context) (user, pass string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.claims == nil || s.expired() {
		if err := s.reauth(ctx); err != nil {
			return "", "", err
		}
	}

	user = fmt.Sprintf("%s_%d", s.gatewayType, s.gatewayID)
	return user, s.claims.Password, nil
}

// Invalidate forces the next BasicAuth call to re-authenticate, used when
// an RPC comes back 401/403 mid-session.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims = nil
	s.token = ""
}

func (s *Session) expired() bool {
	exp, err := s.claims.GetExpirationTime()
	return err != nil || exp == nil || time.Now().After(exp.Time)
}

func (s *Session) reauth(ctx context.Context) error {
	password, expiresAt, err := s.auth.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("msclient: authenticate: %w", err)
	}

	claims := &sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		GatewayType: s.gatewayType,
		GatewayID:   s.gatewayID,
		Password:    password,
	}

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(localSessionKey)
	if err != nil {
		return fmt.Errorf("msclient: sign local session token: %w", err)
	}

	s.token = tok
	s.claims = claims
	return nil
}
