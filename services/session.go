package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"roundabout/realtime"
)

const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
)

// Session is the authenticated caller of one request.
type Session struct {
	ID        string    `json:"-"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	Token     string    `json:"-"`
}

// CanModerate reports whether the session may verify or reject engagements.
func (s *Session) CanModerate() bool {
	return s.Role == RoleAdmin || s.Role == RoleModerator
}

func (s *Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// Claims are the identity provider's access-token claims.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	// AppRole overrides Role; the provider sets Role to "authenticated".
	AppRole string `json:"app_role,omitempty"`
	jwt.RegisteredClaims
}

// SessionManager validates bearer tokens and owns each session's lifecycle:
// Init on first use, Teardown on sign-out.
type SessionManager struct {
	secret   []byte
	issuer   string
	profiles *ProfileService
	registry *realtime.Registry
	clock    clockwork.Clock
	logger   *zap.Logger

	mu      sync.Mutex
	active  map[string]*Session
	revoked map[string]time.Time
}

func NewSessionManager(secret, issuer string, profiles *ProfileService, registry *realtime.Registry, clock clockwork.Clock, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		secret:   []byte(secret),
		issuer:   issuer,
		profiles: profiles,
		registry: registry,
		clock:    clock,
		logger:   logger.Named("session"),
		active:   make(map[string]*Session),
		revoked:  make(map[string]time.Time),
	}
}

func sessionID(claims *Claims, token string) string {
	if claims.ID != "" {
		return claims.ID
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:16])
}

// Parse validates an HS256 token without touching the store.
func (m *SessionManager) Parse(token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrAuthenticationRequired
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	var claims Claims
	if _, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationRequired, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrAuthenticationRequired)
	}

	role := claims.Role
	if claims.AppRole != "" {
		role = claims.AppRole
	}
	return &Session{
		ID:        sessionID(&claims, token),
		UserID:    claims.Subject,
		Email:     claims.Email,
		Role:      role,
		ExpiresAt: claims.ExpiresAt.Time,
		Token:     token,
	}, nil
}

// Init validates the token and, the first time a session is seen, ensures the
// caller's profile exists.
func (m *SessionManager) Init(ctx context.Context, token string) (*Session, error) {
	sess, err := m.Parse(token)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if _, gone := m.revoked[sess.ID]; gone {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: session signed out", ErrAuthenticationRequired)
	}
	cached, ok := m.active[sess.ID]
	m.mu.Unlock()
	if ok {
		return cached, nil
	}

	if _, err := m.profiles.Ensure(ctx, sess.UserID, sess.Email); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.active[sess.ID] = sess
	m.mu.Unlock()
	m.logger.Debug("[SESSION] initialized", zap.String("user_id", sess.UserID))
	return sess, nil
}

// Teardown ends a session: its realtime subscriptions close, cached state is
// dropped and the token is refused until it would have expired anyway.
func (m *SessionManager) Teardown(sess *Session) {
	closed := m.registry.CloseOwner(sess.ID)

	m.mu.Lock()
	delete(m.active, sess.ID)
	m.revoked[sess.ID] = sess.ExpiresAt
	m.mu.Unlock()

	m.logger.Info("[SESSION] signed out",
		zap.String("user_id", sess.UserID),
		zap.Int("closed_subscriptions", closed))
}

// Prune forgets expired sessions and revocations.
func (m *SessionManager) Prune() int {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.active {
		if !now.Before(s.ExpiresAt) {
			delete(m.active, id)
			n++
		}
	}
	for id, exp := range m.revoked {
		if !now.Before(exp) {
			delete(m.revoked, id)
			n++
		}
	}
	return n
}

// Registry exposes the realtime registry sessions subscribe through.
func (m *SessionManager) Registry() *realtime.Registry {
	return m.registry
}

var errNoSession = errors.New("no session in context")

type sessionKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func SessionFrom(ctx context.Context) (*Session, error) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	if !ok || s == nil {
		return nil, errNoSession
	}
	return s, nil
}
