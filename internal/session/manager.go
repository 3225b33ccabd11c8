package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"taskdesk/internal/domain"
)

const (
	purposeSession = "session"
	purposeCSRF    = "csrf"
	purposeFlash   = "flash"

	issuer = "taskdesk"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrRevoked      = errors.New("session revoked")
	ErrCSRFMismatch = errors.New("csrf token mismatch")
)

// SessionClaims identify a logged-in user.
type SessionClaims struct {
	Purpose string `json:"pur"`
	Email   string `json:"email"`
	jwt.RegisteredClaims
}

// UserID returns the numeric subject.
func (c *SessionClaims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

type csrfClaims struct {
	Purpose string `json:"pur"`
	Intent  string `json:"intent"`
	Nonce   string `json:"nonce"`
	jwt.RegisteredClaims
}

// Flash is the signed payload of the flash cookie.
type Flash struct {
	Kind         string `json:"kind"`
	Message      string `json:"msg"`
	LastUsername string `json:"last_username,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
}

type flashClaims struct {
	Purpose string `json:"pur"`
	Flash
	jwt.RegisteredClaims
}

type Config struct {
	Secret     string
	SessionTTL time.Duration
	CSRFTTL    time.Duration
	FlashTTL   time.Duration
	Revoker    Revoker
}

// Manager issues and verifies the signed tokens behind sessions, CSRF protection and flashes.
type Manager struct {
	secret     []byte
	sessionTTL time.Duration
	csrfTTL    time.Duration
	flashTTL   time.Duration
	revoker    Revoker
	now        func() time.Time
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Secret == "" {
		return nil, errors.New("session secret is required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.CSRFTTL <= 0 {
		cfg.CSRFTTL = time.Hour
	}
	if cfg.FlashTTL <= 0 {
		cfg.FlashTTL = 5 * time.Minute
	}
	if cfg.Revoker == nil {
		cfg.Revoker = NopRevoker{}
	}
	return &Manager{
		secret:     []byte(cfg.Secret),
		sessionTTL: cfg.SessionTTL,
		csrfTTL:    cfg.CSRFTTL,
		flashTTL:   cfg.FlashTTL,
		revoker:    cfg.Revoker,
		now:        time.Now,
	}, nil
}

func (m *Manager) SessionTTL() time.Duration { return m.sessionTTL }
func (m *Manager) CSRFTTL() time.Duration    { return m.csrfTTL }
func (m *Manager) FlashTTL() time.Duration   { return m.flashTTL }

func (m *Manager) registered(ttl time.Duration, subject string) jwt.RegisteredClaims {
	now := m.now()
	return jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (m *Manager) sign(claims jwt.Claims) (string, error) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

func (m *Manager) parse(token string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return nil
}

// IssueSession signs a session token for the user.
func (m *Manager) IssueSession(user *domain.User) (string, *SessionClaims, error) {
	if user == nil || user.ID == 0 {
		return "", nil, errors.New("session requires a stored user")
	}
	claims := &SessionClaims{
		Purpose:          purposeSession,
		Email:            user.Email,
		RegisteredClaims: m.registered(m.sessionTTL, strconv.FormatInt(user.ID, 10)),
	}
	token, err := m.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// ParseSession verifies a session token and checks it has not been revoked.
func (m *Manager) ParseSession(ctx context.Context, token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := m.parse(token, claims); err != nil {
		return nil, err
	}
	if claims.Purpose != purposeSession {
		return nil, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return nil, ErrInvalidToken
	}
	revoked, err := m.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, ErrRevoked
	}
	return claims, nil
}

// Revoke invalidates a session until it would have expired anyway.
func (m *Manager) Revoke(ctx context.Context, claims *SessionClaims) error {
	if claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	return m.revoker.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

// IssueCSRF returns a token for a form and the binding value the browser must hold as a cookie.
// A binding the browser already holds is kept so forms open in other tabs stay valid.
func (m *Manager) IssueCSRF(intent, existing string) (token, binding string, err error) {
	binding = existing
	if _, perr := uuid.Parse(binding); perr != nil {
		binding = uuid.NewString()
	}
	token, err = m.sign(&csrfClaims{
		Purpose:          purposeCSRF,
		Intent:           intent,
		Nonce:            binding,
		RegisteredClaims: m.registered(m.csrfTTL, ""),
	})
	if err != nil {
		return "", "", err
	}
	return token, binding, nil
}

// Validate checks a submitted CSRF token against its intent and the browser binding.
func (m *Manager) Validate(intent, token, binding string) error {
	if token == "" || binding == "" {
		return ErrCSRFMismatch
	}
	claims := &csrfClaims{}
	if err := m.parse(token, claims); err != nil {
		return err
	}
	if claims.Purpose != purposeCSRF || claims.Intent != intent {
		return ErrCSRFMismatch
	}
	if subtle.ConstantTimeCompare([]byte(claims.Nonce), []byte(binding)) != 1 {
		return ErrCSRFMismatch
	}
	return nil
}

func (m *Manager) EncodeFlash(f Flash) (string, error) {
	return m.sign(&flashClaims{
		Purpose:          purposeFlash,
		Flash:            f,
		RegisteredClaims: m.registered(m.flashTTL, ""),
	})
}

func (m *Manager) DecodeFlash(token string) (Flash, error) {
	claims := &flashClaims{}
	if err := m.parse(token, claims); err != nil {
		return Flash{}, err
	}
	if claims.Purpose != purposeFlash {
		return Flash{}, ErrInvalidToken
	}
	return claims.Flash, nil
}
