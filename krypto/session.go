package krypto

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sulavpanthi/xero-oauth/config"
)

// Kind distinguishes the two first-party token families. Each kind is signed
// with its own secret.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

var (
	ErrTokenExpired         = errors.New("token expired")
	ErrTokenInvalid         = errors.New("token invalid")
	ErrInvalidSessionConfig = errors.New("invalid session token configuration")
)

// SessionClaims are the claims carried by first-party tokens. Subject holds
// the identity record id.
type SessionClaims struct {
	Kind  Kind           `json:"kind"`
	Extra map[string]any `json:"ext,omitempty"`
	jwt.RegisteredClaims
}

// SessionConfig configures the session token codec.
type SessionConfig struct {
	SecretKey                 string `env:"SECRET_KEY,required"`
	RefreshSecretKey          string `env:"REFRESH_SECRET_KEY,required"`
	Algorithm                 string `env:"ALGORITHM,default:HS256"`
	AccessTokenExpiryMinutes  int    `env:"ACCESS_TOKEN_EXPIRY_MINUTES,default:30"`
	RefreshTokenExpiryMinutes int    `env:"REFRESH_TOKEN_EXPIRY_MINUTES,default:1440"`
}

// GetSessionConfig loads the session settings from the environment.
func GetSessionConfig(opts ...config.LoadOptions) (*SessionConfig, error) {
	cfg := &SessionConfig{}
	if err := config.Load(cfg, opts...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SessionCodec issues and verifies first-party access and refresh tokens.
type SessionCodec struct {
	method  jwt.SigningMethod
	keys    map[Kind][]byte
	windows map[Kind]time.Duration
	now     func() time.Time
}

// SessionOption configures a SessionCodec.
type SessionOption func(*SessionCodec)

// WithClock replaces time.Now for issuing and verifying.
func WithClock(now func() time.Time) SessionOption {
	return func(c *SessionCodec) {
		c.now = now
	}
}

// NewSessionCodec validates cfg and builds a codec.
func NewSessionCodec(cfg SessionConfig, opts ...SessionOption) (*SessionCodec, error) {
	if cfg.SecretKey == "" || cfg.RefreshSecretKey == "" {
		return nil, fmt.Errorf("%w: both secret keys are required", ErrInvalidSessionConfig)
	}
	if cfg.SecretKey == cfg.RefreshSecretKey {
		return nil, fmt.Errorf("%w: access and refresh secrets must differ", ErrInvalidSessionConfig)
	}
	if cfg.AccessTokenExpiryMinutes <= 0 || cfg.RefreshTokenExpiryMinutes <= 0 {
		return nil, fmt.Errorf("%w: expiry windows must be positive", ErrInvalidSessionConfig)
	}

	alg := cfg.Algorithm
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	var method jwt.SigningMethod
	switch alg {
	case "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidSessionConfig, alg)
	}

	c := &SessionCodec{
		method: method,
		keys: map[Kind][]byte{
			KindAccess:  []byte(cfg.SecretKey),
			KindRefresh: []byte(cfg.RefreshSecretKey),
		},
		windows: map[Kind]time.Duration{
			KindAccess:  time.Duration(cfg.AccessTokenExpiryMinutes) * time.Minute,
			KindRefresh: time.Duration(cfg.RefreshTokenExpiryMinutes) * time.Minute,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Window returns the validity window of kind.
func (c *SessionCodec) Window(kind Kind) time.Duration {
	return c.windows[kind]
}

// Issue signs a token of the given kind for subject, valid from now for the
// kind's window. extra is carried verbatim under the "ext" claim.
func (c *SessionCodec) Issue(subject string, kind Kind, extra map[string]any) (string, error) {
	key, ok := c.keys[kind]
	if !ok {
		return "", fmt.Errorf("%w: unknown token kind %q", ErrInvalidSessionConfig, kind)
	}
	if subject == "" {
		return "", errors.New("krypto: subject is required")
	}

	now := c.now()
	claims := SessionClaims{
		Kind:  kind,
		Extra: extra,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.windows[kind])),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Verify checks token against the secret of the expected kind. The signature
// is checked before expiry, so a token of the other kind always yields
// ErrTokenInvalid. An expired but authentic token yields ErrTokenExpired.
func (c *SessionCodec) Verify(token string, expected Kind) (*SessionClaims, error) {
	key, ok := c.keys[expected]
	if !ok {
		return nil, fmt.Errorf("%w: unknown token kind %q", ErrTokenInvalid, expected)
	}

	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if claims.Kind != expected {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrTokenInvalid, expected, claims.Kind)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims, nil
}
