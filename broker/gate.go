package broker

import (
	"fmt"
	"strings"

	"github.com/sulavpanthi/xero-oauth/krypto"
)

// Gate authenticates requests carrying a first-party access token.
type Gate struct {
	codec *krypto.SessionCodec
}

func NewGate(codec *krypto.SessionCodec) *Gate {
	return &Gate{codec: codec}
}

// Authenticate parses an Authorization header value and returns the record id
// of a valid access token. Every failure wraps ErrUnauthenticated; an expired
// token additionally matches krypto.ErrTokenExpired.
func (g *Gate) Authenticate(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", fmt.Errorf("%w: bearer token required", ErrUnauthenticated)
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: bearer token required", ErrUnauthenticated)
	}

	claims, err := g.codec.Verify(token, krypto.KindAccess)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return claims.Subject, nil
}
