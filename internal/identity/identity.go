package identity

import (
	"errors"
	"fmt"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"chat-hub/internal/models"
)

var ErrInvalidToken = errors.New("invalid token")

// Verifier resolves a bearer token into an authenticated identity. The
// hub never trusts client-supplied identity fields; everything identity
// related flows through here exactly once, at connect time.
type Verifier interface {
	Verify(token string) (models.Identity, error)
}

// HMACVerifier validates HS256 tokens carrying sub, name and username
// claims issued by the external identity service.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier constructs an HMACVerifier.
func NewHMACVerifier(secret []byte) *HMACVerifier {
	return &HMACVerifier{secret: secret}
}

// Verify parses and validates the token.
func (v *HMACVerifier) Verify(token string) (models.Identity, error) {
	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return models.Identity{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return models.Identity{}, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return models.Identity{}, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	name, _ := claims["name"].(string)
	if name == "" {
		name = sub
	}
	username, _ := claims["username"].(string)
	if username == "" {
		username = name
	}

	return models.Identity{
		UserID:        sub,
		DisplayName:   name,
		UsernameLower: strings.ToLower(username),
	}, nil
}

// FromAuthorizationHeader extracts the raw token from an Authorization
// header or returns the input unchanged when it has no Bearer prefix.
func FromAuthorizationHeader(header string) string {
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[len("bearer "):])
	}
	return strings.TrimSpace(header)
}
