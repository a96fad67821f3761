package remote

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/clock"
)

var ErrMissingCredentials = errors.New("missing_credentials")

// Credentials supplies the bearer token attached to every request.
type Credentials interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	token := strings.TrimSpace(string(t))
	if token == "" {
		return "", ErrMissingCredentials
	}
	return token, nil
}

// StoreClaims identify the store a composer acts for.
type StoreClaims struct {
	StoreID string `json:"store_id"`
	jwt.RegisteredClaims
}

// JWTProvider signs short-lived HS256 tokens and reuses them until a
// minute before expiry.
type JWTProvider struct {
	secret  []byte
	subject string
	storeID string
	ttl     time.Duration
	clock   clock.Clock

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewJWTProvider(secret, subject, storeID string, ttl time.Duration, c clock.Clock) (*JWTProvider, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingCredentials
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if c == nil {
		c = clock.New()
	}
	return &JWTProvider{
		secret:  []byte(secret),
		subject: subject,
		storeID: storeID,
		ttl:     ttl,
		clock:   c,
	}, nil
}

func (p *JWTProvider) Token(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	if p.token != "" && now.Add(time.Minute).Before(p.expires) {
		return p.token, nil
	}

	expires := now.Add(p.ttl)
	claims := StoreClaims{
		StoreID: p.storeID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", err
	}
	p.token = signed
	p.expires = expires
	return signed, nil
}

// ParseStoreToken verifies an HS256 token produced by JWTProvider.
func ParseStoreToken(raw, secret string) (*StoreClaims, error) {
	claims := &StoreClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
