package security

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/iotagent-ngsi/internal/infrastructure/config"
)

// Issuer is the iss claim on locally issued tokens.
const Issuer = "iotagent-ngsi"

const defaultTokenTTL = 60 * time.Minute

// TrustClaims are the claims of a locally issued token.
// The subject is the trust the token was issued for.
type TrustClaims struct {
	jwt.RegisteredClaims
}

// JWTProvider signs HS256 tokens locally, for PEP proxies that share the
// agent's secret instead of talking to Keystone.
type JWTProvider struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTProvider creates a provider signing with secret.
// A non-positive ttlMinutes uses a one hour lifetime.
func NewJWTProvider(secret string, ttlMinutes int) (*JWTProvider, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: authentication.secret is required for jwt", config.ErrBadConfiguration)
	}

	ttl := time.Duration(ttlMinutes) * time.Minute
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	return &JWTProvider{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// GetToken returns a signed token whose subject is trust.
func (p *JWTProvider) GetToken(_ context.Context, trust string) (string, error) {
	if trust == "" {
		return "", ErrMissingTrust
	}

	now := p.now()
	claims := TrustClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   trust,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a token issued by a JWTProvider with the same secret.
func ParseToken(tokenString, secret string) (*TrustClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TrustClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(Issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*TrustClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	return claims, nil
}
