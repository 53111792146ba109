package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/nerrad567/iotagent-ngsi/internal/infrastructure/config"
)

// TokenProvider exchanges a long-lived trust credential for a short-lived
// access token.
type TokenProvider interface {
	GetToken(ctx context.Context, trust string) (string, error)
}

// Logger defines the logging interface used by token providers.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// TrustFingerprint identifies a trust in logs and errors without revealing
// it: the first 8 hex characters of its SHA-256.
func TrustFingerprint(trust string) string {
	sum := sha256.Sum256([]byte(trust))
	return "sha256:" + hex.EncodeToString(sum[:])[:8]
}

// New builds the provider selected by cfg.Type.
// It returns nil without error when authentication is disabled.
func New(cfg config.AuthenticationConfig, client *http.Client) (TokenProvider, error) {
	if !cfg.Enabled {
		return nil, nil //nolint:nilnil // no provider when authentication is off
	}

	switch cfg.Type {
	case "keystone":
		p, err := NewKeystoneProvider(cfg, client)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "jwt":
		p, err := NewJWTProvider(cfg.Secret, cfg.TokenTTL)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown authentication type %q", config.ErrBadConfiguration, cfg.Type)
	}
}
