package security

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nerrad567/iotagent-ngsi/internal/infrastructure/config"
)

// SubjectTokenHeader carries the issued token in Keystone responses.
const SubjectTokenHeader = "X-Subject-Token"

// maxErrorBody bounds how much of an error response is kept for logging.
const maxErrorBody = 4096

// KeystoneProvider obtains trust-scoped tokens from an OpenStack Keystone v3
// identity service, authenticating as the agent's service user.
type KeystoneProvider struct {
	url      string
	user     string
	password string
	domain   string
	client   *http.Client
	logger   Logger
}

// NewKeystoneProvider creates a provider for the Keystone at cfg.Host:cfg.Port.
// A nil client uses http.DefaultClient.
func NewKeystoneProvider(cfg config.AuthenticationConfig, client *http.Client) (*KeystoneProvider, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: authentication.host is required for keystone", config.ErrBadConfiguration)
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &KeystoneProvider{
		url:      fmt.Sprintf("http://%s:%d/v3/auth/tokens", cfg.Host, cfg.Port),
		user:     cfg.User,
		password: cfg.Password,
		domain:   cfg.Domain,
		client:   client,
		logger:   noopLogger{},
	}, nil
}

// SetLogger sets the logger for the provider.
func (p *KeystoneProvider) SetLogger(logger Logger) {
	p.logger = logger
}

type keystoneRequest struct {
	Auth keystoneAuth `json:"auth"`
}

type keystoneAuth struct {
	Identity keystoneIdentity `json:"identity"`
	Scope    keystoneScope    `json:"scope"`
}

type keystoneIdentity struct {
	Methods  []string         `json:"methods"`
	Password keystonePassword `json:"password"`
}

type keystonePassword struct {
	User keystoneUser `json:"user"`
}

type keystoneUser struct {
	Domain   keystoneName `json:"domain"`
	Name     string       `json:"name"`
	Password string       `json:"password"`
}

type keystoneName struct {
	Name string `json:"name"`
}

type keystoneScope struct {
	Trust keystoneID `json:"OS-TRUST:trust"`
}

type keystoneID struct {
	ID string `json:"id"`
}

// GetToken requests a token scoped to trust.
func (p *KeystoneProvider) GetToken(ctx context.Context, trust string) (string, error) {
	if trust == "" {
		return "", ErrMissingTrust
	}

	body, err := json.Marshal(keystoneRequest{
		Auth: keystoneAuth{
			Identity: keystoneIdentity{
				Methods: []string{"password"},
				Password: keystonePassword{
					User: keystoneUser{
						Domain:   keystoneName{Name: p.domain},
						Name:     p.user,
						Password: p.password,
					},
				},
			},
			Scope: keystoneScope{Trust: keystoneID{ID: trust}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshalling token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenRequestFailed, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		token := resp.Header.Get(SubjectTokenHeader)
		if token == "" {
			return "", fmt.Errorf("%w: response has no %s header", ErrTokenRequestFailed, SubjectTokenHeader)
		}
		p.logger.Debug("token issued", "trust", TrustFingerprint(trust))
		return token, nil
	case http.StatusUnauthorized, http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", ErrInvalidTrust, TrustFingerprint(trust))
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best effort
		p.logger.Warn("token request rejected", "trust", TrustFingerprint(trust), "status", resp.StatusCode, "body", string(detail))
		return "", fmt.Errorf("%w: unexpected status %d", ErrTokenRequestFailed, resp.StatusCode)
	}
}
