package mpesa

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/congo-pay/daraja_gateway/internal/config"
)

const tokenPath = "/oauth/v1/generate?grant_type=client_credentials"

// TokenSource yields bearer tokens for a Daraja app.
type TokenSource interface {
	AccessToken(ctx context.Context, app AppType) (string, error)
}

// CredentialSource yields an encrypted initiator password.
type CredentialSource interface {
	SecurityCredential(ctx context.Context) (string, error)
}

// CredentialManager fetches OAuth tokens and builds security credentials.
type CredentialManager struct {
	client *Client
	cfg    config.MpesaConfig
	cache  TokenCache
	logger *slog.Logger
}

// NewCredentialManager wires a credential manager. cache may be nil, in which
// case every AccessToken call fetches a fresh token.
func NewCredentialManager(client *Client, cfg config.MpesaConfig, cache TokenCache, logger *slog.Logger) *CredentialManager {
	return &CredentialManager{client: client, cfg: cfg, cache: cache, logger: logger}
}

// AccessToken returns a bearer token for app, served from the cache when one
// is configured and still valid.
func (m *CredentialManager) AccessToken(ctx context.Context, app AppType) (string, error) {
	key, secret, err := m.consumerPair(app)
	if err != nil {
		return "", err
	}

	cacheKey := tokenCacheKey(m.cfg.Env, app, key)
	if m.cache != nil {
		token, ok, err := m.cache.Get(ctx, cacheKey)
		if err != nil {
			m.logger.WarnContext(ctx, "token cache read failed", slog.String("app", string(app)), slog.Any("error", err))
		} else if ok {
			return token, nil
		}
	}

	op := "fetch access token"
	body, err := m.client.getBasic(ctx, op, tokenPath, key, secret)
	if err != nil {
		return "", err
	}

	var res tokenResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return "", &UpstreamError{Op: op, Err: fmt.Errorf("decode token response: %w", err)}
	}
	if res.AccessToken == "" {
		return "", &UpstreamError{Op: op, Err: errors.New("response has no access_token")}
	}

	if m.cache != nil {
		if err := m.cache.Set(ctx, cacheKey, res.AccessToken, cacheTTL(res.ExpiresIn)); err != nil {
			m.logger.WarnContext(ctx, "token cache write failed", slog.String("app", string(app)), slog.Any("error", err))
		}
	}
	return res.AccessToken, nil
}

func (m *CredentialManager) consumerPair(app AppType) (string, string, error) {
	var key, secret, prefix string
	switch app {
	case AppCollection:
		key, secret, prefix = m.cfg.C2BConsumerKey, m.cfg.C2BConsumerSecret, "MPESA_C2B"
	case AppDisbursement:
		key, secret, prefix = m.cfg.B2CConsumerKey, m.cfg.B2CConsumerSecret, "MPESA_B2C"
	default:
		return "", "", invalid("app", fmt.Sprintf("unknown app type %q", app))
	}
	if key == "" {
		return "", "", &ConfigurationError{Setting: prefix + "_CONSUMER_KEY", Err: errors.New("not set")}
	}
	if secret == "" {
		return "", "", &ConfigurationError{Setting: prefix + "_CONSUMER_SECRET", Err: errors.New("not set")}
	}
	return key, secret, nil
}

// SecurityCredential encrypts the initiator password with the Daraja public
// certificate for the active environment. The certificate is read on every
// call.
func (m *CredentialManager) SecurityCredential(ctx context.Context) (string, error) {
	setting := "MPESA_CERT_SANDBOX"
	if m.cfg.IsProduction() {
		setting = "MPESA_CERT_PROD"
	}
	path := m.cfg.CertPath()
	if path == "" {
		return "", &ConfigurationError{Setting: setting, Err: errors.New("not set")}
	}
	if m.cfg.InitiatorPassword == "" {
		return "", &ConfigurationError{Setting: "MPESA_INITIATOR_PASSWORD", Err: errors.New("not set")}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", &ConfigurationError{Setting: setting, Err: fmt.Errorf("read certificate: %w", err)}
	}
	pub, err := parsePublicKey(data)
	if err != nil {
		return "", &ConfigurationError{Setting: setting, Err: err}
	}

	ciphertext, err := rsa.EncryptPKCS1v15(rand.Reader, pub, []byte(m.cfg.InitiatorPassword))
	if err != nil {
		return "", &CryptoError{Err: err}
	}
	m.logger.DebugContext(ctx, "security credential generated", slog.String("certificate", path))
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// parsePublicKey extracts an RSA public key from the first PEM block, which
// may be a certificate, a PKIX public key or a PKCS#1 public key.
func parsePublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("certificate is not PEM encoded")
	}

	var key any
	switch strings.ToUpper(block.Type) {
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse certificate: %w", err)
		}
		key = cert.PublicKey
	case "PUBLIC KEY":
		pk, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		key = pk
	case "RSA PUBLIC KEY":
		pk, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse rsa public key: %w", err)
		}
		key = pk
	default:
		return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
	}

	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("certificate does not hold an RSA public key")
	}
	return pub, nil
}
