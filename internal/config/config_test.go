package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	values := map[string]string{
		"MPESA_TIMEOUT_CALLBACK_URL":    "https://example.com/mpesa/timeout",
		"MPESA_RESULT_CALLBACK_URL":     "https://example.com/mpesa/callback/result",
		"MPESA_STK_RESULT_CALLBACK_URL": "https://example.com/mpesa/callback/stk/result",
		"MPESA_B2C_CONSUMER_KEY":        "b2c-key",
		"MPESA_B2C_CONSUMER_SECRET":     "b2c-secret",
		"MPESA_INITIATOR_NAME":          "testapi",
		"MPESA_INITIATOR_PASSWORD":      "Safaricom999!*!",
		"MPESA_B2C_SHORTCODE":           "600981",
		"MPESA_COMMAND_ID":              "BusinessPayment",
		"MPESA_C2B_CONSUMER_KEY":        "c2b-key",
		"MPESA_C2B_CONSUMER_SECRET":     "c2b-secret",
		"MPESA_C2B_SHORTCODE":           "174379",
		"MPESA_PASSKEY":                 "passkey",
		"MPESA_CERT_SANDBOX":            "/certs/sandbox.cer",
	}
	for k, v := range values {
		t.Setenv(k, v)
	}
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvSandbox, cfg.Mpesa.Env)
	assert.Equal(t, sandboxBaseURL, cfg.Mpesa.BaseURL())
	assert.Equal(t, "/certs/sandbox.cer", cfg.Mpesa.CertPath())
	assert.Equal(t, 10*time.Second, cfg.Mpesa.HTTPTimeout)
	assert.Equal(t, ":3005", cfg.Address())
}

func TestLoadProductionRequiresProdCert(t *testing.T) {
	setRequired(t)
	t.Setenv("MPESA_ENV", "production")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorContains(t, err, "MPESA_CERT_PROD")

	t.Setenv("MPESA_CERT_PROD", "/certs/prod.cer")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, productionBaseURL, cfg.Mpesa.BaseURL())
	assert.Equal(t, "/certs/prod.cer", cfg.Mpesa.CertPath())
}

func TestLoadMissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("MPESA_PASSKEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorContains(t, err, "MPESA_PASSKEY")
}

func TestLoadRejectsInvalidCallbackURI(t *testing.T) {
	setRequired(t)
	t.Setenv("MPESA_RESULT_CALLBACK_URL", "not a url")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorContains(t, err, "MPESA_RESULT_CALLBACK_URL")
}

func TestLoadRejectsUnknownEnvironment(t *testing.T) {
	setRequired(t)
	t.Setenv("MPESA_ENV", "staging")

	_, err := Load()
	assert.Error(t, err)
}

func TestBaseURLOverride(t *testing.T) {
	m := MpesaConfig{Env: EnvProduction, BaseURLOverride: "http://127.0.0.1:9999/"}
	assert.Equal(t, "http://127.0.0.1:9999", m.BaseURL())
}
