package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	EnvSandbox    = "sandbox"
	EnvProduction = "production"

	sandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	productionBaseURL = "https://api.safaricom.co.ke"

	defaultAppEnv = "development"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string        `env:"APP_NAME" envDefault:"DarajaGateway"`
	AppEnv         string        `env:"APP_ENV" envDefault:"development"`
	Port           string        `env:"PORT" envDefault:"3005"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"LOG_FORMAT" envDefault:"json"`
	ShutdownPeriod time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RedisURL       string        `env:"REDIS_URL"`

	// DebugKeyHash is a bcrypt hash of the operator key that unlocks the
	// token and credential debug endpoints.
	DebugKeyHash   string `env:"DEBUG_KEY_HASH"`
	DebugRateLimit int    `env:"DEBUG_RATE_LIMIT" envDefault:"10"`

	Mpesa MpesaConfig `envPrefix:"MPESA_"`
}

// MpesaConfig holds the Daraja credentials, shortcodes and callback URLs.
type MpesaConfig struct {
	Env             string        `env:"ENV" envDefault:"sandbox"`
	BaseURLOverride string        `env:"BASE_URL"`
	CertSandbox     string        `env:"CERT_SANDBOX"`
	CertProd        string        `env:"CERT_PROD"`
	HTTPTimeout     time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`

	TimeoutCallbackURL   string `env:"TIMEOUT_CALLBACK_URL,required,notEmpty"`
	ResultCallbackURL    string `env:"RESULT_CALLBACK_URL,required,notEmpty"`
	STKResultCallbackURL string `env:"STK_RESULT_CALLBACK_URL,required,notEmpty"`

	B2CConsumerKey     string `env:"B2C_CONSUMER_KEY,required,notEmpty"`
	B2CConsumerSecret  string `env:"B2C_CONSUMER_SECRET,required,notEmpty"`
	InitiatorName      string `env:"INITIATOR_NAME,required,notEmpty"`
	InitiatorPassword  string `env:"INITIATOR_PASSWORD,required,notEmpty"`
	B2CShortCode       string `env:"B2C_SHORTCODE,required,notEmpty"`
	CommandID          string `env:"COMMAND_ID,required,notEmpty"`
	SecurityCredential string `env:"SECURITY_CREDENTIAL"`

	C2BConsumerKey    string `env:"C2B_CONSUMER_KEY,required,notEmpty"`
	C2BConsumerSecret string `env:"C2B_CONSUMER_SECRET,required,notEmpty"`
	C2BShortCode      string `env:"C2B_SHORTCODE,required,notEmpty"`
	Passkey           string `env:"PASSKEY,required,notEmpty"`
}

// Load reads .env files (when present) and the process environment, then
// validates the result. Values already set in the environment win.
func Load() (Config, error) {
	appEnv := strings.ToLower(getEnv("APP_ENV", defaultAppEnv))
	for _, file := range []string{".env." + appEnv, ".env"} {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.Mpesa.Env = strings.ToLower(cfg.Mpesa.Env)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the cross-field rules that struct tags cannot express.
func (c Config) Validate() error {
	var errs []error

	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat))
	}
	if c.ShutdownPeriod <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT must be positive"))
	}

	m := c.Mpesa
	switch m.Env {
	case EnvSandbox:
		if m.CertSandbox == "" {
			errs = append(errs, errors.New("MPESA_CERT_SANDBOX must be set when MPESA_ENV=sandbox"))
		}
	case EnvProduction:
		if m.CertProd == "" {
			errs = append(errs, errors.New("MPESA_CERT_PROD must be set when MPESA_ENV=production"))
		}
	default:
		errs = append(errs, fmt.Errorf("MPESA_ENV must be sandbox or production, got %q", m.Env))
	}
	if m.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("MPESA_HTTP_TIMEOUT must be positive"))
	}

	uris := []struct{ name, value string }{
		{"MPESA_TIMEOUT_CALLBACK_URL", m.TimeoutCallbackURL},
		{"MPESA_RESULT_CALLBACK_URL", m.ResultCallbackURL},
		{"MPESA_STK_RESULT_CALLBACK_URL", m.STKResultCallbackURL},
	}
	if m.BaseURLOverride != "" {
		uris = append(uris, struct{ name, value string }{"MPESA_BASE_URL", m.BaseURLOverride})
	}
	for _, u := range uris {
		if !IsAbsoluteURI(u.value) {
			errs = append(errs, fmt.Errorf("%s must be a valid absolute URI", u.name))
		}
	}

	return errors.Join(errs...)
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsProduction reports whether calls go to the live Daraja environment.
func (m MpesaConfig) IsProduction() bool {
	return m.Env == EnvProduction
}

// BaseURL returns the Daraja API root for the configured environment.
func (m MpesaConfig) BaseURL() string {
	if m.BaseURLOverride != "" {
		return strings.TrimRight(m.BaseURLOverride, "/")
	}
	if m.IsProduction() {
		return productionBaseURL
	}
	return sandboxBaseURL
}

// CertPath returns the public certificate used for the active environment.
func (m MpesaConfig) CertPath() string {
	if m.IsProduction() {
		return m.CertProd
	}
	return m.CertSandbox
}

// IsAbsoluteURI reports whether s parses as a URI with a scheme and host.
func IsAbsoluteURI(s string) bool {
	u, err := url.ParseRequestURI(s)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
