package mpesa

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/congo-pay/daraja_gateway/internal/config"
	"github.com/congo-pay/daraja_gateway/internal/logging"
)

const (
	testInitiatorPassword = "Safaricom999!*!"
	testStaticCredential  = "static-credential"
	acceptedBody          = `{"ConversationID":"AG_20240101_0001","OriginatorConversationID":"1234-5678-1","ResponseCode":"0","ResponseDescription":"Accept the service request successfully."}`
)

func testConfig(baseURL string) config.MpesaConfig {
	return config.MpesaConfig{
		Env:                  config.EnvSandbox,
		BaseURLOverride:      baseURL,
		HTTPTimeout:          time.Second,
		TimeoutCallbackURL:   "https://example.com/mpesa/timeout",
		ResultCallbackURL:    "https://example.com/mpesa/callback/result",
		STKResultCallbackURL: "https://example.com/mpesa/callback/stk/result",
		B2CConsumerKey:       "b2c-key",
		B2CConsumerSecret:    "b2c-secret",
		InitiatorName:        "testapi",
		InitiatorPassword:    testInitiatorPassword,
		B2CShortCode:         "600981",
		CommandID:            "BusinessPayment",
		SecurityCredential:   testStaticCredential,
		C2BConsumerKey:       "c2b-key",
		C2BConsumerSecret:    "c2b-secret",
		C2BShortCode:         "174379",
		Passkey:              "passkey",
	}
}

type fakeOpts struct {
	tokenStatus int
	txStatus    int
	txBody      string
	delay       time.Duration
}

// fakeDaraja records every request it receives. Behaviour is fixed at
// construction so handlers never race with the test goroutine.
type fakeDaraja struct {
	opts   fakeOpts
	server *httptest.Server

	mu       sync.Mutex
	hits     map[string]int
	bodies   map[string][]byte
	bearers  map[string]string
	basicIDs []string
}

func newFakeDaraja(t *testing.T, opts fakeOpts) *fakeDaraja {
	t.Helper()
	if opts.tokenStatus == 0 {
		opts.tokenStatus = http.StatusOK
	}
	if opts.txStatus == 0 {
		opts.txStatus = http.StatusOK
	}
	if opts.txBody == "" {
		opts.txBody = acceptedBody
	}
	f := &fakeDaraja{
		opts:    opts,
		hits:    make(map[string]int),
		bodies:  make(map[string][]byte),
		bearers: make(map[string]string),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeDaraja) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	user, _, hasBasic := r.BasicAuth()

	f.mu.Lock()
	f.hits[r.URL.Path]++
	f.bodies[r.URL.Path] = body
	if hasBasic {
		f.basicIDs = append(f.basicIDs, user)
	} else {
		f.bearers[r.URL.Path] = r.Header.Get("Authorization")
	}
	f.mu.Unlock()

	if f.opts.delay > 0 {
		time.Sleep(f.opts.delay)
	}

	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path == "/oauth/v1/generate" {
		if !hasBasic || r.URL.Query().Get("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"errorMessage":"Invalid grant type passed"}`)
			return
		}
		if f.opts.tokenStatus != http.StatusOK {
			w.WriteHeader(f.opts.tokenStatus)
			_, _ = io.WriteString(w, `{"errorMessage":"token service unavailable"}`)
			return
		}
		_, _ = fmt.Fprintf(w, `{"access_token":"token-%s","expires_in":"3599"}`, user)
		return
	}

	w.WriteHeader(f.opts.txStatus)
	_, _ = io.WriteString(w, f.opts.txBody)
}

func (f *fakeDaraja) hitCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeDaraja) body(path string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[path]
}

func (f *fakeDaraja) bearer(path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bearers[path]
}

func (f *fakeDaraja) tokenCallers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.basicIDs...)
}

func newTestClient(f *fakeDaraja, timeout time.Duration) *Client {
	return NewClient(f.server.URL, timeout, logging.Discard())
}

type testKeyFiles struct {
	key       *rsa.PrivateKey
	certPath  string
	pkixPath  string
	pkcs1Path string
}

// writeTestKeys creates a throwaway RSA key and writes it as a self-signed
// certificate, a PKIX public key and a PKCS#1 public key.
func writeTestKeys(t *testing.T) testKeyFiles {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "daraja-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	pkixDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	dir := t.TempDir()
	files := testKeyFiles{
		key:       key,
		certPath:  filepath.Join(dir, "sandbox.cer"),
		pkixPath:  filepath.Join(dir, "public.pem"),
		pkcs1Path: filepath.Join(dir, "rsa_public.pem"),
	}
	writePEM(t, files.certPath, "CERTIFICATE", der)
	writePEM(t, files.pkixPath, "PUBLIC KEY", pkixDER)
	writePEM(t, files.pkcs1Path, "RSA PUBLIC KEY", x509.MarshalPKCS1PublicKey(&key.PublicKey))
	return files
}

func writePEM(t *testing.T, path, blockType string, der []byte) {
	t.Helper()
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	require.NoError(t, os.WriteFile(path, data, 0o600))
}
