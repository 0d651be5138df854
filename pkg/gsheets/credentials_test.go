package gsheets

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return key, string(pem.EncodeToMemory(block))
}

func credsJSON(t *testing.T, pemKey, tokenURI string) string {
	t.Helper()
	data, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"project_id":     "wallets",
		"private_key_id": "kid-1",
		"private_key":    pemKey,
		"client_email":   "bot@wallets.iam.gserviceaccount.com",
		"token_uri":      tokenURI,
	})
	require.NoError(t, err)
	return string(data)
}

func TestParseCredentials(t *testing.T) {
	valid := `{"client_email":"bot@x.iam","private_key":"-----BEGIN-----"}`
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{"clean", valid, ""},
		{"whitespace", "\n  " + valid + "  \n", ""},
		{"surrounding_noise", `GOOGLE_CREDENTIALS_JSON='` + valid + `'`, ""},
		{"no_json", "not json at all", "no JSON object"},
		{"invalid_json", `{"client_email": }`, "invalid credentials JSON"},
		{"missing_fields", `{"type":"service_account"}`, "missing client_email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseCredentials(tt.raw)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "bot@x.iam", c.ClientEmail)
			assert.Equal(t, defaultTokenURI, c.TokenURI)
		})
	}
}

func TestLoadCredentialsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"client_email":"a@b","private_key":"k","token_uri":"https://t"}`), 0o600))

	c, err := LoadCredentialsFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://t", c.TokenURI)

	_, err = LoadCredentialsFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read credentials file")
}

func TestJWTSource(t *testing.T) {
	key, pemKey := testKey(t)
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "urn:ietf:params:oauth:grant-type:jwt-bearer", r.PostForm.Get("grant_type"))

		tok, err := jwt.Parse(r.PostForm.Get("assertion"), func(*jwt.Token) (any, error) {
			return &key.PublicKey, nil
		}, jwt.WithValidMethods([]string{"RS256"}))
		require.NoError(t, err)
		claims := tok.Claims.(jwt.MapClaims)
		assert.Equal(t, "bot@wallets.iam.gserviceaccount.com", claims["iss"])
		assert.Equal(t, ScopeSpreadsheets, claims["scope"])
		assert.Equal(t, "kid-1", tok.Header["kid"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"ya29.token","expires_in":3600,"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	creds, err := ParseCredentials(credsJSON(t, pemKey, srv.URL))
	require.NoError(t, err)
	src, err := NewJWTSource(creds, srv.Client())
	require.NoError(t, err)

	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ya29.token", tok)

	tok, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ya29.token", tok)
	assert.Equal(t, int32(1), calls.Load(), "token is cached until expiry")
}

func TestJWTSource_RenewsExpiringToken(t *testing.T) {
	_, pemKey := testKey(t)
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":5,"token_type":"Bearer"}`, n)
	}))
	defer srv.Close()

	creds, err := ParseCredentials(credsJSON(t, pemKey, srv.URL))
	require.NoError(t, err)
	src, err := NewJWTSource(creds, srv.Client())
	require.NoError(t, err)

	first, err := src.Token(context.Background())
	require.NoError(t, err)
	second, err := src.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok-1", first)
	assert.Equal(t, "tok-2", second)
	assert.Equal(t, int32(2), calls.Load())
}

func TestJWTSource_ExchangeFailure(t *testing.T) {
	_, pemKey := testKey(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	creds, err := ParseCredentials(credsJSON(t, pemKey, srv.URL))
	require.NoError(t, err)
	src, err := NewJWTSource(creds, nil)
	require.NoError(t, err)

	_, err = src.Token(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestNewJWTSource_BadKey(t *testing.T) {
	_, err := NewJWTSource(&Credentials{ClientEmail: "a", PrivateKey: "nope"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse private key")
}
