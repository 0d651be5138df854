package gsheets

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	oauthjwt "golang.org/x/oauth2/jwt"
)

const (
	// ScopeSpreadsheets grants read/write access to spreadsheets.
	ScopeSpreadsheets = "https://www.googleapis.com/auth/spreadsheets"

	defaultTokenURI = "https://oauth2.googleapis.com/token"
	tokenLifetime   = time.Hour
)

// Credentials is the subset of a service-account key file used for the JWT
// bearer flow.
type Credentials struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	TokenURI     string `json:"token_uri"`
}

// ParseCredentials decodes a service-account key. Text surrounding the
// outermost JSON object (quotes, shell noise, log prefixes) is discarded.
func ParseCredentials(raw string) (*Credentials, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "{") {
		start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
		if start == -1 || end <= start {
			return nil, eris.New("gsheets: credentials contain no JSON object")
		}
		raw = raw[start : end+1]
		zap.L().Warn("gsheets: extracted JSON from credentials (removed extra content)")
	}

	var c Credentials
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, eris.Wrap(err, "gsheets: invalid credentials JSON")
	}
	if c.ClientEmail == "" || c.PrivateKey == "" {
		return nil, eris.New("gsheets: credentials missing client_email or private_key")
	}
	if c.TokenURI == "" {
		c.TokenURI = defaultTokenURI
	}
	return &c, nil
}

// LoadCredentialsFile reads and parses a service-account key file.
func LoadCredentialsFile(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "gsheets: read credentials file %s", path)
	}
	return ParseCredentials(string(data))
}

// TokenSource yields OAuth2 access tokens.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

// jwtSource exchanges a signed JWT assertion for an access token. Tokens are
// cached and renewed by the oauth2 reuse source.
type jwtSource struct {
	src oauth2.TokenSource
}

// NewJWTSource creates a TokenSource for a service account. hc is used for
// the token exchange; nil selects a client with a 30s timeout.
func NewJWTSource(creds *Credentials, hc *http.Client) (TokenSource, error) {
	if _, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(creds.PrivateKey)); err != nil {
		return nil, eris.Wrap(err, "gsheets: parse private key")
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}

	conf := &oauthjwt.Config{
		Email:        creds.ClientEmail,
		PrivateKey:   []byte(creds.PrivateKey),
		PrivateKeyID: creds.PrivateKeyID,
		Scopes:       []string{ScopeSpreadsheets},
		TokenURL:     creds.TokenURI,
		Expires:      tokenLifetime,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, hc)
	return &jwtSource{src: conf.TokenSource(ctx)}, nil
}

func (s *jwtSource) Token(context.Context) (string, error) {
	tok, err := s.src.Token()
	if err != nil {
		return "", eris.Wrap(err, "gsheets: token exchange")
	}
	if tok.AccessToken == "" {
		return "", eris.New("gsheets: token response has no access_token")
	}
	return tok.AccessToken, nil
}
