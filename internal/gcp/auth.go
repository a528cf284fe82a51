package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Lllllllleong/invoiceflow/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/gmail/v1"
)

// DefaultTokenPath is where the setup script stores the user's OAuth token.
const DefaultTokenPath = "tokens/google_token.json"

// persistedToken accepts both the Go oauth2 layout ("expiry") and the
// googleapis layout ("expiry_date", milliseconds since the epoch).
type persistedToken struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
	ExpiryDate   int64     `json:"expiry_date"`
}

// TokenFileProvider loads a pre-provisioned OAuth token from disk and turns it
// into a token source for the Gmail and Drive clients.
type TokenFileProvider struct {
	path   string
	config *oauth2.Config
}

// NewTokenFileProvider builds a provider for the token at path. An empty path
// falls back to DefaultTokenPath.
func NewTokenFileProvider(path, clientID, clientSecret string) *TokenFileProvider {
	if path == "" {
		path = DefaultTokenPath
	}
	return &TokenFileProvider{
		path: path,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  "http://localhost",
			Scopes: []string{
				gmail.GmailModifyScope,
				drive.DriveFileScope,
			},
			Endpoint: google.Endpoint,
		},
	}
}

// Credential reads and parses the token file. A missing or malformed file is
// reported as models.ErrCredentialMissing.
func (p *TokenFileProvider) Credential(ctx context.Context) (*oauth2.Token, error) {
	b, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", models.ErrCredentialMissing, p.path, err)
	}
	var pt persistedToken
	if err := json.Unmarshal(b, &pt); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", models.ErrCredentialMissing, p.path, err)
	}
	if pt.AccessToken == "" && pt.RefreshToken == "" {
		return nil, fmt.Errorf("%w: %s holds no token", models.ErrCredentialMissing, p.path)
	}
	tok := &oauth2.Token{
		AccessToken:  pt.AccessToken,
		TokenType:    pt.TokenType,
		RefreshToken: pt.RefreshToken,
		Expiry:       pt.Expiry,
	}
	if tok.Expiry.IsZero() && pt.ExpiryDate > 0 {
		tok.Expiry = time.UnixMilli(pt.ExpiryDate)
	}
	return tok, nil
}

// TokenSource returns a source that reads the token file on first use, so
// building API clients never fails on a missing credential.
func (p *TokenFileProvider) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &lazyTokenSource{ctx: ctx, provider: p}
}

type lazyTokenSource struct {
	ctx      context.Context
	provider *TokenFileProvider

	mu  sync.Mutex
	src oauth2.TokenSource
}

func (l *lazyTokenSource) Token() (*oauth2.Token, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.src == nil {
		tok, err := l.provider.Credential(l.ctx)
		if err != nil {
			return nil, err
		}
		l.src = l.provider.config.TokenSource(l.ctx, tok)
	}
	return l.src.Token()
}
