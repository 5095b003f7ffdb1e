package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// clientSecrets holds the OAuth client credentials used to refresh tokens.
type clientSecrets struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	AuthURL      string `json:"auth_url"`
	TokenURL     string `json:"token_url"`
}

// loadTokenSource builds the token source for a source's remote credentials.
// Tokens are provisioned out of band and stored as JSON under the tokens
// directory; when client secrets are configured, expired tokens refresh
// automatically.
func loadTokenSource(ctx context.Context, source string) (oauth2.TokenSource, error) {
	path := filepath.Join(cfg.TokensDir(), source+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("no token for %s (expected %s): %w", source, path, err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token for %s: %w", source, err)
	}

	if cfg.Remote.ClientSecrets == "" {
		return oauth2.StaticTokenSource(&tok), nil
	}

	secrets, err := loadClientSecrets(cfg.Remote.ClientSecrets)
	if err != nil {
		return nil, err
	}

	conf := &oauth2.Config{
		ClientID:     secrets.ClientID,
		ClientSecret: secrets.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  secrets.AuthURL,
			TokenURL: secrets.TokenURL,
		},
	}
	return conf.TokenSource(ctx, &tok), nil
}

func loadClientSecrets(path string) (*clientSecrets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read client secrets: %w", err)
	}
	var secrets clientSecrets
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parse client secrets %s: %w", path, err)
	}
	if secrets.ClientID == "" || secrets.TokenURL == "" {
		return nil, fmt.Errorf("client secrets %s missing client_id or token_url", path)
	}
	return &secrets, nil
}
