package auth

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"
)

// GmailConfig holds the Google OAuth client settings.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// NewGmailBroker builds the credential broker for Gmail. Offline access
// and forced consent guarantee a refresh token on every connect.
func NewGmailBroker(cfg GmailConfig, creds out.CredentialRepository, conns out.ConnectionRepository, states out.OAuthStateStore) *Broker {
	var oauthCfg *oauth2.Config
	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		oauthCfg = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/gmail.readonly",
				"https://www.googleapis.com/auth/gmail.send",
				"https://www.googleapis.com/auth/gmail.modify",
				"https://www.googleapis.com/auth/userinfo.email",
			},
			Endpoint: google.Endpoint,
		}
	}

	return &Broker{
		provider: domain.ProviderGmail,
		cfg:      oauthCfg,
		lifetime: DefaultTokenLifetime,
		authOpts: []oauth2.AuthCodeOption{oauth2.AccessTypeOffline, oauth2.ApprovalForce},
		identity: googleIdentity,
		creds:    creds,
		conns:    conns,
		states:   states,
	}
}

// googleIdentity resolves the account email from the userinfo endpoint.
func googleIdentity(ctx context.Context, cfg *oauth2.Config, token *oauth2.Token) (string, map[string]string, error) {
	client := cfg.Client(ctx, token)
	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var userInfo struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return "", nil, err
	}
	return userInfo.Email, nil, nil
}
