package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/slack"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"
	"inbox_server/pkg/httputil"
)

// SlackConfig holds the Slack OAuth client settings.
type SlackConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// NewSlackBroker builds the credential broker for Slack. Slack tokens
// carry no expiry on non-rotating apps, so a fixed lifetime applies and
// expiry without a refresh token lands in refresh_required.
func NewSlackBroker(cfg SlackConfig, creds out.CredentialRepository, conns out.ConnectionRepository, states out.OAuthStateStore) *Broker {
	var oauthCfg *oauth2.Config
	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		oauthCfg = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				"channels:read",
				"channels:history",
				"users:read",
				"team:read",
			},
			Endpoint: slack.Endpoint,
		}
	}

	return &Broker{
		provider: domain.ProviderSlack,
		cfg:      oauthCfg,
		lifetime: SlackTokenLifetime,
		identity: slackIdentity,
		creds:    creds,
		conns:    conns,
		states:   states,
	}
}

// slackIdentity resolves workspace metadata via auth.test.
func slackIdentity(ctx context.Context, _ *oauth2.Config, token *oauth2.Token) (string, map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://slack.com/api/auth.test", nil)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := httputil.SlackClient().Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	var result struct {
		OK     bool   `json:"ok"`
		Error  string `json:"error"`
		User   string `json:"user"`
		UserID string `json:"user_id"`
		Team   string `json:"team"`
		TeamID string `json:"team_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", nil, err
	}
	if !result.OK {
		return "", nil, fmt.Errorf("auth.test failed: %s", result.Error)
	}

	metadata := map[string]string{
		"team_id":   result.TeamID,
		"team_name": result.Team,
		"user_id":   result.UserID,
	}
	return result.User, metadata, nil
}
