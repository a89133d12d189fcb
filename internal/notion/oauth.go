package notion

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// Grant is the result of a successful authorization-code exchange.
type Grant struct {
	AccessToken   string
	WorkspaceID   string
	WorkspaceName string
	BotID         string
}

// OAuth drives the public-integration authorization flow.
type OAuth struct {
	config *oauth2.Config
}

// NewOAuth builds the flow config. Notion expects client credentials as HTTP basic auth.
func NewOAuth(baseURL, clientID, clientSecret, redirectURL string) (*OAuth, error) {
	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil, fmt.Errorf("notion oauth requires client id, client secret and redirect uri")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &OAuth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   baseURL + "/v1/oauth/authorize",
				TokenURL:  baseURL + "/v1/oauth/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
	}, nil
}

// AuthCodeURL returns the URL the user visits to grant access.
func (o *OAuth) AuthCodeURL(state string) string {
	return o.config.AuthCodeURL(state, oauth2.SetAuthURLParam("owner", "user"))
}

// Exchange trades an authorization code for an access token.
func (o *OAuth) Exchange(ctx context.Context, code string) (*Grant, error) {
	token, err := o.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return &Grant{
		AccessToken:   token.AccessToken,
		WorkspaceID:   extraString(token, "workspace_id"),
		WorkspaceName: extraString(token, "workspace_name"),
		BotID:         extraString(token, "bot_id"),
	}, nil
}

func extraString(token *oauth2.Token, key string) string {
	if v, ok := token.Extra(key).(string); ok {
		return v
	}
	return ""
}
