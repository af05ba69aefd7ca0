package tool

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/hupe1980/teammesh/core"
)

// OAuthProvider describes an authorization-code endpoint a user can be sent to.
type OAuthProvider struct {
	Name        string   `toml:"name" yaml:"name"`
	AuthURL     string   `toml:"auth_url" yaml:"auth_url"`
	ClientID    string   `toml:"client_id" yaml:"client_id"`
	RedirectURL string   `toml:"redirect_url" yaml:"redirect_url"`
	Scopes      []string `toml:"scopes" yaml:"scopes"`
}

// AuthorizationURL builds the consent URL carrying state.
func (p OAuthProvider) AuthorizationURL(state string) (string, error) {
	u, err := url.Parse(p.AuthURL)
	if err != nil {
		return "", fmt.Errorf("oauth provider %q: %w", p.Name, err)
	}

	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", p.ClientID)
	if p.RedirectURL != "" {
		q.Set("redirect_uri", p.RedirectURL)
	}
	if len(p.Scopes) > 0 {
		q.Set("scope", strings.Join(p.Scopes, " "))
	}
	q.Set("state", state)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// NewOAuthTool returns the request_authorization tool. Calling it records the
// consent URL on the conversation so the router answers with AUTH_URL.
func NewOAuthTool(providers map[string]OAuthProvider) Tool {
	const name = "request_authorization"

	names := make([]string, 0, len(providers))
	for n := range providers {
		names = append(names, n)
	}
	sort.Strings(names)

	provider := prop("string", "Provider to authorize")
	if len(names) > 0 {
		provider["enum"] = names
	}

	return NewFunctionTool(
		name,
		"Ask the user to connect an external account. Use when a task needs access you do not have yet.",
		objectSchema(map[string]any{"provider": provider}, "provider"),
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			p, ok := providers[stringArg(args, "provider")]
			if !ok {
				return nil, NewToolError(name, "unknown or unconfigured provider", CodeNotConfigured)
			}

			link, err := p.AuthorizationURL(tc.UserID() + ":" + core.NewID())
			if err != nil {
				return nil, err
			}

			tc.RequestAuth(link)

			return fmt.Sprintf("Authorization link for %s sent to the user. Wait for them to complete it.", p.Name), nil
		},
	)
}
