package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	googleoauth "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

var ErrUnverifiedEmail = errors.New("auth: google account email is not verified")

// Identity is what the identity provider vouches for.
type Identity struct {
	Email string
	Name  string
}

// GoogleConfig configures the sign-in flow.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint overrides google.Endpoint.
	Endpoint *oauth2.Endpoint
}

// GoogleProvider runs the OAuth2 authorization-code flow against Google.
type GoogleProvider struct {
	oauth    *oauth2.Config
	userOpts []option.ClientOption
}

// NewGoogleProvider builds a provider. opts are passed to the userinfo client.
func NewGoogleProvider(cfg GoogleConfig, opts ...option.ClientOption) (*GoogleProvider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("auth: google client id and secret are required")
	}
	endpoint := google.Endpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	return &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{googleoauth.UserinfoEmailScope, googleoauth.UserinfoProfileScope},
		},
		userOpts: opts,
	}, nil
}

// AuthCodeURL is the consent-screen URL for state.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Identify exchanges code and reads the signed-in account's email and name.
func (p *GoogleProvider) Identify(ctx context.Context, code string) (Identity, error) {
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: code exchange: %w", err)
	}

	opts := append([]option.ClientOption{option.WithTokenSource(p.oauth.TokenSource(ctx, tok))}, p.userOpts...)
	svc, err := googleoauth.NewService(ctx, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: userinfo client: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return Identity{}, fmt.Errorf("auth: userinfo: %w", err)
	}
	if info.Email == "" || info.VerifiedEmail == nil || !*info.VerifiedEmail {
		return Identity{}, ErrUnverifiedEmail
	}
	return Identity{Email: strings.ToLower(info.Email), Name: info.Name}, nil
}
