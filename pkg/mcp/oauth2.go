package mcp

import "golang.org/x/oauth2"

// ToOAuth2 builds a real oauth2.Config from c, so a future token-acquisition
// implementation (spec.md §9(b)'s documented TODO boundary — this runtime
// expects a ready bearer, it does not perform the exchange itself) is a
// matter of calling (*oauth2.Config).Exchange/.TokenSource against this
// value, not redesigning OAuth2Config's field shape.
func (c *OAuth2Config) ToOAuth2() *oauth2.Config {
	if c == nil {
		return nil
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.AuthURL,
			TokenURL: c.TokenURL,
		},
		RedirectURL: c.RedirectURI,
		Scopes:      c.Scope,
	}
}
