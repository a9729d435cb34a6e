// Package oauth holds the OAuth 2.1 protocol pieces that do not depend on how
// credentials are stored or how the user is prompted: authorization server
// metadata discovery (RFC 8414, with OpenID Connect fallback), protected
// resource metadata (RFC 9728), dynamic client registration (RFC 7591), PKCE
// (RFC 7636) and WWW-Authenticate challenge parsing.
//
// The interactive flow built on top of it lives in internal/oauth.
//
//	c := oauth.NewClient(oauth.WithHTTPClient(httpClient))
//	md, err := c.DiscoverMetadata(ctx, issuer)
//	info, err := c.RegisterClient(ctx, md.RegistrationEndpoint, oauth.ClientMetadata{...})
package oauth
