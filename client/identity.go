package client

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-telemed-client/credentials"
)

const (
	IdentityEndpoint = "/auth/me"
	// SourceIdentityCheck labels expiries found by the identity check.
	SourceIdentityCheck = "identity-check"
)

// CheckIdentity asks the backend who the current token belongs to. It is
// never cached and its 401 always ends the session.
func (c *Client) CheckIdentity(ctx context.Context) (credentials.Identity, error) {
	var identity credentials.Identity
	err := c.RequestInto(ctx, IdentityEndpoint, RequestOptions{
		Method:  http.MethodGet,
		Refresh: true,
		Source:  SourceIdentityCheck,
	}, &identity)
	return identity, err
}
