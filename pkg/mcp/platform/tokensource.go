package platform

import (
	"context"

	"github.com/deechat/mcp-core/pkg/mcp/mcperrors"
)

// NoopTokenSource is the default TokenSource: it never has a token to offer.
// An embedding application that supports oauth2-typed servers supplies its
// own TokenSource per spec.md §9(b); until then, oauth2 auth fails loudly
// instead of silently connecting without credentials.
type NoopTokenSource struct{}

func (NoopTokenSource) Token(context.Context, string) (string, error) {
	return "", mcperrors.ErrAuthNotConfigured
}
