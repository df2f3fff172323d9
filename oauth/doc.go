// Package oauth is the client side of the Xero OAuth2 authorization-code
// flow.
//
// XeroProvider builds consent URLs and runs the two token grants.
// TokenManager sits on top of an identity.Store and hands out a usable
// provider access token for a record, refreshing it once when it has expired.
// ResourceClient calls the connections and invoices APIs with that token.
//
// Failed provider calls are *Error values. errors.Is matches the operation
// (ErrExchangeFailed, ErrRefreshFailed, ErrUpstreamRequest) and, when the
// provider sent an OAuth error code, its class (ErrInvalidGrant and friends):
//
//	token, err := manager.AccessToken(ctx, id)
//	if errors.Is(err, oauth.ErrRefreshFailed) {
//	    status := oauth.StatusCode(err) // upstream HTTP status
//	}
package oauth
