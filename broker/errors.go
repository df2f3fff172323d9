package broker

import "errors"

var (
	// ErrMissingParameter is returned when a required request value is empty
	ErrMissingParameter = errors.New("missing required parameter")

	// ErrRefreshInvalid is returned for any refresh credential that fails verification
	ErrRefreshInvalid = errors.New("could not validate refresh token")

	// ErrUserNotFound is returned when a token or state names no identity record
	ErrUserNotFound = errors.New("user not found")

	// ErrUnauthenticated is returned by the gate for a missing or unusable bearer token
	ErrUnauthenticated = errors.New("could not validate credentials")

	// ErrNoTenants is returned when the provider reports no connected tenants
	ErrNoTenants = errors.New("no tenants connected")
)
