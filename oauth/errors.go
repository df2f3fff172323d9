package oauth

import (
	"errors"
	"fmt"
)

// Package-level errors
var (
	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrExchangeFailed indicates the provider rejected the authorization code exchange
	ErrExchangeFailed = errors.New("token exchange failed")

	// ErrRefreshFailed indicates the provider rejected the refresh grant
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrUpstreamRequest indicates a provider API call returned an error status
	ErrUpstreamRequest = errors.New("upstream request failed")

	// ErrNotAuthorized indicates the identity record has no provider tokens yet
	ErrNotAuthorized = errors.New("provider authorization incomplete")

	// ErrNetworkError indicates the provider could not be reached
	ErrNetworkError = errors.New("network error")

	// ErrInvalidResponse indicates a response body that could not be decoded
	ErrInvalidResponse = errors.New("invalid response from provider")

	// ErrInvalidGrant indicates the code or refresh token is invalid, expired or revoked
	ErrInvalidGrant = errors.New("invalid grant")

	// ErrAccessDenied indicates user denied access
	ErrAccessDenied = errors.New("access denied by user")

	// ErrServerError indicates provider server error
	ErrServerError = errors.New("provider server error")

	// ErrTemporarilyUnavailable indicates service temporarily unavailable
	ErrTemporarilyUnavailable = errors.New("service temporarily unavailable")
)

// Error is a failed provider call. Err is the operation sentinel
// (ErrExchangeFailed, ErrRefreshFailed, ErrUpstreamRequest) and Cause, when
// the provider sent an OAuth error code, its mapped sentinel. errors.Is
// matches either.
type Error struct {
	Op          string // "exchange", "refresh", "connections", "invoices"
	Provider    string
	StatusCode  int    // upstream HTTP status, 0 when the request never completed
	Code        string // OAuth error code (e.g., "invalid_grant")
	Description string
	Err         error
	Cause       error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("oauth %s [%s]", e.Op, e.Provider)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Code != "" {
		msg += ": " + e.Code
		if e.Description != "" {
			msg += " (" + e.Description + ")"
		}
	}
	if e.Cause != nil && e.Code == "" {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the operation sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	var errs []error
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// ParseError builds an Error from a provider error response body.
func ParseError(provider, op string, status int, code, description string, sentinel error) *Error {
	oauthErr := &Error{
		Op:          op,
		Provider:    provider,
		StatusCode:  status,
		Code:        code,
		Description: description,
		Err:         sentinel,
	}

	// Map OAuth error codes to standard errors
	switch code {
	case "access_denied":
		oauthErr.Cause = ErrAccessDenied
	case "invalid_request", "invalid_grant":
		oauthErr.Cause = ErrInvalidGrant
	case "server_error":
		oauthErr.Cause = ErrServerError
	case "temporarily_unavailable":
		oauthErr.Cause = ErrTemporarilyUnavailable
	}

	return oauthErr
}

// StatusCode returns the upstream HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var oauthErr *Error
	if errors.As(err, &oauthErr) {
		return oauthErr.StatusCode
	}
	return 0
}
