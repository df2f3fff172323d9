package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sulavpanthi/xero-oauth/broker"
	"github.com/sulavpanthi/xero-oauth/oauth"
)

// errorResponse maps err to an HTTP status and detail message. Provider
// failures keep the upstream status when it is an error status.
func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, broker.ErrMissingParameter):
		return http.StatusBadRequest, "Missing required parameter"
	case errors.Is(err, broker.ErrRefreshInvalid):
		return http.StatusBadRequest, "Could not validate refresh token"
	case errors.Is(err, broker.ErrUserNotFound):
		return http.StatusBadRequest, "User not found"
	case errors.Is(err, broker.ErrNoTenants):
		return http.StatusNotFound, "No tenants connected"
	case errors.Is(err, oauth.ErrNotAuthorized):
		return http.StatusForbidden, "Provider authorization incomplete"
	case errors.Is(err, oauth.ErrExchangeFailed):
		return upstreamStatus(err), "Token exchange failed"
	case errors.Is(err, oauth.ErrRefreshFailed):
		return upstreamStatus(err), "Token refresh failed"
	case errors.Is(err, oauth.ErrUpstreamRequest):
		return upstreamStatus(err), "Upstream request failed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Request timed out"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// upstreamStatus is the provider's status when it answered with an error,
// 504 when the call ran out of time and 502 otherwise.
func upstreamStatus(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if status := oauth.StatusCode(err); status >= 400 {
		return status
	}
	return http.StatusBadGateway
}

// writeError aborts the request with the mapped status and a {"detail": ...}
// body. Server-side failures are logged with the full error.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	status, detail := errorResponse(err)
	_ = c.Error(err)

	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}
