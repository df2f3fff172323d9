package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sulavpanthi/xero-oauth/broker"
	"github.com/sulavpanthi/xero-oauth/oauth"
)

type handlers struct {
	flow    *broker.Flow
	metrics oauth.MetricsCollector
	log     *zap.Logger
}

type invoicesRequest struct {
	TenantID string `json:"tenant_id"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// login starts the authorization flow
func (h *handlers) login(c *gin.Context) {
	redirectURL, _, err := h.flow.Initiate(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Redirect(http.StatusFound, redirectURL)
}

// callback completes the flow and returns first-party tokens
func (h *handlers) callback(c *gin.Context) {
	tokens, err := h.flow.Callback(c.Request.Context(), c.Query("code"), c.Query("state"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":       "Authorization successful",
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
	})
}

func (h *handlers) checkTenants(c *gin.Context) {
	tenantID, err := h.flow.Tenant(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant_id": tenantID})
}

// invoices forwards the upstream status and body unchanged
func (h *handlers) invoices(c *gin.Context) {
	var req invoicesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "Invalid request body"})
		return
	}

	raw, err := h.flow.Invoices(c.Request.Context(), c.GetString(userIDKey), req.TenantID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	contentType := raw.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(raw.StatusCode, contentType, raw.Body)
}

func (h *handlers) me(c *gin.Context) {
	profile, err := h.flow.Me(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// refresh issues a new access token from a first-party refresh token
func (h *handlers) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "Invalid request body"})
		return
	}

	accessToken, err := h.flow.RefreshSession(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": accessToken})
}

func (h *handlers) metricsSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.GetMetrics())
}
