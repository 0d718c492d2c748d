package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"persistkit/internal/core/apperror"
	appctx "persistkit/internal/core/context"
	"persistkit/internal/domain/auth"
)

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	GenerateAccessToken(user appctx.UserContext) (string, time.Time, error)
}

// AuthHandler issues development tokens. It is only routed when enabled.
type AuthHandler struct {
	*BaseHandler
	issuer TokenIssuer
}

func NewAuthHandler(base *BaseHandler, issuer TokenIssuer) *AuthHandler {
	return &AuthHandler{BaseHandler: base, issuer: issuer}
}

type TokenRequest struct {
	UserID   string   `json:"userId" binding:"required"`
	TenantID string   `json:"tenantId" binding:"required"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

type TokenResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Token handles POST /auth/token.
func (h *AuthHandler) Token(c *gin.Context) {
	var req TokenRequest
	if !h.BindJSON(c, &req) {
		return
	}
	token, expiresAt, err := h.issuer.GenerateAccessToken(appctx.UserContext{
		UserID:   req.UserID,
		TenantID: req.TenantID,
		Email:    req.Email,
		Roles:    req.Roles,
	})
	if err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}
	h.OK(c, TokenResponse{AccessToken: token, TokenType: "Bearer", ExpiresAt: expiresAt})
}

var _ TokenIssuer = (*auth.JWTService)(nil)
