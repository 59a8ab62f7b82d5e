package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"lotkeeper/internal/config"
	apperrors "lotkeeper/internal/errors"
	"lotkeeper/internal/middleware"
)

// AuthHandler issues bearer tokens for the single-owner deployment.
type AuthHandler struct{}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// TokenRequest represents the request payload for issuing a token.
type TokenRequest struct {
	AccessKey string `json:"access_key" binding:"required"`
}

// IssueToken exchanges the configured access key for a JWT.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.AccessKey), []byte(config.Get().AccessKey)) != 1 {
		respondWithError(c, apperrors.ErrInvalidAccessKey)
		return
	}

	token, err := middleware.GenerateToken()
	if err != nil {
		respondWithError(c, apperrors.Wrap(apperrors.ErrInternalServer, err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}
