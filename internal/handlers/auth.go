package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TrueFaces/CNN-FineTuning/internal/usecase"
)

type registerRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
	Email    string `json:"email" form:"email" binding:"required,email"`
	FullName string `json:"full_name" form:"full_name"`
	Password string `json:"password" form:"password" binding:"required"`
}

// loginRequest accepts the OAuth2 password form as well as JSON.
type loginRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (h *handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username, valid email and password are required"})
		return
	}

	user, err := h.svc.Users.Register(c.Request.Context(), usecase.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
	})
	if err != nil {
		h.respondError(c, "handlers.register", err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

func (h *handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	user, err := h.svc.Users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidCredentials) {
			c.Header("WWW-Authenticate", "Bearer")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		h.respondError(c, "handlers.login", err)
		return
	}

	token, expiresAt, err := h.svc.Tokens.Issue(strconv.FormatUint(uint64(user.ID), 10))
	if err != nil {
		h.respondError(c, "handlers.login", err)
		return
	}

	c.JSON(http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer", ExpiresAt: expiresAt})
}
