package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/duochat/internal/auth"
	"github.com/lalith-99/duochat/internal/middleware"
	"github.com/lalith-99/duochat/internal/models"
	"github.com/lalith-99/duochat/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const maxUsernameLen = 32

// Disconnector closes every live connection of a user. *realtime.Tracker
// implements it.
type Disconnector interface {
	Disconnect(username string) int
	IsOnline(username string) bool
}

// AuthHandler handles login, logout and "who am I". Login is the only
// public endpoint; it is what hands out the bearer token.
type AuthHandler struct {
	users     repository.UserRepository
	validator *auth.Validator
	presence  Disconnector
	logger    *zap.Logger
}

func NewAuthHandler(users repository.UserRepository, validator *auth.Validator, presence Disconnector, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		users:     users,
		validator: validator,
		presence:  presence,
		logger:    logger.Named("api"),
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Login handles POST /api/login
//
// The allowlist decides whether the pair is accepted. A user row is
// created on first login with a bcrypt hash of the password used; later
// logins must match that hash as well.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || len(username) > maxUsernameLen || strings.ContainsAny(username, ": \t\n") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username must be 1-32 characters without spaces or colons"})
		return
	}

	isAdmin, ok := h.validator.Allowlist().Permits(username, req.Password)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.GetByUsername(ctx, username)
	if err != nil {
		h.logger.Error("failed to find user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	if user == nil {
		user, err = h.createUser(ctx, username, req.Password, isAdmin)
		if err != nil {
			h.logger.Error("failed to create user", zap.String("username", username), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
			return
		}
		h.logger.Info("user created", zap.String("username", username), zap.Bool("admin", isAdmin))
	} else if user.PasswordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
	}

	token, err := h.validator.Issue(auth.Identity{Username: user.Username, IsAdmin: user.IsAdmin}, req.Password)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	user.IsOnline = h.presence.IsOnline(user.Username)
	c.JSON(http.StatusOK, authResponse{Token: token, User: user})
}

// createUser inserts the user, or returns the row a concurrent first login
// inserted a moment earlier.
func (h *AuthHandler) createUser(ctx context.Context, username, password string, isAdmin bool) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user, createErr := h.users.Create(ctx, username, string(hash), isAdmin)
	if createErr == nil {
		return user, nil
	}
	existing, err := h.users.GetByUsername(ctx, username)
	if err != nil || existing == nil {
		return nil, createErr
	}
	return existing, nil
}

// Logout handles POST /api/logout
//
// The token is revoked when it can be, and every websocket the user has
// open is closed. Presence goes offline through the normal disconnect
// path once the last one is gone.
func (h *AuthHandler) Logout(c *gin.Context) {
	username := middleware.GetUsername(c)

	if err := h.validator.Revoke(c.Request.Context(), middleware.GetToken(c)); err != nil {
		h.logger.Warn("failed to revoke token", zap.String("username", username), zap.Error(err))
	}
	closed := h.presence.Disconnect(username)

	h.logger.Info("logged out", zap.String("username", username), zap.Int("connections_closed", closed))
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// Me handles GET /api/user
func (h *AuthHandler) Me(c *gin.Context) {
	username := middleware.GetUsername(c)

	user, err := h.users.GetByUsername(c.Request.Context(), username)
	if err != nil {
		h.logger.Error("failed to get user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get user"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	user.IsOnline = h.presence.IsOnline(username)
	c.JSON(http.StatusOK, user)
}
