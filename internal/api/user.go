package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/duochat/internal/models"
	"github.com/lalith-99/duochat/internal/repository"
	"go.uber.org/zap"
)

// OnlineLister names the users with at least one live connection.
// *realtime.Registry implements it.
type OnlineLister interface {
	Online() []string
}

type UserHandler struct {
	users  repository.UserRepository
	online OnlineLister
	logger *zap.Logger
}

func NewUserHandler(users repository.UserRepository, online OnlineLister, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, online: online, logger: logger.Named("api")}
}

// Online handles GET /api/users/online
//
// The list comes from the live registry, not the durable is_online column,
// so it never shows someone whose last socket already closed.
func (h *UserHandler) Online(c *gin.Context) {
	names := h.online.Online()
	users := make([]models.User, 0, len(names))
	for _, name := range names {
		user, err := h.users.GetByUsername(c.Request.Context(), name)
		if err != nil {
			h.logger.Error("failed to get user", zap.String("username", name), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list online users"})
			return
		}
		if user == nil {
			continue
		}
		user.IsOnline = true
		users = append(users, *user)
	}
	c.JSON(http.StatusOK, users)
}
