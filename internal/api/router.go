package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/duochat/internal/middleware"
)

// Routes is everything the HTTP surface is built from.
type Routes struct {
	Validator middleware.TokenValidator
	Auth      *AuthHandler
	Users     *UserHandler
	Messages  *MessageHandler
	Uploads   *UploadHandler
	UploadDir string
	WebSocket gin.HandlerFunc
	// Health reports backend readiness. nil means always healthy.
	Health func(c *gin.Context) error
}

func NewRouter(r Routes) *gin.Engine {
	srv := gin.New()
	srv.Use(gin.Logger(), gin.Recovery())

	srv.GET("/health", func(c *gin.Context) {
		if r.Health != nil {
			if err := r.Health(c); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// The websocket authenticates in-band with its first frame, so it
	// sits outside the bearer middleware.
	srv.GET("/ws", r.WebSocket)
	srv.POST("/api/login", r.Auth.Login)
	srv.Static("/uploads", r.UploadDir)

	v := srv.Group("/api")
	v.Use(middleware.AuthMiddleware(r.Validator))

	v.POST("/logout", r.Auth.Logout)
	v.GET("/user", r.Auth.Me)
	v.GET("/users/online", r.Users.Online)

	v.GET("/messages/group", r.Messages.ListGroup)
	v.POST("/messages/group", r.Messages.SendGroup)
	v.PUT("/messages/group/:id", r.Messages.EditGroup)
	v.GET("/messages/direct/:otherUser", r.Messages.ListDirect)
	v.POST("/messages/direct", r.Messages.SendDirect)
	v.PUT("/messages/direct/:id", r.Messages.EditDirect)

	v.POST("/upload", r.Uploads.Upload)

	return srv
}
