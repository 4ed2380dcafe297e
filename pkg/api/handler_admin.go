package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// createUserHandler handles POST /admin/users: user CRUD + token issuance,
// per base spec §6's admin plane. The returned API key is shown exactly
// once, here.
func (s *Server) createUserHandler(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	user, apiKey, err := s.registry.CreateUser(c.Request.Context(), req.DisplayName, req.Email, req.MaxConcurrentBots)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreateUserResponse{User: user, APIKey: apiKey})
}

// listUsersHandler handles GET /admin/users.
func (s *Server) listUsersHandler(c *gin.Context) {
	users, err := s.registry.ListUsers(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// updateUserConcurrencyHandler handles PATCH /admin/users/:id/concurrency.
func (s *Server) updateUserConcurrencyHandler(c *gin.Context) {
	var req UpdateUserConcurrencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if err := s.registry.UpdateUserConcurrency(c.Request.Context(), c.Param("id"), req.MaxConcurrentBots); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
}

// updateUserWebhookHandler handles PUT /admin/users/:id/webhook.
func (s *Server) updateUserWebhookHandler(c *gin.Context) {
	var req UpdateUserWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if err := s.registry.UpdateUserWebhook(c.Request.Context(), c.Param("id"), req.WebhookURL, req.WebhookSecret); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
}
