package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/esante/rdv-service/internal/model"
)

// Context keys populated by the authentication middleware.
const (
	ContextUserID = "userID"
	ContextRole   = "userRole"
)

// CallerID returns the authenticated user's ID from the request context.
func CallerID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// CallerRole returns the authenticated user's role from the request context.
func CallerRole(c *gin.Context) model.Actor {
	v, ok := c.Get(ContextRole)
	if !ok {
		return ""
	}
	role, _ := v.(model.Actor)
	return role
}
