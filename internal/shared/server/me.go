package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"resume-revamp/internal/shared/server/middleware"
	"resume-revamp/internal/shared/server/respond"
)

// registerMeRoutes attaches the /me endpoint.
func registerMeRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", meHandler)
}

func meHandler(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
		return
	}

	response := gin.H{
		"user_id":       userID,
		"identity_kind": middleware.IdentityKindFromContext(c),
	}
	if email := middleware.UserEmailFromContext(c); email != "" {
		response["email"] = email
	}

	respond.JSON(c, http.StatusOK, response)
}
