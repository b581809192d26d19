package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/praptisiva25/WorkBud/auth"
	"github.com/praptisiva25/WorkBud/models"
	"github.com/praptisiva25/WorkBud/services"
)

type syncProfileRequest struct {
	Email       *string `json:"email"`
	DisplayName *string `json:"displayName"`
	ImageURL    *string `json:"imageUrl"`
}

func SetupUserRoutes(r gin.IRouter, users *services.UserDirectory, log *zap.Logger) {
	// Mirror the caller's identity provider profile
	r.POST("/me/sync", func(c *gin.Context) {
		var req syncProfileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		err := users.Sync(c.Request.Context(), models.User{
			ID:          auth.UserID(c),
			Email:       req.Email,
			DisplayName: req.DisplayName,
			ImageURL:    req.ImageURL,
		})
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.GET("/users/search", func(c *gin.Context) {
		limit, ok := queryLimit(c)
		if !ok {
			return
		}
		found, err := users.Search(c.Request.Context(), c.Query("query"), limit)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"users": found})
	})
}
