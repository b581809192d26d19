package routes

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/praptisiva25/WorkBud/auth"
	"github.com/praptisiva25/WorkBud/models"
	"github.com/praptisiva25/WorkBud/services"
)

type ensureThreadRequest struct {
	OtherUserID string `json:"otherUserId"`
}

type createGroupRequest struct {
	Title     string   `json:"title"`
	MemberIDs []string `json:"memberIds"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type attachmentRequest struct {
	Kind models.MessageKind `json:"kind"`
	URL  string             `json:"url"`
	Name *string            `json:"name"`
	Size *int64             `json:"size"`
	Meta json.RawMessage    `json:"meta"`
}

func SetupChatRoutes(r gin.IRouter, threads *services.ThreadDirectory, messages *services.MessageLog, log *zap.Logger) {
	// Find or create the direct thread with another user
	r.POST("/threads/ensure", func(c *gin.Context) {
		var req ensureThreadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		threadID, err := threads.ResolveDirectThread(c.Request.Context(), auth.UserID(c), req.OtherUserID)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"threadId": threadID})
	})

	r.POST("/threads", func(c *gin.Context) {
		var req createGroupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		thread, err := threads.CreateGroupThread(c.Request.Context(), auth.UserID(c), req.Title, req.MemberIDs)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, thread)
	})

	r.GET("/threads", func(c *gin.Context) {
		limit, ok := queryLimit(c)
		if !ok {
			return
		}
		list, err := threads.ListMemberships(c.Request.Context(), auth.UserID(c), limit)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"threads": list})
	})

	r.GET("/threads/:threadId", func(c *gin.Context) {
		thread, err := threads.GetThread(c.Request.Context(), c.Param("threadId"), auth.UserID(c))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, thread)
	})

	r.POST("/threads/:threadId/archive", func(c *gin.Context) {
		if err := threads.ArchiveThread(c.Request.Context(), c.Param("threadId"), auth.UserID(c)); err != nil {
			writeError(c, log, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	// History, oldest first
	r.GET("/threads/:threadId/messages", func(c *gin.Context) {
		limit, ok := queryLimit(c)
		if !ok {
			return
		}
		history, err := messages.History(c.Request.Context(), c.Param("threadId"), auth.UserID(c), limit)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": history})
	})

	r.POST("/threads/:threadId/messages", func(c *gin.Context) {
		var req sendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		msg, err := messages.Append(c.Request.Context(), c.Param("threadId"), auth.UserID(c), req.Content)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, msg)
	})

	r.POST("/threads/:threadId/attachments", func(c *gin.Context) {
		var req attachmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		msg, err := messages.AppendAttachment(c.Request.Context(), c.Param("threadId"), auth.UserID(c), req.Kind,
			models.Attachment{URL: req.URL, Name: req.Name, Size: req.Size, Meta: req.Meta})
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, msg)
	})
}
