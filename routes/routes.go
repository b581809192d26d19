package routes

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/praptisiva25/WorkBud/apperror"
	"github.com/praptisiva25/WorkBud/auth"
	"github.com/praptisiva25/WorkBud/db"
	"github.com/praptisiva25/WorkBud/services"
)

// Services bundles what the HTTP layer calls into.
type Services struct {
	Store    db.Store
	Threads  *services.ThreadDirectory
	Messages *services.MessageLog
	Users    *services.UserDirectory
	Gateway  *services.Gateway
}

// Setup registers every route on r. Everything under /api/v1 requires an
// authenticated identity; /ws authenticates itself before upgrading.
func Setup(r *gin.Engine, svc Services, a auth.Authenticator, gatherer prometheus.Gatherer, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	SetupOpsRoutes(r, svc.Store, gatherer)
	if svc.Gateway != nil {
		r.GET("/ws", svc.Gateway.ServeWs)
	}

	api := r.Group("/api/v1", auth.RequireIdentity(a))
	SetupUserRoutes(api, svc.Users, log)
	SetupChatRoutes(api, svc.Threads, svc.Messages, log)
}

func SetupOpsRoutes(r *gin.Engine, store db.Store, gatherer prometheus.Gatherer) {
	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}

func statusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.Unauthenticated:
		return http.StatusUnauthorized
	case apperror.Forbidden:
		return http.StatusForbidden
	case apperror.InvalidArgument:
		return http.StatusBadRequest
	case apperror.NotFound:
		return http.StatusNotFound
	case apperror.Conflict:
		return http.StatusConflict
	case apperror.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, log *zap.Logger, err error) {
	kind := apperror.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": string(kind), "message": apperror.MessageOf(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": string(apperror.InvalidArgument), "message": msg})
}

// queryLimit parses ?limit=. A missing value is 0, which services treat as
// "use the default".
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		badRequest(c, "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}
