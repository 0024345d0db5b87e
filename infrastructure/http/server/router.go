// Package server exposes the chat over HTTP: a REST API for reads and writes,
// and a websocket endpoint carrying live subscriptions.
package server

import (
	"chat-core/auth"
	"chat-core/errors"
	"chat-core/internal"
	"chat-core/observability"
	"chat-core/protocol"
	"chat-core/services"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
)

type Options struct {
	// Debug mounts /debug/stats and /debug/inspect behind authentication.
	Debug bool
	// DB backs /debug/inspect; nil disables it.
	DB *badger.DB
	// SessionBufferSize bounds the frames waiting to be written to one websocket.
	SessionBufferSize int
}

type Server struct {
	log        *slog.Logger
	chat       services.IChatService
	auth       services.IAuthService
	monitoring *observability.MonitoringManager
	options    Options
}

func NewServer(log *slog.Logger, chat services.IChatService, authService services.IAuthService,
	monitoring *observability.MonitoringManager, options Options) *Server {
	if options.SessionBufferSize <= 0 {
		options.SessionBufferSize = 256
	}
	return &Server{log: log, chat: chat, auth: authService, monitoring: monitoring, options: options}
}

// Router builds the gin engine with every route.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	authenticated := router.Group("/", auth.Middleware(s.auth))
	authenticated.GET("/ws", s.serveWebSocket)
	if s.options.Debug {
		debug := authenticated.Group("/debug")
		debug.GET("/stats", s.debugStats)
		if s.options.DB != nil {
			debug.GET("/inspect", s.debugInspect)
		}
	}

	api := authenticated.Group("/api")
	api.GET("/me", s.me)
	api.GET("/users/:id", s.getUser)
	api.GET("/channels", s.listChannels)
	api.POST("/channels", s.createChannel)
	api.POST("/channels/:id/members", s.addMember)
	api.DELETE("/channels/:id/members/:user", s.removeMember)
	api.GET("/conversations", s.listConversations)
	api.POST("/conversations", s.createConversation)
	api.GET("/scopes/:scope/messages", s.getMessages)
	api.POST("/scopes/:scope/messages", s.postMessage)
	api.GET("/search", s.search)
	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) debugStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"monitoring": s.monitoring.GetLatest(),
		"hub":        s.chat.Stats(),
	})
}

func (s *Server) debugInspect(c *gin.Context) {
	limit, err := queryInt(c, "limit", 100)
	if err != nil {
		fail(c, err)
		return
	}
	rows, err := internal.Inspect(s.options.DB, c.DefaultQuery("prefix", "channel:"), limit, internal.RecordMapper)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// fail answers with the status matching the error.
func fail(c *gin.Context, err error) {
	c.AbortWithStatusJSON(errors.MapToHTTPStatus(err), protocol.ErrorResponse{Error: err.Error()})
}

func queryInt(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, errors.ErrInvalidPayload
	}
	return value, nil
}

// nonNil makes empty lists answer [] instead of null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
