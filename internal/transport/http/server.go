package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/connectus-realtime/internal/auth"
	"github.com/vovakirdan/connectus-realtime/internal/config"
	"github.com/vovakirdan/connectus-realtime/internal/core"
	"github.com/vovakirdan/connectus-realtime/internal/service/calls"
	"github.com/vovakirdan/connectus-realtime/internal/store"
)

// NewServer builds the HTTP server. /ws is served by a plain mux in front of
// gin so the upgrade can hijack the raw connection. The push and room hook
// endpoints take service tokens only.
func NewServer(
	hub *core.Hub,
	authService *auth.Service,
	callsService *calls.Service,
	messages store.MessageStore,
	cfg *config.Config,
	logger *zerolog.Logger,
) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	pushHandlers := NewPushHandlers(hub, messages, logger)
	roomHandlers := NewRoomHandlers(hub, logger)
	callsHandlers := NewCallsHandlers(callsService, logger)

	api := router.Group("/api")
	api.Use(AuthMiddleware(authService, logger))
	{
		api.GET("/presence/:userId", roomHandlers.Presence)

		api.POST("/calls", callsHandlers.Initiate)
		api.GET("/calls/:id", callsHandlers.Get)
		api.POST("/calls/:id/answer", callsHandlers.Answer)
		api.POST("/calls/:id/reject", callsHandlers.Reject)
		api.POST("/calls/:id/end", callsHandlers.End)
	}

	internal := api.Group("")
	internal.Use(ServiceOnly(logger))
	{
		internal.POST("/push/messages", pushHandlers.PushMessage)
		internal.POST("/push/messages/:id/deleted", pushHandlers.PushMessageDeleted)
		internal.POST("/push/broadcast", pushHandlers.Broadcast)

		internal.POST("/rooms/join", roomHandlers.Join)
		internal.POST("/rooms/leave", roomHandlers.Leave)
	}

	ws := NewWSHandler(hub, WSOptions{
		MaxMessageBytes:   cfg.MaxMessageBytes,
		SendBuffer:        cfg.SendBuffer,
		CommandsPerMinute: cfg.CommandsPerMinute,
	}, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", ws)
	mux.Handle("/", router)

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
