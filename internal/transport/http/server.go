package http

import (
	"context"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/commhub-server/internal/auth"
	"github.com/vovakirdan/commhub-server/internal/config"
	"github.com/vovakirdan/commhub-server/internal/core"
	"github.com/vovakirdan/commhub-server/internal/service/channels"
	"github.com/vovakirdan/commhub-server/internal/service/messages"
	"github.com/vovakirdan/commhub-server/internal/store"
)

// Hub is the part of core.Hub the transport uses.
type Hub interface {
	RegisterClient(c *core.Client)
	UnregisterClient(c *core.Client)
	PublishMessage(ctx context.Context, msg core.Message) error
	PublishDeletion(ctx context.Context, msg core.Message, origin string) error
	OnlineUsers(ctx context.Context) ([]string, error)
}

var _ Hub = (*core.Hub)(nil)

// Services bundles the collaborators behind the REST API.
type Services struct {
	Auth     *auth.Service
	Store    store.Store
	Channels *channels.Service
	Messages *messages.Service
}

// NewServer builds the HTTP server: health check, WebSocket endpoint and the
// REST API behind JWT auth.
func NewServer(hub Hub, svc Services, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(hub, svc, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter returns the CORS-wrapped handler NewServer serves.
func NewRouter(hub Hub, svc Services, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	if logger.GetLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/ws", gin.WrapH(NewWSHandler(hub, WSOptions{
		Auth:               svc.Auth,
		JWTRequired:        cfg.JWTRequired,
		MaxMessageBytes:    cfg.MaxMessageBytes,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		AllowedOrigins:     cfg.AllowedOrigins,
	}, logger)))

	api := router.Group("/api")

	authHandlers := NewAPIHandlers(svc.Auth, logger)
	authGroup := api.Group("/auth", newIPLimiter(cfg.RateLimitPerMinute).Middleware())
	authGroup.POST("/register", authHandlers.Register)
	authGroup.POST("/login", authHandlers.Login)
	authGroup.DELETE("/delete/:id", AuthMiddleware(svc.Auth, logger), authHandlers.DeleteUser)

	protected := api.Group("", AuthMiddleware(svc.Auth, logger))

	users := NewUserHandlers(svc.Store, svc.Messages, hub, logger)
	protected.GET("/users", users.ListUsers)
	protected.GET("/users/search", users.SearchUsers)
	protected.GET("/contacts", users.Contacts)
	protected.GET("/online", users.Online)

	chans := NewChannelHandlers(svc.Channels, logger)
	protected.POST("/channels", chans.CreateChannel)
	protected.GET("/channels", chans.ListChannels)
	protected.GET("/channels/search", chans.SearchChannels)
	protected.GET("/channels/:id", chans.GetChannel)
	protected.DELETE("/channels/:id", chans.DeleteChannel)
	protected.POST("/channels/:id/join", chans.JoinChannel)
	protected.POST("/channels/:id/leave", chans.LeaveChannel)
	protected.POST("/channels/:id/members", chans.AddMember)
	protected.POST("/channels/:id/requests", chans.RequestJoin)
	protected.POST("/channels/:id/requests/:userId", chans.HandleRequest)

	msgs := NewMessageHandlers(svc.Messages, hub, logger)
	protected.GET("/messages", msgs.History)
	protected.POST("/messages", msgs.CreateMessage)
	protected.DELETE("/messages/:id", msgs.DeleteMessage)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{stdhttp.MethodGet, stdhttp.MethodPost, stdhttp.MethodDelete, stdhttp.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	})
	return c.Handler(router)
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
