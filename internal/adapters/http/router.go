package http

import (
	"context"
	"net/http"

	"github.com/dkeye/airwave/internal/adapters/signal"
	"github.com/dkeye/airwave/internal/app/orch"
	"github.com/dkeye/airwave/internal/config"
	"github.com/dkeye/airwave/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const clientTokenKey = "client_token"

// BroadcasterView is one entry of the REST broadcaster list.
type BroadcasterView struct {
	domain.Broadcaster
	Listeners int `json:"listeners"`
}

// ClientTokenMiddleware keeps a stable per-browser token in the session so
// reconnecting sockets can be correlated in the logs.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		token, _ := s.Get(clientTokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			s.Set(clientTokenKey, token)
			if err := s.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("AirwaveSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	limiter := signal.NewRateLimiter(cfg.JoinRateLimit, cfg.JoinRateWindow)
	ctrl := signal.NewSignalWSController(o, limiter, signal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.SendBuffer,
		ICEServers: cfg.ICEServers,
	})
	ws := func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("client", c.GetString(clientTokenKey)).Msg("ws endpoint hit")
		ctrl.HandleSignal(ctx, c)
	}

	api := r.Group("/api")
	api.GET("/ws", ws)
	api.GET("/ws/signal", ws)
	api.GET("/broadcasters", func(c *gin.Context) {
		list := o.Broadcasters()
		counts := o.Registry.ListenerCounts()
		out := make([]BroadcasterView, 0, len(list))
		for _, b := range list {
			out = append(out, BroadcasterView{
				Broadcaster: b,
				Listeners:   counts[b.ID],
			})
		}
		c.JSON(http.StatusOK, out)
	})

	return r
}
