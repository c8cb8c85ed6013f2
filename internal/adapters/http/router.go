package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Tetris/internal/adapters/signal"
	"github.com/dkeye/Tetris/internal/app"
	"github.com/dkeye/Tetris/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const clientTokenKey = "ct"

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

// ClientTokenMiddleware keeps a stable anonymous token per browser in the
// session cookie. It is used for logging only.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			sess.Set(clientTokenKey, token)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// Deps are the collaborators the router serves.
type Deps struct {
	Rooms       *app.RoomManager
	Signal      *signal.SignalWSController
	Leaderboard Leaderboard
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("TetrisSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &handlers{rooms: deps.Rooms, board: deps.Leaderboard}
	r.GET("/health", h.health)

	api := r.Group("/api")
	api.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("ws endpoint hit")
		deps.Signal.HandleSignal(ctx, c)
	})
	api.GET("/rooms", h.listRooms)

	lb := api.Group("/leaderboard")
	lb.GET("/top", h.topScores)
	lb.GET("/player", h.playerBest)
	lb.GET("/player-stats", h.playerStats)
	lb.GET("/stats", h.allTimeStats)
	lb.GET("/top-winners", h.topWinners)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}
