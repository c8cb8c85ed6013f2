package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/dkeye/Tetris/internal/adapters/leaderboard"
	"github.com/dkeye/Tetris/internal/app"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// Leaderboard is the read side of the leaderboard store.
type Leaderboard interface {
	Top(ctx context.Context, limit int, fast *bool) ([]leaderboard.Record, error)
	PlayerBest(ctx context.Context, name string, fast *bool) (leaderboard.Record, bool, error)
	PlayerStats(ctx context.Context, name string) (leaderboard.PlayerStats, error)
	Stats(ctx context.Context) (leaderboard.AllTimeStats, error)
	TopWinners(ctx context.Context, limit int) ([]leaderboard.Winner, error)
	Ping(ctx context.Context) error
}

type handlers struct {
	rooms *app.RoomManager
	board Leaderboard
}

func parseLimit(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return defaultLimit
	}
	return min(n, maxLimit)
}

func parseFast(c *gin.Context) (*bool, bool) {
	raw := c.Query("fast")
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, false
	}
	return &v, true
}

func playerName(c *gin.Context) (string, bool) {
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "player name is required"})
		return "", false
	}
	return name, true
}

func internalError(c *gin.Context, op string, err error) {
	log.Error().Err(err).Str("module", "adapters.http").Str("op", op).Msg("leaderboard query")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "leaderboard unavailable"})
}

func (h *handlers) health(c *gin.Context) {
	if err := h.board.Ping(c.Request.Context()); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("health check")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "disconnected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "connected"})
}

func (h *handlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, h.rooms.List())
}

func (h *handlers) topScores(c *gin.Context) {
	fast, ok := parseFast(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fast must be true or false"})
		return
	}
	top, err := h.board.Top(c.Request.Context(), parseLimit(c), fast)
	if err != nil {
		internalError(c, "top", err)
		return
	}
	c.JSON(http.StatusOK, top)
}

func (h *handlers) playerBest(c *gin.Context) {
	name, ok := playerName(c)
	if !ok {
		return
	}
	fast, ok := parseFast(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fast must be true or false"})
		return
	}
	best, found, err := h.board.PlayerBest(c.Request.Context(), name, fast)
	if err != nil {
		internalError(c, "player", err)
		return
	}
	if !found {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, best)
}

func (h *handlers) playerStats(c *gin.Context) {
	name, ok := playerName(c)
	if !ok {
		return
	}
	st, err := h.board.PlayerStats(c.Request.Context(), name)
	if err != nil {
		internalError(c, "player-stats", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *handlers) allTimeStats(c *gin.Context) {
	st, err := h.board.Stats(c.Request.Context())
	if err != nil {
		internalError(c, "stats", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *handlers) topWinners(c *gin.Context) {
	w, err := h.board.TopWinners(c.Request.Context(), parseLimit(c))
	if err != nil {
		internalError(c, "top-winners", err)
		return
	}
	c.JSON(http.StatusOK, w)
}
