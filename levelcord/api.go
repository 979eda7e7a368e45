package levelcord

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
)

const (
	apiHealthCheck     = "/healthz"
	apiPathLeaderboard = "/api/guilds/:guild_id/leaderboard"
	apiPathMemberXP    = "/api/guilds/:guild_id/members/:user_id/xp"

	xRequestIDHeader = "X-Request-ID"
)

// httpReply is the envelope for API error responses.
type httpReply struct {
	Message string `json:"message"`
}

// API serves the read-only HTTP endpoints: health, per-guild
// leaderboards and per-member XP summaries. All mutation stays behind
// Discord's permission model; nothing here writes.
type API struct {
	config     *APIConfig
	httpServer *http.Server
	listener   net.Listener
	engine     *gin.Engine
	logger     *slog.Logger
	handlers   *apiHandlers
}

func newAPI(
	lc *LevelCord,
	config *APIConfig,
	logHandler slog.Handler,
) (*API, error) {
	logger := slog.New(logHandler).With(loggerNameKey, "api")
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	api := &API{
		config:   config,
		engine:   r,
		logger:   logger,
		handlers: &apiHandlers{ledger: lc.ledger, logger: logger},
	}

	api.httpServer = &http.Server{
		Addr:              config.Listen,
		Handler:           r,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	r.Use(
		gin.Recovery(),
		requestIDMiddleware(),
		ginLoggingMiddleware(logger),
		cors.New(config.CORS.GINConfig()),
	)

	r.GET(apiHealthCheck, api.handlers.healthCheck)
	r.GET(apiPathLeaderboard, api.handlers.getLeaderboard)
	r.GET(apiPathMemberXP, api.handlers.getMemberXP)

	return api, nil
}

// Serve listens and serves until the server is shut down.
func (a *API) Serve(ctx context.Context) error {
	if a.listener != nil {
		return a.httpServer.Serve(a.listener)
	}
	listenCfg := &net.ListenConfig{}
	ln, err := listenCfg.Listen(ctx, a.config.ListenNetwork, a.config.Listen)
	if err != nil {
		return err
	}
	a.listener = ln
	a.logger.InfoContext(ctx, "api listening", "addr", ln.Addr().String())
	return a.httpServer.Serve(a.listener)
}

func (a *API) Shutdown(ctx context.Context) error {
	return a.httpServer.Shutdown(ctx)
}

type apiHandlers struct {
	ledger XPLedger
	logger *slog.Logger
}

func (h *apiHandlers) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// getLeaderboard returns guild standings. Query params: mode
// (text|voice|messages|voice_time, default text) and limit.
func (h *apiHandlers) getLeaderboard(c *gin.Context) {
	guildID := c.Param("guild_id")
	mode := c.DefaultQuery("mode", "text")

	limit := DefaultLeaderboardLimit
	if rawLimit := c.Query("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil || parsed <= 0 {
			c.JSON(
				http.StatusBadRequest,
				httpReply{Message: "limit must be a positive integer"},
			)
			return
		}
		limit = parsed
	}

	entries, err := h.ledger.Leaderboard(
		c.Request.Context(), guildID, mode, limit,
	)
	if err != nil {
		if errors.Is(err, ErrUnknownMode) {
			c.JSON(http.StatusBadRequest, httpReply{Message: "unknown mode"})
			return
		}
		h.logger.Error("error reading leaderboard", tint.Err(err))
		c.JSON(
			http.StatusInternalServerError,
			httpReply{Message: "internal error"},
		)
		return
	}
	c.JSON(
		http.StatusOK, gin.H{
			"guild_id": guildID,
			"mode":     mode,
			"entries":  entries,
		},
	)
}

// getMemberXP returns one member's full counter set.
func (h *apiHandlers) getMemberXP(c *gin.Context) {
	guildID := c.Param("guild_id")
	userID := c.Param("user_id")
	ctx := c.Request.Context()

	summary := gin.H{"guild_id": guildID, "user_id": userID}
	for _, mode := range []XPMode{ModeText, ModeVoice} {
		xp, err := h.ledger.XP(ctx, userID, guildID, mode)
		if err != nil {
			h.logger.Error("error reading xp", tint.Err(err))
			c.JSON(
				http.StatusInternalServerError,
				httpReply{Message: "internal error"},
			)
			return
		}
		level, err := h.ledger.Level(ctx, userID, guildID, mode)
		if err != nil {
			h.logger.Error("error reading level", tint.Err(err))
			c.JSON(
				http.StatusInternalServerError,
				httpReply{Message: "internal error"},
			)
			return
		}
		summary[string(mode)+"_xp"] = xp
		summary[string(mode)+"_level"] = level
	}

	messages, err := h.ledger.Messages(ctx, userID, guildID)
	if err != nil {
		h.logger.Error("error reading messages", tint.Err(err))
		c.JSON(
			http.StatusInternalServerError,
			httpReply{Message: "internal error"},
		)
		return
	}
	voiceTime, err := h.ledger.VoiceTime(ctx, userID, guildID)
	if err != nil {
		h.logger.Error("error reading voice time", tint.Err(err))
		c.JSON(
			http.StatusInternalServerError,
			httpReply{Message: "internal error"},
		)
		return
	}
	summary["messages"] = messages
	summary["voice_time"] = voiceTime

	c.JSON(http.StatusOK, summary)
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := generateRandomHexString(32)
		if err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Set(xRequestIDHeader, id)
		c.Header(xRequestIDHeader, id)
		c.Next()
	}
}

func ginLoggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}
		c.Next()

		requestID, _ := c.Get(xRequestIDHeader)
		logger.Info(
			"request completed",
			slog.Group(
				"request",
				"method", c.Request.Method,
				"path", path,
				"status", c.Writer.Status(),
				"elapsed_ms", time.Since(start).Milliseconds(),
				"request_id", requestID,
			),
		)
	}
}
