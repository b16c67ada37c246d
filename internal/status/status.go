// Package status serves a small read-only HTTP view of the identity pool.
package status

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/sonroyaalmerol/kumaswarm/internal/routing"
)

type StartOpts struct {
	Addr     string
	Pool     *routing.Pool
	Sessions routing.SessionSource
	Log      zerolog.Logger
}

// Start serves the status API on opts.Addr until ctx is cancelled.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Pool == nil || opts.Sessions == nil {
		return fmt.Errorf("status: pool and sessions are required")
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           NewRouter(opts.Pool, opts.Sessions),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			opts.Log.Warn().Err(err).Msg("status server shutdown")
		}
	}()

	opts.Log.Info().Str("addr", opts.Addr).Msg("status server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status: %w", err)
	}
	return nil
}

func NewRouter(pool *routing.Pool, sessions routing.SessionSource) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", handleHealth(pool))
	router.GET("/identities", handleIdentities(pool))
	router.GET("/guilds/:guildID/sessions", handleSessions(pool, sessions))
	router.GET("/guilds/:guildID/route", handleRoute(pool))
	return router
}

type identityView struct {
	Index    int    `json:"index"`
	UserID   string `json:"user_id,omitempty"`
	Ready    bool   `json:"ready"`
	Sentinel bool   `json:"sentinel"`
}

func viewOf(id *routing.Identity) identityView {
	return identityView{Index: id.Index(), UserID: id.UserID(), Ready: id.Ready(), Sentinel: id.IsSentinel()}
}

func handleHealth(pool *routing.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ready := 0
		for _, id := range pool.Identities() {
			if id.Ready() {
				ready++
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "pool": pool.Size(), "ready": ready})
	}
}

func handleIdentities(pool *routing.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		out := make([]identityView, 0, pool.Size())
		for _, id := range pool.Identities() {
			out = append(out, viewOf(id))
		}
		c.JSON(http.StatusOK, out)
	}
}

type sessionView struct {
	Identity  int    `json:"identity"`
	ChannelID string `json:"channel_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Busy      bool   `json:"busy"`
}

func handleSessions(pool *routing.Pool, sessions routing.SessionSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		guildID := c.Param("guildID")
		out := make([]sessionView, 0, pool.Size())
		for _, id := range pool.Identities() {
			s, err := sessions.ActiveSession(c.Request.Context(), id.Index(), guildID)
			if err != nil {
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
			v := sessionView{Identity: id.Index()}
			if s != nil {
				v.ChannelID, v.SessionID, v.Busy = s.VoiceChannelID, s.SessionID, true
			}
			out = append(out, v)
		}
		c.JSON(http.StatusOK, out)
	}
}

// handleRoute reports which identity would take a command without running it.
// ?channel= is the caller's voice channel; ?key= the dedupe key for text commands.
func handleRoute(pool *routing.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := routing.Request{
			VoiceChannelID: c.Query("channel"),
			DedupeKey:      c.Query("key"),
			RequiresVoice:  c.Query("channel") != "",
		}
		if v := c.Query("voice"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "voice must be a boolean"})
				return
			}
			req.RequiresVoice = b
		}

		d, err := pool.Assign(c.Request.Context(), c.Param("guildID"), req)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		resp := gin.H{"reason": string(d.Reason), "all_busy": d.AllBusy()}
		if d.Identity != nil {
			resp["identity"] = viewOf(d.Identity)
		}
		c.JSON(http.StatusOK, resp)
	}
}
