package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/snaplink/chatsync/internal/auth"
	"github.com/snaplink/chatsync/internal/config"
	"github.com/snaplink/chatsync/internal/metrics"
	"github.com/snaplink/chatsync/internal/realtime"
	"github.com/snaplink/chatsync/internal/service"
	"github.com/snaplink/chatsync/internal/timeline"
)

// SyncDeps bundles what a websocket connection needs to run a sync session.
type SyncDeps struct {
	Service *service.ChatService
	Opener  timeline.OpenStreamFunc
	Retry   *timeline.Scheduler
	Cfg     *config.Config
	Log     *zap.SugaredLogger
}

// StreamOpener adapts the redis channel to the session's port.
func StreamOpener(ch *realtime.Channel) timeline.OpenStreamFunc {
	return func(ctx context.Context, conversationID string) (timeline.EventStream, error) {
		s, err := ch.Open(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func NewServer(cfg *config.Config, svc *service.ChatService, deps *SyncDeps, jv *auth.JWTValidator, log *zap.SugaredLogger) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(fiberlogger.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	rl := NewIPRateLimiter(cfg.App.RateLimitPerMin, log)
	h := NewHandlers(svc, log)

	v1 := app.Group("/v1", bearerAuth(jv), rl.Handler())
	v1.Post("/conversations", h.createConversation)
	v1.Get("/conversations", h.listConversations)
	v1.Get("/conversations/:conv_id", h.getConversation)
	v1.Patch("/conversations/:conv_id", h.renameConversation)
	v1.Delete("/conversations/:conv_id", h.deleteConversation)
	v1.Post("/conversations/:conv_id/members", h.addMember)
	v1.Delete("/conversations/:conv_id/members/:user_id", h.removeMember)
	v1.Get("/conversations/:conv_id/messages", h.listMessages)
	v1.Post("/conversations/:conv_id/messages", h.sendMessage)

	// Websocket sync surface. The upgrade request carries the bearer token;
	// locals survive the upgrade.
	app.Use("/ws", bearerAuth(jv), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(syncHandler(deps), websocket.Config{}))

	return app
}

func bearerAuth(jv *auth.JWTValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		hdr := c.Get("Authorization")
		if hdr == "" {
			// Browsers cannot set headers on websocket upgrades.
			if tok := c.Query("token"); tok != "" {
				hdr = "Bearer " + tok
			}
		}
		const pref = "Bearer "
		if len(hdr) <= len(pref) || hdr[:len(pref)] != pref {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing or invalid auth"})
		}
		sub, err := jv.Validate(hdr[len(pref):])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}
		c.Locals("user_id", sub)
		return c.Next()
	}
}
