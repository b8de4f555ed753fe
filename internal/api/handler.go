package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/snaplink/chatsync/internal/apperr"
	"github.com/snaplink/chatsync/internal/service"
)

type Handlers struct {
	svc *service.ChatService
	log *zap.SugaredLogger
}

func NewHandlers(svc *service.ChatService, log *zap.SugaredLogger) *Handlers {
	return &Handlers{svc: svc, log: log}
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, apperr.ErrBadRequest):
		return fiber.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthorized):
		return fiber.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperr.ErrTransient):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(errStatus(err)).JSON(fiber.Map{"error": err.Error()})
}

func reqCtx(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context(), 5*time.Second)
}

func userID(c *fiber.Ctx) string {
	return c.Locals("user_id").(string)
}

func (h *Handlers) createConversation(c *fiber.Ctx) error {
	var req struct {
		Name    string   `json:"name"`
		Members []string `json:"members"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, apperr.ErrBadRequest)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	conv, err := h.svc.CreateConversation(ctx, userID(c), req.Name, req.Members)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "ok", "data": conv})
}

func (h *Handlers) listConversations(c *fiber.Ctx) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	convs, err := h.svc.ListConversations(ctx, userID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": convs})
}

func (h *Handlers) getConversation(c *fiber.Ctx) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	conv, err := h.svc.GetConversation(ctx, userID(c), c.Params("conv_id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": conv})
}

func (h *Handlers) renameConversation(c *fiber.Ctx) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, apperr.ErrBadRequest)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.svc.RenameConversation(ctx, userID(c), c.Params("conv_id"), req.Name); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *Handlers) deleteConversation(c *fiber.Ctx) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.svc.DeleteConversation(ctx, userID(c), c.Params("conv_id")); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *Handlers) addMember(c *fiber.Ctx) error {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, apperr.ErrBadRequest)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.svc.AddMember(ctx, userID(c), c.Params("conv_id"), req.UserID); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *Handlers) removeMember(c *fiber.Ctx) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.svc.RemoveMember(ctx, userID(c), c.Params("conv_id"), c.Params("user_id")); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *Handlers) listMessages(c *fiber.Ctx) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	msgs, err := h.svc.History(ctx, userID(c), c.Params("conv_id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": msgs})
}

func (h *Handlers) sendMessage(c *fiber.Ctx) error {
	var req struct {
		Content      string `json:"content"`
		Type         string `json:"type"`
		TimerSeconds int    `json:"timer_seconds"`
		ClientTag    string `json:"client_tag"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, apperr.ErrBadRequest)
	}
	if req.Type == "" {
		req.Type = "text"
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	msg, err := h.svc.Send(ctx, userID(c), c.Params("conv_id"), req.Content, req.Type, req.TimerSeconds, req.ClientTag)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "ok", "data": msg})
}
