package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/snaplink/chatsync/internal/apperr"
	"github.com/snaplink/chatsync/internal/events"
	"github.com/snaplink/chatsync/internal/model"
	"github.com/snaplink/chatsync/internal/realtime"
	"github.com/snaplink/chatsync/internal/repository"
)

// ChatService owns conversation and message semantics: membership rules,
// server-assigned ids and timestamps, and fan-out of persisted messages to
// the realtime channel and the event bus.
type ChatService struct {
	convs *repository.ConversationRepository
	msgs  *repository.MessageRepository
	rt    *realtime.Channel
	prod  *events.Producer // nil when kafka is not configured
	log   *zap.SugaredLogger
}

func NewChatService(convs *repository.ConversationRepository, msgs *repository.MessageRepository, rt *realtime.Channel, prod *events.Producer, log *zap.SugaredLogger) *ChatService {
	return &ChatService{convs: convs, msgs: msgs, rt: rt, prod: prod, log: log}
}

func (s *ChatService) CreateConversation(ctx context.Context, creatorID, name string, members []string) (*model.Conversation, error) {
	if name == "" {
		return nil, apperr.ErrBadRequest
	}
	set := map[string]struct{}{creatorID: {}}
	all := []string{creatorID}
	for _, m := range members {
		if _, ok := set[m]; ok || m == "" {
			continue
		}
		set[m] = struct{}{}
		all = append(all, m)
	}
	now := time.Now().UTC()
	c := &model.Conversation{
		ID:           uuid.NewString(),
		Name:         name,
		Members:      all,
		Admins:       []string{creatorID},
		CreatedBy:    creatorID,
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := s.convs.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ChatService) GetConversation(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	c, err := s.convs.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !c.HasMember(userID) {
		// Non-members cannot distinguish "no access" from "does not exist".
		return nil, apperr.ErrNotFound
	}
	return c, nil
}

func (s *ChatService) ListConversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	return s.convs.ListByMember(ctx, userID)
}

func (s *ChatService) RenameConversation(ctx context.Context, userID, conversationID, name string) error {
	if name == "" {
		return apperr.ErrBadRequest
	}
	if err := s.requireAdmin(ctx, userID, conversationID); err != nil {
		return err
	}
	return s.convs.Rename(ctx, conversationID, name)
}

func (s *ChatService) AddMember(ctx context.Context, userID, conversationID, newMember string) error {
	if newMember == "" {
		return apperr.ErrBadRequest
	}
	if err := s.requireAdmin(ctx, userID, conversationID); err != nil {
		return err
	}
	if err := s.convs.AddMember(ctx, conversationID, newMember); err != nil {
		return err
	}
	_, err := s.Send(ctx, userID, conversationID, fmt.Sprintf("%s joined the group", newMember), model.MessageTypeSystem, 0, "")
	return err
}

// RemoveMember removes target from the conversation. Admins may remove
// anyone; anyone may remove themselves (leave).
func (s *ChatService) RemoveMember(ctx context.Context, userID, conversationID, target string) error {
	if target != userID {
		if err := s.requireAdmin(ctx, userID, conversationID); err != nil {
			return err
		}
	} else if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return err
	}
	if err := s.convs.RemoveMember(ctx, conversationID, target); err != nil {
		return err
	}
	_, err := s.Send(ctx, userID, conversationID, fmt.Sprintf("%s left the group", target), model.MessageTypeSystem, 0, "")
	return err
}

// DeleteConversation removes a conversation and cascades to its messages.
func (s *ChatService) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	if err := s.requireAdmin(ctx, userID, conversationID); err != nil {
		return err
	}
	if err := s.msgs.DeleteByConversation(ctx, conversationID); err != nil {
		return err
	}
	return s.convs.Delete(ctx, conversationID)
}

// History returns the conversation's messages ordered by created_at
// ascending, after a membership check.
func (s *ChatService) History(ctx context.Context, userID, conversationID string) ([]model.Message, error) {
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.msgs.FetchMessages(ctx, conversationID)
}

// Send persists a message with a server-assigned id and timestamp, then
// fans it out: redis for live subscribers, kafka for downstream consumers.
func (s *ChatService) Send(ctx context.Context, userID, conversationID, content, msgType string, timerSeconds int, clientTag string) (*model.Message, error) {
	if content == "" || !model.ValidMessageType(msgType) {
		return nil, apperr.ErrBadRequest
	}
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	m := &model.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       userID,
		Content:        content,
		Type:           msgType,
		TimerSeconds:   timerSeconds,
		ClientTag:      clientTag,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.msgs.Insert(ctx, m); err != nil {
		return nil, err
	}
	if err := s.convs.TouchActivity(ctx, conversationID, m.CreatedAt); err != nil {
		s.log.Warnw("touch last_activity", "conversation_id", conversationID, "err", err)
	}
	if err := s.rt.PublishInsert(ctx, *m); err != nil {
		// Persisted but not fanned out; subscribers repair on next resync.
		s.log.Warnw("realtime publish failed", "message_id", m.ID, "err", err)
	}
	if s.prod != nil {
		s.prod.PublishMessageCreated(ctx, *m)
	}
	return m, nil
}

func (s *ChatService) requireAdmin(ctx context.Context, userID, conversationID string) error {
	c, err := s.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	if !c.HasAdmin(userID) {
		return apperr.ErrUnauthorized
	}
	return nil
}

// ForUser binds the service to one authenticated user, yielding the
// history-load and send capabilities a sync session consumes.
func (s *ChatService) ForUser(userID string) *UserChat {
	return &UserChat{svc: s, userID: userID}
}

type UserChat struct {
	svc    *ChatService
	userID string
}

func (u *UserChat) LoadHistory(ctx context.Context, conversationID string) ([]model.Message, error) {
	return u.svc.History(ctx, u.userID, conversationID)
}

func (u *UserChat) SendMessage(ctx context.Context, conversationID, content, msgType string, timerSeconds int, clientTag string) (*model.Message, error) {
	return u.svc.Send(ctx, u.userID, conversationID, content, msgType, timerSeconds, clientTag)
}
