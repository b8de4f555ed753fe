package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/snaplink/chatsync/internal/apperr"
	"github.com/snaplink/chatsync/internal/model"
)

// Channel is the push primitive: one redis pub/sub channel per conversation,
// carrying insert events only. The server-side filter is the channel name
// itself; consumers still re-check the conversation id on receipt.
type Channel struct {
	rdb    *redis.Client
	prefix string
	log    *zap.SugaredLogger
}

func NewChannel(rdb *redis.Client, prefix string, log *zap.SugaredLogger) *Channel {
	return &Channel{rdb: rdb, prefix: prefix, log: log}
}

func (c *Channel) key(conversationID string) string {
	return fmt.Sprintf("%s:conv:%s", c.prefix, conversationID)
}

// PublishInsert fans a persisted message out to subscribers of its
// conversation.
func (c *Channel) PublishInsert(ctx context.Context, m model.Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := c.rdb.Publish(ctx, c.key(m.ConversationID), b).Err(); err != nil {
		return apperr.Transient(err)
	}
	return nil
}

// Open subscribes to a conversation's channel. It returns only after redis
// confirms the subscription, so a non-error return means the stream is
// active. ctx bounds the setup, not the stream's lifetime.
func (c *Channel) Open(ctx context.Context, conversationID string) (*Stream, error) {
	pubsub := c.rdb.Subscribe(ctx, c.key(conversationID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, apperr.Transient(err)
	}

	s := &Stream{
		pubsub: pubsub,
		events: make(chan model.Message, 64),
		errs:   make(chan error, 1),
	}
	go s.run(c.log)
	return s, nil
}

// Stream is one live conversation feed. Close is idempotent.
type Stream struct {
	pubsub    *redis.PubSub
	events    chan model.Message
	errs      chan error
	closeOnce sync.Once
}

func (s *Stream) Events() <-chan model.Message { return s.events }
func (s *Stream) Errors() <-chan error         { return s.errs }

func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		_ = s.pubsub.Close()
	})
	return nil
}

func (s *Stream) run(log *zap.SugaredLogger) {
	defer close(s.events)
	ch := s.pubsub.Channel()
	for msg := range ch {
		var m model.Message
		if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
			log.Warnw("realtime: dropping malformed payload", "channel", msg.Channel, "err", err)
			continue
		}
		s.events <- m
	}
	// The channel closes on Close() and on connection loss alike; the
	// consumer treats a close it did not ask for as an error.
	select {
	case s.errs <- apperr.Transient(redisClosedErr{}):
	default:
	}
}

type redisClosedErr struct{}

func (redisClosedErr) Error() string { return "realtime stream closed" }
