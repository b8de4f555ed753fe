package events

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/snaplink/chatsync/internal/model"
)

// Producer publishes message.created events for downstream consumers
// (notifications, search indexing). Delivery here is best-effort; the
// realtime fan-out does not depend on it.
type Producer struct {
	writer *kafkago.Writer
	log    *zap.SugaredLogger
}

func NewProducer(brokers []string, topic string, log *zap.SugaredLogger) *Producer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
		Async:        false,
	}
	return &Producer{writer: w, log: log}
}

type messageCreated struct {
	ConversationID string        `json:"conversation_id"`
	Message        model.Message `json:"message"`
}

func (p *Producer) PublishMessageCreated(ctx context.Context, m model.Message) {
	b, err := json.Marshal(messageCreated{ConversationID: m.ConversationID, Message: m})
	if err != nil {
		p.log.Errorw("kafka: marshal message.created", "err", err)
		return
	}
	msg := kafkago.Message{
		Key:   []byte(m.ConversationID),
		Value: b,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Warnw("kafka: publish message.created", "message_id", m.ID, "err", err)
	}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
