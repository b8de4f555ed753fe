package timeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/snaplink/chatsync/internal/apperr"
	"github.com/snaplink/chatsync/internal/metrics"
	"github.com/snaplink/chatsync/internal/model"
)

// EventStream is one live conversation feed from the push backend. The
// Events channel closes when the stream ends for any reason; Errors carries
// the cause when the end was not a local Close.
type EventStream interface {
	Events() <-chan model.Message
	Errors() <-chan error
	Close() error
}

// OpenStreamFunc opens a push stream filtered to one conversation. A nil
// error means the stream is active. ctx bounds setup only.
type OpenStreamFunc func(ctx context.Context, conversationID string) (EventStream, error)

// Handle is a live subscription bound to one conversation. Release is
// idempotent.
type Handle interface {
	Release()
}

// Subscriber opens live subscriptions and pumps their events to a callback.
// onMessage fires at most once per distinct message id seen on the channel,
// and never for an event tagged with a different conversation id.
type Subscriber struct {
	open         OpenStreamFunc
	setupTimeout time.Duration
	log          *zap.SugaredLogger
}

func NewSubscriber(open OpenStreamFunc, setupTimeout time.Duration, log *zap.SugaredLogger) *Subscriber {
	return &Subscriber{open: open, setupTimeout: setupTimeout, log: log}
}

var errStreamClosed = errors.New("subscription stream closed")

func (s *Subscriber) Subscribe(ctx context.Context, conversationID string, onMessage func(model.Message), onError func(error)) (Handle, error) {
	setupCtx, cancel := context.WithTimeout(ctx, s.setupTimeout)
	defer cancel()

	stream, err := s.open(setupCtx, conversationID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			// Setup timed out without an explicit error event.
			return nil, apperr.Transient(err)
		}
		return nil, err
	}

	h := &subHandle{stream: stream}
	go h.pump(conversationID, onMessage, onError, s.log)
	return h, nil
}

type subHandle struct {
	stream   EventStream
	released atomic.Bool
	once     sync.Once
}

func (h *subHandle) Release() {
	h.once.Do(func() {
		h.released.Store(true)
		_ = h.stream.Close()
	})
}

func (h *subHandle) pump(conversationID string, onMessage func(model.Message), onError func(error), log *zap.SugaredLogger) {
	seen := make(map[string]struct{})
	for {
		select {
		case m, ok := <-h.stream.Events():
			if !ok {
				if h.released.Load() {
					return
				}
				var err error
				select {
				case err = <-h.stream.Errors():
				default:
					err = apperr.Transient(errStreamClosed)
				}
				onError(err)
				return
			}
			// The backend filter should make this impossible; re-check
			// anyway so a filter bypass cannot leak across conversations.
			if m.ConversationID != conversationID {
				log.Warnw("subscription received foreign event",
					"subscribed", conversationID, "got", m.ConversationID, "message_id", m.ID)
				metrics.CrossConversationDropped.Inc()
				continue
			}
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			onMessage(m)
		case err := <-h.stream.Errors():
			if !h.released.Load() {
				onError(err)
			}
			return
		}
	}
}
