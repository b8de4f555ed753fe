package timeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/snaplink/chatsync/internal/apperr"
	"github.com/snaplink/chatsync/internal/metrics"
	"github.com/snaplink/chatsync/internal/model"
)

// HistoryLoader fetches a conversation's messages, oldest first. It fails
// with apperr.ErrNotFound when the conversation is missing or the session's
// user is not a member, and with a transient error when the backend is
// unavailable.
type HistoryLoader interface {
	LoadHistory(ctx context.Context, conversationID string) ([]model.Message, error)
}

// MessageSender persists an outgoing message and returns the server copy
// carrying the assigned id and timestamp.
type MessageSender interface {
	SendMessage(ctx context.Context, conversationID, content, msgType string, timerSeconds int, clientTag string) (*model.Message, error)
}

// SubscriptionOpener is the live-channel capability consumed by a session.
type SubscriptionOpener interface {
	Subscribe(ctx context.Context, conversationID string, onMessage func(model.Message), onError func(error)) (Handle, error)
}

// Status is the connection signal exposed to the UI surface.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusLive       Status = "live"
	StatusError      Status = "error"
)

type state int

const (
	stateIdle state = iota
	stateLoading
	stateLive
	stateSwitchingAway
)

type EventType string

const (
	EventSnapshot   EventType = "snapshot"
	EventMessage    EventType = "message"
	EventStatus     EventType = "status"
	EventSendFailed EventType = "send_failed"
)

// Event is what the session pushes to its consumer.
type Event struct {
	Type           EventType       `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Status         Status          `json:"status,omitempty"`
	Messages       []model.Message `json:"messages,omitempty"`
	Message        *model.Message  `json:"message,omitempty"`
	Error          string          `json:"error,omitempty"`
	// Terminal marks an unrecoverable error (missing conversation, no
	// membership) as opposed to a retryable setup failure.
	Terminal bool `json:"terminal,omitempty"`
}

// Session owns the synchronization state for one UI surface: at most one
// active conversation, one store, one live subscription. All mutable state
// is confined to the run loop goroutine; exported methods post commands to
// it. The epoch counter invalidates async results that complete after a
// conversation switch.
type Session struct {
	userID  string
	history HistoryLoader
	subs    SubscriptionOpener
	sender  MessageSender
	retry   *Scheduler
	log     *zap.SugaredLogger

	cmds      chan func()
	done      chan struct{}
	closeOnce sync.Once
	events    chan Event

	// loop-owned
	st          state
	status      Status
	epoch       uint64
	store       *Store
	merger      *Merger
	handle      Handle
	cancelSetup context.CancelFunc
	live        bool
}

var errSessionClosed = errors.New("session closed")

func NewSession(userID string, history HistoryLoader, subs SubscriptionOpener, sender MessageSender, retry *Scheduler, log *zap.SugaredLogger) *Session {
	s := &Session{
		userID:  userID,
		history: history,
		subs:    subs,
		sender:  sender,
		retry:   retry,
		log:     log.With("user_id", userID),
		cmds:    make(chan func(), 64),
		done:    make(chan struct{}),
		events:  make(chan Event, 256),
		st:      stateIdle,
		status:  StatusIdle,
	}
	go s.run()
	return s
}

// Events is the session's outbound feed. Slow consumers lose intermediate
// events; the latest snapshot can always be re-read via Snapshot.
func (s *Session) Events() <-chan Event { return s.events }

func (s *Session) run() {
	for {
		select {
		case fn := <-s.cmds:
			fn()
		case <-s.done:
			s.teardown()
			return
		}
	}
}

// teardown releases resources without clearing the store; a consumer may
// still read the last snapshot while the transport shuts down.
func (s *Session) teardown() {
	if s.cancelSetup != nil {
		s.cancelSetup()
		s.cancelSetup = nil
	}
	if s.handle != nil {
		s.handle.Release()
		s.handle = nil
	}
	s.setLive(false)
	close(s.events)
}

func (s *Session) post(fn func()) bool {
	select {
	case s.cmds <- fn:
		return true
	case <-s.done:
		return false
	}
}

// call posts fn and waits for the loop to run it.
func (s *Session) call(fn func()) bool {
	doneCh := make(chan struct{})
	if !s.post(func() {
		fn()
		close(doneCh)
	}) {
		return false
	}
	<-doneCh
	return true
}

// Close tears the session down. The store is not cleared eagerly; the
// subscription and any pending retries always are.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// OpenConversation focuses a conversation. Re-opening the one already
// active is a no-op while it is loading or live, so a re-focus never
// flickers. Switching releases the previous subscription, cancels pending
// retries, and discards the previous store.
func (s *Session) OpenConversation(conversationID string) {
	s.post(func() {
		if s.store != nil && s.store.ConversationID() == conversationID {
			switch s.st {
			case stateLoading, stateLive:
				return
			}
			// Same conversation after an error or close: reload without
			// clearing what is already on screen.
			s.beginLoad(conversationID, false)
			return
		}
		s.beginLoad(conversationID, true)
	})
}

// CloseConversation leaves the current conversation: the subscription is
// released and retries cancelled, but the store survives so the UI can keep
// rendering until the screen is gone.
func (s *Session) CloseConversation() {
	s.post(func() {
		s.st = stateSwitchingAway
		s.epoch++
		if s.cancelSetup != nil {
			s.cancelSetup()
			s.cancelSetup = nil
		}
		if s.handle != nil {
			s.handle.Release()
			s.handle = nil
		}
		s.setLive(false)
		s.st = stateIdle
		s.setStatus(StatusIdle, "", false)
	})
}

func (s *Session) beginLoad(conversationID string, reset bool) {
	s.st = stateSwitchingAway
	s.epoch++
	if s.cancelSetup != nil {
		s.cancelSetup()
		s.cancelSetup = nil
	}
	if s.handle != nil {
		s.handle.Release()
		s.handle = nil
	}
	s.setLive(false)
	if reset || s.store == nil {
		s.store = NewStore(conversationID)
		s.merger = NewMerger(s.store, s.log)
	}
	s.st = stateLoading
	s.setStatus(StatusConnecting, "", false)
	s.startSetup(conversationID, s.epoch)
}

// startSetup runs history load then subscription open off the loop, posting
// results back tagged with the epoch they were started under.
func (s *Session) startSetup(conversationID string, epoch uint64) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelSetup = cancel

	go func() {
		var msgs []model.Message
		err := s.retry.Run(ctx, "history", func(ctx context.Context) error {
			var e error
			msgs, e = s.history.LoadHistory(ctx, conversationID)
			return e
		})
		if err != nil {
			s.post(func() { s.setupFailed(epoch, err) })
			return
		}

		var h Handle
		err = s.retry.Run(ctx, "subscribe", func(ctx context.Context) error {
			var e error
			h, e = s.subs.Subscribe(ctx, conversationID,
				func(m model.Message) { s.post(func() { s.applyLive(epoch, m) }) },
				func(err error) { s.post(func() { s.streamFailed(epoch, conversationID, err) }) })
			return e
		})
		if err != nil {
			s.post(func() { s.setupFailed(epoch, err) })
			return
		}

		if !s.post(func() { s.setupDone(epoch, msgs, h) }) {
			h.Release()
		}
	}()
}

func (s *Session) setupDone(epoch uint64, msgs []model.Message, h Handle) {
	if epoch != s.epoch {
		// Finished after a switch; the new conversation must not see this.
		h.Release()
		return
	}
	s.merger.MergeAll(msgs)
	s.handle = h
	s.st = stateLive
	s.setLive(true)
	s.emit(Event{
		Type:           EventSnapshot,
		ConversationID: s.store.ConversationID(),
		Messages:       s.store.Snapshot(),
	})
	s.setStatus(StatusLive, "", false)
}

func (s *Session) setupFailed(epoch uint64, err error) {
	if epoch != s.epoch {
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	s.st = stateIdle
	terminal := errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrUnauthorized)
	s.log.Warnw("conversation setup failed",
		"conversation_id", s.store.ConversationID(), "terminal", terminal, "err", err)
	s.setStatus(StatusError, err.Error(), terminal)
}

func (s *Session) applyLive(epoch uint64, m model.Message) {
	if epoch != s.epoch {
		return
	}
	if res := s.merger.Merge(m); res == MergeApplied {
		s.emit(Event{
			Type:           EventMessage,
			ConversationID: m.ConversationID,
			Message:        &m,
		})
	}
}

// streamFailed handles ACTIVE -> ERROR: the dead handle is dropped and the
// whole setup re-runs under the same epoch. Re-merging history is harmless
// (dedup) and repairs any gap the outage opened.
func (s *Session) streamFailed(epoch uint64, conversationID string, err error) {
	if epoch != s.epoch {
		return
	}
	s.log.Warnw("live stream failed, resyncing", "conversation_id", conversationID, "err", err)
	if s.handle != nil {
		s.handle.Release()
		s.handle = nil
	}
	if s.cancelSetup != nil {
		s.cancelSetup()
		s.cancelSetup = nil
	}
	s.setLive(false)
	s.st = stateLoading
	s.setStatus(StatusConnecting, "", false)
	s.startSetup(conversationID, epoch)
}

// SendMessage applies the message optimistically, persists it, and
// reconciles the server copy through the merge path. It blocks until the
// server accepts or rejects the write; the optimistic entry is already
// visible to the consumer by then. A failure removes the pending entry and
// is returned to the caller so the UI can scope it to that one bubble.
func (s *Session) SendMessage(ctx context.Context, content, msgType string, timerSeconds int) (*model.Message, error) {
	if msgType == "" {
		msgType = model.MessageTypeText
	}
	if !model.ValidMessageType(msgType) {
		return nil, apperr.ErrBadRequest
	}

	type sendResult struct {
		msg *model.Message
		err error
	}
	resCh := make(chan sendResult, 1)

	ok := s.post(func() {
		if s.store == nil {
			resCh <- sendResult{err: apperr.ErrBadRequest}
			return
		}
		conversationID := s.store.ConversationID()
		epoch := s.epoch
		tag := uuid.NewString()
		local := model.Message{
			ID:             "local-" + tag,
			ConversationID: conversationID,
			SenderID:       s.userID,
			Content:        content,
			Type:           msgType,
			TimerSeconds:   timerSeconds,
			ClientTag:      tag,
			CreatedAt:      time.Now().UTC(),
		}
		s.store.AppendPending(local)
		s.emit(Event{Type: EventMessage, ConversationID: conversationID, Message: &local})

		go func() {
			srv, err := s.sender.SendMessage(ctx, conversationID, content, msgType, timerSeconds, tag)
			s.post(func() {
				if epoch != s.epoch {
					// Switched away mid-send. The write outcome stands
					// server-side; nothing to reconcile locally.
					resCh <- sendResult{msg: srv, err: err}
					return
				}
				if err != nil {
					s.store.DropPending(tag)
					s.emit(Event{
						Type:           EventSendFailed,
						ConversationID: conversationID,
						Message:        &local,
						Error:          err.Error(),
					})
					resCh <- sendResult{err: err}
					return
				}
				if s.merger.Merge(*srv) == MergeApplied {
					s.emit(Event{Type: EventMessage, ConversationID: conversationID, Message: srv})
				}
				resCh <- sendResult{msg: srv}
			})
		}()
	})
	if !ok {
		return nil, errSessionClosed
	}

	select {
	case r := <-resCh:
		return r.msg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, errSessionClosed
	}
}

// Snapshot returns the active conversation id and its ordered messages.
func (s *Session) Snapshot() (string, []model.Message) {
	var id string
	var msgs []model.Message
	s.call(func() {
		if s.store != nil {
			id = s.store.ConversationID()
			msgs = s.store.Snapshot()
		}
	})
	return id, msgs
}

// Status returns the current connection signal.
func (s *Session) Status() Status {
	st := StatusIdle
	s.call(func() { st = s.status })
	return st
}

func (s *Session) setStatus(st Status, errMsg string, terminal bool) {
	s.status = st
	ev := Event{Type: EventStatus, Status: st, Error: errMsg, Terminal: terminal}
	if s.store != nil {
		ev.ConversationID = s.store.ConversationID()
	}
	s.emit(ev)
}

func (s *Session) setLive(live bool) {
	if live == s.live {
		return
	}
	s.live = live
	if live {
		metrics.LiveSessions.Inc()
	} else {
		metrics.LiveSessions.Dec()
	}
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Debugw("event feed full, dropping", "type", ev.Type)
	}
}
