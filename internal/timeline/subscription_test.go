package timeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/snaplink/chatsync/internal/apperr"
	"github.com/snaplink/chatsync/internal/model"
)

type fakeStream struct {
	events    chan model.Message
	errs      chan error
	closeOnce sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		events: make(chan model.Message, 16),
		errs:   make(chan error, 1),
	}
}

func (f *fakeStream) Events() <-chan model.Message { return f.events }
func (f *fakeStream) Errors() <-chan error         { return f.errs }
func (f *fakeStream) Close() error {
	f.closeOnce.Do(func() { close(f.events) })
	return nil
}

func (f *fakeStream) push(m model.Message) { f.events <- m }
func (f *fakeStream) fail(err error)       { f.errs <- err }

type collector struct {
	mu   sync.Mutex
	msgs []model.Message
	errs []error
}

func (c *collector) onMessage(m model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
}

func (c *collector) onError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *collector) messageIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.msgs))
	for i, m := range c.msgs {
		out[i] = m.ID
	}
	return out
}

func (c *collector) errCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs)
}

func newTestSubscriber(stream *fakeStream) *Subscriber {
	open := func(ctx context.Context, conversationID string) (EventStream, error) {
		return stream, nil
	}
	return NewSubscriber(open, time.Second, zap.NewNop().Sugar())
}

func TestSubscribeDeliversOncePerID(t *testing.T) {
	stream := newFakeStream()
	col := &collector{}

	h, err := newTestSubscriber(stream).Subscribe(context.Background(), "c1", col.onMessage, col.onError)
	require.NoError(t, err)
	defer h.Release()

	stream.push(msg("1", "c1", 10))
	stream.push(msg("2", "c1", 20))
	stream.push(msg("1", "c1", 10)) // redelivery

	require.Eventually(t, func() bool {
		return len(col.messageIDs()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"1", "2"}, col.messageIDs())
}

func TestSubscribeGuardsForeignConversation(t *testing.T) {
	stream := newFakeStream()
	col := &collector{}

	h, err := newTestSubscriber(stream).Subscribe(context.Background(), "a", col.onMessage, col.onError)
	require.NoError(t, err)
	defer h.Release()

	stream.push(msg("x", "b", 10)) // filter bypass
	stream.push(msg("1", "a", 20))

	require.Eventually(t, func() bool {
		return len(col.messageIDs()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"1"}, col.messageIDs())
}

func TestSubscribeErrorReachesCallback(t *testing.T) {
	stream := newFakeStream()
	col := &collector{}

	_, err := newTestSubscriber(stream).Subscribe(context.Background(), "c1", col.onMessage, col.onError)
	require.NoError(t, err)

	stream.fail(apperr.Transient(errors.New("connection reset")))

	require.Eventually(t, func() bool {
		return col.errCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestReleaseIsIdempotentAndSilencesErrors(t *testing.T) {
	stream := newFakeStream()
	col := &collector{}

	h, err := newTestSubscriber(stream).Subscribe(context.Background(), "c1", col.onMessage, col.onError)
	require.NoError(t, err)

	h.Release()
	h.Release()
	h.Release()

	// The close-induced end of stream must not surface as an error.
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, col.errCount())
}

func TestSubscribeSetupTimeout(t *testing.T) {
	open := func(ctx context.Context, conversationID string) (EventStream, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	sub := NewSubscriber(open, 20*time.Millisecond, zap.NewNop().Sugar())

	_, err := sub.Subscribe(context.Background(), "c1", func(model.Message) {}, func(error) {})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrTransient)
}
