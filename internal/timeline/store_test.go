package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snaplink/chatsync/internal/model"
)

func msg(id, conv string, at int64) model.Message {
	return model.Message{
		ID:             id,
		ConversationID: conv,
		SenderID:       "u1",
		Content:        "m-" + id,
		Type:           model.MessageTypeText,
		CreatedAt:      time.Unix(at, 0).UTC(),
	}
}

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestStoreAppendKeepsOrder(t *testing.T) {
	s := NewStore("c1")
	s.insert(msg("1", "c1", 10))
	s.insert(msg("2", "c1", 20))
	s.insert(msg("3", "c1", 30))

	require.Equal(t, []string{"1", "2", "3"}, ids(s.Snapshot()))
	assert.True(t, s.Contains("2"))
	assert.False(t, s.Contains("9"))
}

func TestStoreSortedInsertOutOfOrder(t *testing.T) {
	s := NewStore("c1")
	s.insert(msg("1", "c1", 10))
	s.insert(msg("2", "c1", 20))
	// Late arrival with an earlier timestamp lands between, not at the end.
	s.insert(msg("3", "c1", 15))

	snap := s.Snapshot()
	require.Equal(t, []string{"1", "3", "2"}, ids(snap))
	for i := 1; i < len(snap); i++ {
		assert.False(t, snap[i].CreatedAt.Before(snap[i-1].CreatedAt))
	}
}

func TestStoreEqualTimestampsKeepArrivalOrder(t *testing.T) {
	s := NewStore("c1")
	s.insert(msg("a", "c1", 10))
	s.insert(msg("b", "c1", 10))
	s.insert(msg("c", "c1", 10))

	require.Equal(t, []string{"a", "b", "c"}, ids(s.Snapshot()))
}

func TestStoreInsertBeforeAll(t *testing.T) {
	s := NewStore("c1")
	s.insert(msg("2", "c1", 20))
	s.insert(msg("1", "c1", 10))

	require.Equal(t, []string{"1", "2"}, ids(s.Snapshot()))
}

func TestStoreSnapshotIsACopy(t *testing.T) {
	s := NewStore("c1")
	s.insert(msg("1", "c1", 10))
	snap := s.Snapshot()
	snap[0].ID = "mutated"

	require.Equal(t, "1", s.Snapshot()[0].ID)
}

func TestStorePendingLifecycle(t *testing.T) {
	s := NewStore("c1")
	local := msg("local-1", "c1", 10)
	local.ClientTag = "tag-1"
	s.AppendPending(local)

	require.Equal(t, 1, s.Len())
	require.True(t, s.Snapshot()[0].Pending)

	require.True(t, s.ResolveTag("tag-1"))
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Contains("local-1"))

	// Resolving again is a no-op.
	assert.False(t, s.ResolveTag("tag-1"))
}
