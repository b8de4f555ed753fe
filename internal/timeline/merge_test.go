package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/snaplink/chatsync/internal/model"
)

func newMerger(conv string) (*Store, *Merger) {
	st := NewStore(conv)
	return st, NewMerger(st, zap.NewNop().Sugar())
}

func TestMergeIdempotent(t *testing.T) {
	st, e := newMerger("c1")
	require.Equal(t, MergeApplied, e.Merge(msg("1", "c1", 10)))
	require.Equal(t, MergeApplied, e.Merge(msg("2", "c1", 20)))

	// Redelivery of an existing id leaves the store untouched.
	before := ids(st.Snapshot())
	require.Equal(t, MergeDuplicate, e.Merge(msg("2", "c1", 20)))
	assert.Equal(t, before, ids(st.Snapshot()))
	assert.Equal(t, 2, st.Len())
}

func TestMergeOutOfOrderLiveEvent(t *testing.T) {
	st, e := newMerger("c1")
	require.Equal(t, 2, e.MergeAll([]model.Message{msg("1", "c1", 10), msg("2", "c1", 20)}))
	require.Equal(t, MergeApplied, e.Merge(msg("3", "c1", 15)))
	require.Equal(t, []string{"1", "3", "2"}, ids(st.Snapshot()))
}

func TestMergeCrossConversationDropped(t *testing.T) {
	st, e := newMerger("a")
	require.Equal(t, MergeApplied, e.Merge(msg("1", "a", 10)))

	got := e.Merge(msg("2", "b", 20))
	require.Equal(t, MergeCrossConversation, got)
	assert.Equal(t, 1, st.Len())
	assert.False(t, st.Contains("2"))
}

func TestMergeReconcilesOptimisticEntry(t *testing.T) {
	st, e := newMerger("c1")

	local := msg("local-1", "c1", 10)
	local.ClientTag = "tag-1"
	st.AppendPending(local)

	server := msg("srv-1", "c1", 11)
	server.ClientTag = "tag-1"
	require.Equal(t, MergeApplied, e.Merge(server))

	snap := st.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "srv-1", snap[0].ID)
	assert.False(t, snap[0].Pending)
}

func TestMergeAckAfterEchoIsDuplicate(t *testing.T) {
	st, e := newMerger("c1")

	local := msg("local-1", "c1", 10)
	local.ClientTag = "tag-1"
	st.AppendPending(local)

	server := msg("srv-1", "c1", 11)
	server.ClientTag = "tag-1"

	// Live echo lands first, then the send ack replays the same server row.
	require.Equal(t, MergeApplied, e.Merge(server))
	require.Equal(t, MergeDuplicate, e.Merge(server))

	snap := st.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "srv-1", snap[0].ID)
}
