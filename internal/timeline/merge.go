package timeline

import (
	"go.uber.org/zap"

	"github.com/snaplink/chatsync/internal/metrics"
	"github.com/snaplink/chatsync/internal/model"
)

type MergeResult int

const (
	MergeApplied MergeResult = iota
	MergeDuplicate
	MergeCrossConversation
)

func (r MergeResult) String() string {
	switch r {
	case MergeApplied:
		return "applied"
	case MergeDuplicate:
		return "duplicate"
	case MergeCrossConversation:
		return "cross-conversation"
	}
	return "unknown"
}

// Merger reconciles confirmed messages (history rows, live events, send
// acks) into a Store. It never mutates existing entries; the only removal
// it performs is swapping a pending optimistic copy for its server echo.
type Merger struct {
	store *Store
	log   *zap.SugaredLogger
}

func NewMerger(store *Store, log *zap.SugaredLogger) *Merger {
	return &Merger{store: store, log: log}
}

func (e *Merger) Merge(m model.Message) MergeResult {
	if m.ConversationID != e.store.ConversationID() {
		e.log.Warnw("dropping event for inactive conversation",
			"active", e.store.ConversationID(),
			"got", m.ConversationID,
			"message_id", m.ID)
		metrics.CrossConversationDropped.Inc()
		return MergeCrossConversation
	}
	if e.store.Contains(m.ID) {
		metrics.DuplicatesDropped.Inc()
		return MergeDuplicate
	}
	if m.ClientTag != "" {
		// Server copy of a message this session sent optimistically.
		e.store.ResolveTag(m.ClientTag)
	}
	m.Pending = false
	e.store.insert(m)
	metrics.MergesApplied.Inc()
	return MergeApplied
}

// MergeAll merges a batch, returning how many entries were applied.
func (e *Merger) MergeAll(msgs []model.Message) int {
	applied := 0
	for _, m := range msgs {
		if e.Merge(m) == MergeApplied {
			applied++
		}
	}
	return applied
}
