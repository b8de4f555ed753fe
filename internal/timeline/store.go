package timeline

import (
	"sort"

	"github.com/snaplink/chatsync/internal/model"
)

// Store holds the ordered message list for one conversation. Order is
// non-decreasing created_at; ids are unique, indexed for O(1) lookups.
// A Store is owned by exactly one Session loop and is not safe for
// concurrent use.
type Store struct {
	conversationID string
	msgs           []model.Message
	ids            map[string]struct{}
	pendingByTag   map[string]string // client tag -> local message id
}

func NewStore(conversationID string) *Store {
	return &Store{
		conversationID: conversationID,
		ids:            make(map[string]struct{}),
		pendingByTag:   make(map[string]string),
	}
}

func (s *Store) ConversationID() string { return s.conversationID }

func (s *Store) Len() int { return len(s.msgs) }

func (s *Store) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Snapshot returns a copy of the ordered sequence.
func (s *Store) Snapshot() []model.Message {
	out := make([]model.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// insert places m at its sorted position. The common case is an append;
// out-of-order arrivals go to the first slot whose timestamp is after
// m.CreatedAt, so equal timestamps keep arrival order.
func (s *Store) insert(m model.Message) {
	s.ids[m.ID] = struct{}{}
	n := len(s.msgs)
	if n == 0 || !m.CreatedAt.Before(s.msgs[n-1].CreatedAt) {
		s.msgs = append(s.msgs, m)
		return
	}
	i := sort.Search(n, func(i int) bool {
		return s.msgs[i].CreatedAt.After(m.CreatedAt)
	})
	s.msgs = append(s.msgs, model.Message{})
	copy(s.msgs[i+1:], s.msgs[i:])
	s.msgs[i] = m
}

// AppendPending records an optimistic local entry awaiting its server echo.
func (s *Store) AppendPending(m model.Message) {
	m.Pending = true
	if m.ClientTag != "" {
		s.pendingByTag[m.ClientTag] = m.ID
	}
	s.insert(m)
}

// ResolveTag drops the pending entry registered for tag, if any, and
// reports whether one was removed.
func (s *Store) ResolveTag(tag string) bool {
	localID, ok := s.pendingByTag[tag]
	if !ok {
		return false
	}
	delete(s.pendingByTag, tag)
	return s.removeByID(localID)
}

func (s *Store) removeByID(id string) bool {
	if _, ok := s.ids[id]; !ok {
		return false
	}
	delete(s.ids, id)
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
			return true
		}
	}
	return false
}

// DropPending removes a failed optimistic entry.
func (s *Store) DropPending(tag string) bool {
	return s.ResolveTag(tag)
}
