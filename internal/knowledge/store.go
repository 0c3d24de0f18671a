package knowledge

import "sync/atomic"

// Store publishes the current knowledge base. Readers always see either
// the previous or the next fully built value.
type Store struct {
	cur atomic.Pointer[KnowledgeBase]
}

// NewStore returns a Store holding an empty knowledge base.
func NewStore() *Store {
	s := &Store{}
	s.cur.Store(Empty())
	return s
}

// Current returns the published knowledge base. It is never nil.
func (s *Store) Current() *KnowledgeBase {
	if kb := s.cur.Load(); kb != nil {
		return kb
	}
	return Empty()
}

// Swap publishes kb and returns the previous value. A nil kb resets the
// store to empty.
func (s *Store) Swap(kb *KnowledgeBase) *KnowledgeBase {
	if kb == nil {
		kb = Empty()
	}
	return s.cur.Swap(kb)
}
