package chat

import "sync"

// conversationLocks serializes message processing per conversation: two
// messages in the same conversation never generate concurrently, while
// different conversations run fully in parallel. Entries are refcounted
// and removed when the last holder releases, so the registry stays
// bounded by the number of in-flight conversations.
type conversationLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{entries: make(map[string]*lockEntry)}
}

// Lock acquires the per-conversation lock and returns its release func.
func (l *conversationLocks) Lock(conversationUID string) func() {
	l.mu.Lock()
	entry, ok := l.entries[conversationUID]
	if !ok {
		entry = &lockEntry{}
		l.entries[conversationUID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, conversationUID)
		}
		l.mu.Unlock()
	}
}
