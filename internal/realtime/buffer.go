package realtime

import (
	"sort"
	"sync"
	"time"

	"github.com/consultdesk/messaging-service/internal/model"
)

// Buffer is the reconciliation buffer: the canonical, duplicate-free,
// timestamp-ordered message list for one conversation view. Push
// events, fallback polls and optimistic sends all land here, in any
// interleaving.
type Buffer struct {
	mu      sync.RWMutex
	index   map[string]int
	entries []model.Message
}

func NewBuffer() *Buffer {
	return &Buffer{
		index: make(map[string]int),
	}
}

// Upsert applies a message to the buffer. A known identity has its
// mutable fields replaced in place without reordering; a new identity
// is inserted at its creation-timestamp position. Returns true if the
// buffer changed.
func (b *Buffer) Upsert(msg model.Message) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i, ok := b.index[msg.ID]; ok {
		return b.updateAt(i, msg)
	}

	b.insert(msg)
	return true
}

// ReplaceTemp swaps an optimistic entry for its confirmed remote
// counterpart, preserving the entry's position. If the confirmed
// record already arrived via another delivery path the temp entry is
// dropped instead, so exactly one entry remains. Returns false only
// when neither the temp nor the confirmed identity is known.
func (b *Buffer) ReplaceTemp(tempID string, msg model.Message) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	tempIdx, hasTemp := b.index[tempID]
	_, hasFinal := b.index[msg.ID]

	switch {
	case hasTemp && hasFinal:
		b.removeAt(tempIdx)
		return true
	case hasTemp:
		b.entries[tempIdx] = msg
		delete(b.index, tempID)
		b.index[msg.ID] = tempIdx
		return true
	case hasFinal:
		return true
	default:
		return false
	}
}

// Remove drops an entry, used to roll back a failed optimistic send.
func (b *Buffer) Remove(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	i, ok := b.index[id]
	if !ok {
		return false
	}

	b.removeAt(i)
	return true
}

// Snapshot returns a copy of the ordered list.
func (b *Buffer) Snapshot() []model.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]model.Message, len(b.entries))
	copy(out, b.entries)
	return out
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Latest returns the newest confirmed creation timestamp, the poll
// watermark. Optimistic entries are skipped: their timestamps come
// from the local clock and must not advance the watermark.
func (b *Buffer) Latest() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i := len(b.entries) - 1; i >= 0; i-- {
		if !b.entries[i].IsTemp() {
			return b.entries[i].CreatedAt
		}
	}
	return time.Time{}
}

// updateAt replaces the mutable fields of a known entry. Identity,
// creation timestamp and position stay fixed.
func (b *Buffer) updateAt(i int, msg model.Message) bool {
	entry := &b.entries[i]

	changed := entry.Read != msg.Read ||
		!ptrEqual(entry.Body, msg.Body) ||
		!ptrEqual(entry.AudioURL, msg.AudioURL)
	if !changed {
		return false
	}

	entry.Read = msg.Read
	entry.Body = msg.Body
	entry.AudioURL = msg.AudioURL
	return true
}

func (b *Buffer) insert(msg model.Message) {
	i := sort.Search(len(b.entries), func(i int) bool {
		return b.entries[i].CreatedAt.After(msg.CreatedAt)
	})

	b.entries = append(b.entries, model.Message{})
	copy(b.entries[i+1:], b.entries[i:])
	b.entries[i] = msg

	b.index[msg.ID] = i
	for j := i + 1; j < len(b.entries); j++ {
		b.index[b.entries[j].ID] = j
	}
}

func (b *Buffer) removeAt(i int) {
	delete(b.index, b.entries[i].ID)
	b.entries = append(b.entries[:i], b.entries[i+1:]...)
	for j := i; j < len(b.entries); j++ {
		b.index[b.entries[j].ID] = j
	}
}

func ptrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
