// Package history keeps the bounded, in-memory log of recent broadcasts
// that every connection's fan-out reads from.
package history

import "sync"

// Capacity is the number of entries a Buffer retains.
const Capacity = 256

// Entry is one broadcast record. Entries are immutable once appended.
type Entry struct {
	ID         string `json:"id"`
	Username   string `json:"username,omitempty"`
	Message    string `json:"message"`
	FromServer bool   `json:"from_server"`
}

// Buffer is a fixed-capacity ring of entries with an id index that lets
// readers resume from a cursor. It is safe for concurrent use.
type Buffer struct {
	mu    sync.RWMutex
	slots [Capacity]Entry
	// written counts every append ever made; the entry with sequence
	// number n lives in slots[n%Capacity] while n >= written-count.
	written uint64
	count   int
	index   map[string]uint64
}

// NewBuffer returns an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{
		index: make(map[string]uint64, Capacity),
	}
}

// Append stores e, evicting the oldest entry when the buffer is full.
func (b *Buffer) Append(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	slot := b.written % Capacity
	if b.count == Capacity {
		delete(b.index, b.slots[slot].ID)
	} else {
		b.count++
	}

	b.slots[slot] = e
	b.index[e.ID] = b.written
	b.written++
}

// ReadSince returns the entries appended after cursor, oldest first, and
// the cursor to use for the next call.
//
// An empty or unknown cursor (including one whose entry has been evicted)
// yields the whole retained window, so a reader that falls more than
// Capacity entries behind sees some entries a second time. When nothing is
// new, or the buffer is empty, no entries are returned and cursor is
// returned unchanged.
func (b *Buffer) ReadSince(cursor string) ([]Entry, string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.count == 0 {
		return nil, cursor
	}

	oldest := b.written - uint64(b.count)
	from := oldest
	if cursor != "" {
		if seq, ok := b.index[cursor]; ok {
			from = seq + 1
		}
	}

	if from >= b.written {
		return nil, cursor
	}

	entries := make([]Entry, 0, b.written-from)
	for seq := from; seq < b.written; seq++ {
		entries = append(entries, b.slots[seq%Capacity])
	}
	return entries, entries[len(entries)-1].ID
}

// Snapshot returns every retained entry, oldest first.
func (b *Buffer) Snapshot() []Entry {
	entries, _ := b.ReadSince("")
	return entries
}

// Len reports how many entries are retained.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Contains reports whether an entry with the given id is still retained.
func (b *Buffer) Contains(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.index[id]
	return ok
}
