package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(n int) Entry {
	return Entry{ID: fmt.Sprintf("id-%d", n), Username: "alice", Message: fmt.Sprintf("message %d", n)}
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func appendN(b *Buffer, from, to int) {
	for i := from; i < to; i++ {
		b.Append(entry(i))
	}
}

// TestReadSinceEmpty verifies that an empty buffer returns no data and
// leaves the cursor untouched.
func TestReadSinceEmpty(t *testing.T) {
	b := NewBuffer()

	entries, cursor := b.ReadSince("")
	assert.Empty(t, entries)
	assert.Empty(t, cursor)

	entries, cursor = b.ReadSince("whatever")
	assert.Empty(t, entries)
	assert.Equal(t, "whatever", cursor)
}

// TestReadSinceFullCatchUp verifies that an absent cursor returns every
// entry in arrival order with the newest id as the next cursor.
func TestReadSinceFullCatchUp(t *testing.T) {
	b := NewBuffer()
	appendN(b, 0, 5)

	entries, cursor := b.ReadSince("")
	assert.Equal(t, []string{"id-0", "id-1", "id-2", "id-3", "id-4"}, ids(entries))
	assert.Equal(t, "id-4", cursor)
}

// TestReadSinceIncremental verifies no duplicates and no gaps across
// successive reads with an advancing cursor.
func TestReadSinceIncremental(t *testing.T) {
	b := NewBuffer()
	appendN(b, 0, 3)

	first, cursor := b.ReadSince("")
	require.Len(t, first, 3)

	entries, same := b.ReadSince(cursor)
	assert.Empty(t, entries)
	assert.Equal(t, cursor, same)

	appendN(b, 3, 7)
	second, cursor := b.ReadSince(cursor)
	assert.Equal(t, []string{"id-3", "id-4", "id-5", "id-6"}, ids(second))
	assert.Equal(t, "id-6", cursor)
}

// TestEvictionKeepsMostRecentWindow verifies that after more than Capacity
// appends exactly the newest Capacity entries remain, in append order.
func TestEvictionKeepsMostRecentWindow(t *testing.T) {
	b := NewBuffer()
	appendN(b, 0, Capacity+44)

	assert.Equal(t, Capacity, b.Len())

	entries, cursor := b.ReadSince("")
	require.Len(t, entries, Capacity)
	for i, e := range entries {
		assert.Equal(t, fmt.Sprintf("id-%d", i+44), e.ID)
	}
	assert.Equal(t, fmt.Sprintf("id-%d", Capacity+43), cursor)
	assert.False(t, b.Contains("id-43"))
	assert.True(t, b.Contains("id-44"))
}

// TestReadSinceAcrossEviction verifies cursor reads still work when the
// cursor entry survived eviction of older entries.
func TestReadSinceAcrossEviction(t *testing.T) {
	b := NewBuffer()
	appendN(b, 0, 250)

	_, cursor := b.ReadSince("")
	appendN(b, 250, 260)

	entries, cursor := b.ReadSince(cursor)
	assert.Len(t, entries, 10)
	assert.Equal(t, "id-250", entries[0].ID)
	assert.Equal(t, "id-259", cursor)
}

// TestStaleCursorFallsBackToFullWindow verifies the documented behaviour for
// a reader whose cursor entry was evicted: 300 messages, cursor at #10.
func TestStaleCursorFallsBackToFullWindow(t *testing.T) {
	b := NewBuffer()
	appendN(b, 0, 300)

	entries, cursor := b.ReadSince("id-10")
	require.Len(t, entries, Capacity)
	assert.Equal(t, "id-44", entries[0].ID)
	assert.Equal(t, "id-299", cursor)
}

// TestConcurrentAppendAndRead verifies that concurrent readers always see a
// strictly increasing sequence.
func TestConcurrentAppendAndRead(t *testing.T) {
	b := NewBuffer()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		appendN(b, 0, 200)
	}()

	seen := make([]string, 0, 200)
	cursor := ""
	for len(seen) < 200 {
		var entries []Entry
		entries, cursor = b.ReadSince(cursor)
		seen = append(seen, ids(entries)...)
	}
	wg.Wait()

	for i, id := range seen {
		assert.Equal(t, fmt.Sprintf("id-%d", i), id)
	}
}
