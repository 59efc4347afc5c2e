package buffer

import (
	"errors"
	"time"
)

var (
	// ErrUnderflow is returned when a delete would leave the buffer without its
	// last record. Once a channel has spoken, "last message" must stay defined.
	ErrUnderflow = errors.New("buffer holds one record or fewer")
	// ErrNotFound is returned when no record matches the requested message ID.
	ErrNotFound = errors.New("message not found in buffer")
)

// Record is one remembered message event.
type Record struct {
	AuthorID  uint64
	MessageID uint64
	Timestamp time.Time
}

// Ring remembers the most recent records pushed into a channel. Capacity is
// fixed at construction; once full, every push overwrites the oldest slot.
//
// Ring is not safe for concurrent use. Callers serialize access through the
// owning activity cache entry.
type Ring struct {
	data   []Record
	cursor int // index of the most recently pushed record
	size   int
}

const DefaultCapacity = 10

// NewRing creates an empty ring. Capacities below 2 fall back to the default
// so that delete can always retain one record.
func NewRing(capacity int) *Ring {
	if capacity < 2 {
		capacity = DefaultCapacity
	}
	return &Ring{data: make([]Record, capacity)}
}

// Push inserts a record, overwriting the oldest one once the ring is full.
func (r *Ring) Push(authorID, messageID uint64, ts time.Time) {
	if r.size != 0 {
		r.cursor = r.wrap(r.cursor + 1)
	}
	if r.size < len(r.data) {
		r.size++
	}
	r.data[r.cursor] = Record{AuthorID: authorID, MessageID: messageID, Timestamp: ts}
}

// Last returns the most recently pushed record. ok is false if the ring has
// never been pushed to.
func (r *Ring) Last() (rec Record, ok bool) {
	if r.size == 0 {
		return Record{}, false
	}
	return r.data[r.cursor], true
}

// Delete removes the record matching messageID, preserving the chronological
// order of the rest. It refuses with ErrUnderflow when the ring holds one
// record or fewer, and with ErrNotFound when no occupied slot matches.
func (r *Ring) Delete(messageID uint64) error {
	if r.size <= 1 {
		return ErrUnderflow
	}

	pos := -1
	for p := 0; p < r.size; p++ {
		if r.data[r.index(p)].MessageID == messageID {
			pos = p
			break
		}
	}
	if pos < 0 {
		return ErrNotFound
	}

	// Close the gap by walking every newer record one logical position down.
	// Logical positions hide the wrap-around: index(p) may jump from the end
	// of the backing array to its start between p and p+1.
	for p := pos; p < r.size-1; p++ {
		r.data[r.index(p)] = r.data[r.index(p+1)]
	}
	r.size--
	r.cursor = r.wrap(r.cursor + len(r.data) - 1)
	return nil
}

// Len reports how many records are currently held.
func (r *Ring) Len() int { return r.size }

// Cap reports the fixed capacity.
func (r *Ring) Cap() int { return len(r.data) }

// Records returns the held records oldest-to-newest. Used for diagnostics.
func (r *Ring) Records() []Record {
	out := make([]Record, r.size)
	for p := 0; p < r.size; p++ {
		out[p] = r.data[r.index(p)]
	}
	return out
}

// index maps a logical position (0 = oldest, size-1 = newest) to an array index.
func (r *Ring) index(pos int) int {
	oldest := r.wrap(r.cursor + len(r.data) - (r.size - 1))
	return r.wrap(oldest + pos)
}

func (r *Ring) wrap(i int) int {
	if i >= len(r.data) {
		return i - len(r.data)
	}
	return i
}
