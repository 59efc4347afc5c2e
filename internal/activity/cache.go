package activity

import (
	"sync"
	"sync/atomic"

	"patientzero/internal/buffer"
)

// ChannelBuffer pairs one channel's recency ring with the mutex that
// serializes access to it. The read-last-then-push sequence in the engine
// must run inside a single Update call so that two concurrent messages for
// the same channel never observe each other's half-applied state.
type ChannelBuffer struct {
	mu   sync.Mutex
	ring *buffer.Ring
}

// Update runs fn while holding the channel's lock.
func (b *ChannelBuffer) Update(fn func(*buffer.Ring) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fn(b.ring)
}

// Cache maps channel IDs to their recency buffers. Entries are created
// lazily on first access and live for the process lifetime. Contention on
// one channel's buffer never blocks access to another channel's buffer:
// the map itself is only touched to resolve or insert keys.
type Cache struct {
	capacity int
	buffers  sync.Map // uint64 -> *ChannelBuffer
	created  atomic.Int64
	onCreate func()
}

// NewCache creates an empty cache whose buffers hold capacity records each.
func NewCache(capacity int) *Cache {
	return &Cache{capacity: capacity}
}

// SetCreateHook registers a callback invoked once per installed buffer.
// Must be called before the cache is shared.
func (c *Cache) SetCreateHook(hook func()) {
	c.onCreate = hook
}

// GetOrCreate returns the channel's buffer, creating it if absent. Under
// concurrent first access for the same key, LoadOrStore guarantees exactly
// one buffer is installed and every caller receives that instance.
func (c *Cache) GetOrCreate(channelID uint64) *ChannelBuffer {
	if v, ok := c.buffers.Load(channelID); ok {
		return v.(*ChannelBuffer)
	}
	fresh := &ChannelBuffer{ring: buffer.NewRing(c.capacity)}
	v, loaded := c.buffers.LoadOrStore(channelID, fresh)
	if !loaded {
		c.created.Add(1)
		if c.onCreate != nil {
			c.onCreate()
		}
	}
	return v.(*ChannelBuffer)
}

// Peek returns the channel's buffer only if it already exists.
func (c *Cache) Peek(channelID uint64) (*ChannelBuffer, bool) {
	v, ok := c.buffers.Load(channelID)
	if !ok {
		return nil, false
	}
	return v.(*ChannelBuffer), true
}

// Created reports how many buffers have been installed since startup.
func (c *Cache) Created() int64 { return c.created.Load() }
