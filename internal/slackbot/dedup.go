package slackbot

import "sync"

// recencyCache remembers the last capacity event keys so redelivered
// Slack events are answered once. Socket Mode redelivers events that
// were not acked fast enough, which happens whenever generation takes
// longer than Slack's retry window.
type recencyCache struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]struct{}
	order    []string
	next     int
}

func newRecencyCache(capacity int) *recencyCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &recencyCache{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
		order:    make([]string, capacity),
	}
}

// Seen records the key and reports whether it was already present.
// Once the cache is full the oldest key is evicted.
func (c *recencyCache) Seen(key string) bool {
	if key == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[key]; ok {
		return true
	}

	if old := c.order[c.next]; old != "" {
		delete(c.seen, old)
	}
	c.order[c.next] = key
	c.next = (c.next + 1) % c.capacity
	c.seen[key] = struct{}{}
	return false
}
