// Package trace provides types for shim call trace collection and rendering.
package trace

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tag represents a trace event category.
// Tags are stored without # prefix; the prefix is added on rendering.
type Tag string

// Standard tags for trace events, one per shim component.
const (
	Alloc  Tag = "alloc"
	Ctype  Tag = "ctype"
	Strtol Tag = "strtol"
	Stdio  Tag = "stdio"
	Printf Tag = "printf"
	Endian Tag = "endian"
	Clock  Tag = "clock"
	System Tag = "system"
)

// Tags is a collection of tags with helper methods.
type Tags []Tag

// Has returns true if the tag collection contains the given tag.
func (t Tags) Has(tag Tag) bool {
	for _, x := range t {
		if x == tag {
			return true
		}
	}
	return false
}

// Add adds a tag if not already present.
func (t *Tags) Add(tag Tag) {
	if !t.Has(tag) {
		*t = append(*t, tag)
	}
}

// Strings returns tags as strings with # prefix for display.
func (t Tags) Strings() []string {
	out := make([]string, len(t))
	for i, tag := range t {
		out[i] = "#" + string(tag)
	}
	return out
}

// Event is a single recorded shim call.
type Event struct {
	Seq      uint64
	When     time.Time
	Session  uuid.UUID
	Category Tag
	Symbol   string
	Detail   string
}

// Collector accumulates shim call events for later rendering.
type Collector struct {
	mu      sync.Mutex
	session uuid.UUID
	seq     uint64
	events  []Event
}

// NewCollector creates a collector bound to a shim session id.
func NewCollector(session uuid.UUID) *Collector {
	return &Collector{session: session}
}

// Record appends an event; safe to use as a Shim OnCall callback.
func (c *Collector) Record(category, symbol, detail string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.events = append(c.events, Event{
		Seq:      c.seq,
		When:     time.Now(),
		Session:  c.session,
		Category: Tag(category),
		Symbol:   symbol,
		Detail:   detail,
	})
}

// Events returns a copy of the collected events.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event{}, c.events...)
}

// Len returns the number of collected events.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}
