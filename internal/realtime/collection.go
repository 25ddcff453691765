package realtime

import (
	"sync"

	"cropwatch/internal/models"
)

// Change describes one merge into the collection.
type Change struct {
	Device   models.Device `json:"device"`
	Index    int           `json:"index"`
	Inserted bool          `json:"inserted"`
}

// Collection is the ordered, de-duplicated set of canonical devices shown
// to clients. Updates keep their position; new devices go to the front.
type Collection struct {
	mu      sync.RWMutex
	devices []models.Device
}

func NewCollection(initial []models.Device) *Collection {
	c := &Collection{}
	c.Reset(initial)
	return c
}

// Reset replaces the contents, dropping later duplicates of an id.
func (c *Collection) Reset(devices []models.Device) {
	seen := make(map[string]struct{}, len(devices))
	out := make([]models.Device, 0, len(devices))
	for _, d := range devices {
		if _, ok := seen[d.ID]; ok {
			continue
		}
		seen[d.ID] = struct{}{}
		out = append(out, d)
	}

	c.mu.Lock()
	c.devices = out
	c.mu.Unlock()
}

// Apply merges d by id under a single lock.
func (c *Collection) Apply(d models.Device) Change {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.devices {
		if c.devices[i].ID == d.ID {
			c.devices[i] = d
			return Change{Device: d, Index: i}
		}
	}

	c.devices = append([]models.Device{d}, c.devices...)
	return Change{Device: d, Index: 0, Inserted: true}
}

// Snapshot returns a copy of the current devices.
func (c *Collection) Snapshot() []models.Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Device, len(c.devices))
	copy(out, c.devices)
	return out
}

func (c *Collection) Get(id string) (models.Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.devices {
		if d.ID == id {
			return d, true
		}
	}
	return models.Device{}, false
}

func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.devices)
}
