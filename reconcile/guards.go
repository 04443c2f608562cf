package reconcile

import (
	"slices"
	"sync"
	"time"
)

// Guards holds the in-memory markers that keep duplicate or overlapping
// triggers from repeating work. The state is lost on restart; the engine
// re-checks live list content before creating anything, so a lost marker
// costs at most one redundant host call.
//
// Completed and created markers carry the generation that set them. An
// expiry timer only removes the marker it was scheduled for, so a key that
// was marked again in the meantime keeps its full grace period.
type Guards struct {
	mu         sync.Mutex
	processing map[string]struct{} // entity
	completed  map[string]uint64   // entity|uid|summary
	created    map[string]uint64   // entity|summary
	gen        uint64

	grace time.Duration
	after func(time.Duration, func())
}

// NewGuards returns empty guards. Completed and just-created markers expire
// after grace; zero keeps them until restart.
func NewGuards(grace time.Duration) *Guards {
	return &Guards{
		processing: make(map[string]struct{}),
		completed:  make(map[string]uint64),
		created:    make(map[string]uint64),
		grace:      grace,
		after: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// TryAcquire marks entity as being reconciled. It returns false when another
// reconciliation of entity is already running.
func (g *Guards) TryAcquire(entity string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.processing[entity]; busy {
		return false
	}
	g.processing[entity] = struct{}{}
	return true
}

// Release clears the processing marker for entity.
func (g *Guards) Release(entity string) {
	g.mu.Lock()
	delete(g.processing, entity)
	g.mu.Unlock()
}

func completedKey(entity, uid, summary string) string {
	return entity + "|" + uid + "|" + summary
}

func createdKey(entity, summary string) string {
	return entity + "|" + summary
}

// mark sets key in m under a fresh generation and schedules its expiry.
// The caller holds g.mu.
func (g *Guards) mark(m map[string]uint64, key string) {
	g.gen++
	gen := g.gen
	m[key] = gen
	if g.grace <= 0 {
		return
	}
	g.after(g.grace, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if m[key] == gen {
			delete(m, key)
		}
	})
}

// MarkCompleted records that a completed item has been promoted to its next
// instance. It returns false when the item is still marked. The marker
// expires after the grace period.
func (g *Guards) MarkCompleted(entity, uid, summary string) bool {
	key := completedKey(entity, uid, summary)
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, seen := g.completed[key]; seen {
		return false
	}
	g.mark(g.completed, key)
	return true
}

// MarkCreated records a recurring item the engine just added so the count
// change it causes is not read as a new user item. The marker expires after
// the grace period.
func (g *Guards) MarkCreated(entity, summary string) {
	key := createdKey(entity, summary)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mark(g.created, key)
}

// IsCreated reports whether summary was just created on entity.
func (g *Guards) IsCreated(entity, summary string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.created[createdKey(entity, summary)]
	return ok
}

// GuardSnapshot is a point-in-time copy of the guard keys.
type GuardSnapshot struct {
	Processing []string `json:"processing"`
	Completed  []string `json:"completed"`
	Created    []string `json:"created"`
}

// Snapshot returns the current keys in sorted order.
func (g *Guards) Snapshot() GuardSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GuardSnapshot{
		Processing: sortedKeys(g.processing),
		Completed:  sortedKeys(g.completed),
		Created:    sortedKeys(g.created),
	}
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
