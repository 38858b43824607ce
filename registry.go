package xctrl

import (
	"sort"
	"sync"
)

// registry holds a controller's records, one insertion-ordered map per stage.
// A key is present iff its slice is non-empty. Readers receive copies so that
// listeners may mutate the registry while a stage iterates its snapshot.
type registry struct {
	mu     sync.RWMutex
	stages [stageCount]map[string][]*EventRecord
}

func newRegistry() *registry {
	r := &registry{}
	r.reset()
	return r
}

// reset discards all five stage maps at once.
func (r *registry) reset() {
	var fresh [stageCount]map[string][]*EventRecord
	for i := range fresh {
		fresh[i] = make(map[string][]*EventRecord)
	}
	r.mu.Lock()
	r.stages = fresh
	r.mu.Unlock()
}

func (r *registry) insert(rec *EventRecord) {
	r.mu.Lock()
	m := r.stages[rec.stage]
	m[rec.event] = append(m[rec.event], rec)
	r.mu.Unlock()
}

// remove deletes rec and prunes the key when its slice empties.
func (r *registry) remove(rec *EventRecord) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.stages[rec.stage]
	recs := m[rec.event]
	for i, x := range recs {
		if x != rec {
			continue
		}
		if len(recs) == 1 {
			delete(m, rec.event)
			return true
		}
		next := make([]*EventRecord, 0, len(recs)-1)
		next = append(next, recs[:i]...)
		next = append(next, recs[i+1:]...)
		m[rec.event] = next
		return true
	}
	return false
}

func (r *registry) contains(rec *EventRecord) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, x := range r.stages[rec.stage][rec.event] {
		if x == rec {
			return true
		}
	}
	return false
}

// snapshot returns a copy of the records for event on stage.
func (r *registry) snapshot(stage Stage, event string) []*EventRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recs := r.stages[stage][event]
	if len(recs) == 0 {
		return nil
	}
	out := make([]*EventRecord, len(recs))
	copy(out, recs)
	return out
}

func (r *registry) count(stage Stage, event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stages[stage][event])
}

// events returns the event names with at least one record on stage, sorted.
func (r *registry) events(stage Stage) []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.stages[stage]))
	for name := range r.stages[stage] {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// byOwner returns the records on event owned by owner.
func (r *registry) byOwner(stage Stage, event string, owner any) []*EventRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*EventRecord
	for _, rec := range r.stages[stage][event] {
		if rec.owner == owner {
			out = append(out, rec)
		}
	}
	return out
}
