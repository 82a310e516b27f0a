// Package board holds the in-memory projection of the three funnel buckets.
// Every mutation path (dispatch, transition, reconciliation, reload) goes
// through this single owner; nothing else touches the cached entities, which
// removes the stale-render and duplicate-entry class of bugs that ad hoc
// shared-slice mutation invites.
package board

import (
	"sort"
	"sync"

	"serenata_backend/internal/funnel/domain"

	"github.com/google/uuid"
)

// Cache is the mutex-guarded board projection. Concurrent patches to
// different entities are independent; patches to the same entity resolve
// last-writer-wins at the field level, except the bucket field, which only
// ApplyMove may change.
type Cache struct {
	mu       sync.RWMutex
	entities map[uuid.UUID]domain.Entity
	moving   map[uuid.UUID]struct{}
}

// NewCache creates an empty board cache.
func NewCache() *Cache {
	return &Cache{
		entities: make(map[uuid.UUID]domain.Entity),
		moving:   make(map[uuid.UUID]struct{}),
	}
}

// ReplaceBucket swaps in a freshly loaded partition. Reloads are the
// tiebreaker after a lost race, so they overwrite any optimistic patches for
// entities in that bucket.
func (c *Cache) ReplaceBucket(bucket domain.Bucket, entities []domain.Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, e := range c.entities {
		if e.Bucket == bucket {
			delete(c.entities, id)
		}
	}
	for _, e := range entities {
		if e.Bucket == bucket {
			c.entities[e.ID] = e
		}
	}
}

// Patch applies a field-level update to one entity. The mutator never sees or

// changes the bucket: a stale optimistic patch from a send must not undo a
// transition that landed first.
func (c *Cache) Patch(id uuid.UUID, mutate func(*domain.Entity)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entities[id]
	if !ok {
		return false
	}

	bucket := e.Bucket
	mutate(&e)
	e.Bucket = bucket
	c.entities[id] = e
	return true
}

// Upsert adds a freshly loaded entity to the projection, or patches the
// cached copy when one already exists. Like Patch, the cached bucket wins
// for existing entries; only ApplyMove changes buckets.
func (c *Cache) Upsert(e domain.Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.entities[e.ID]; ok {
		e.Bucket = cached.Bucket
	}
	c.entities[e.ID] = e
}

// ApplyMove reflects a confirmed bucket transition into the projection,
// applying the same field updates the store applied.
func (c *Cache) ApplyMove(id uuid.UUID, to domain.Bucket, fields domain.MoveFields) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entities[id]
	if !ok {
		return false
	}

	e.Bucket = to
	if fields.CurrentStep != nil {
		e.CurrentStep = *fields.CurrentStep
	}
	if fields.ExitReason != nil {
		e.ExitReason = fields.ExitReason
	} else if fields.ClearExit {
		e.ExitReason = nil
	}
	if fields.NextDispatchAt != nil {
		e.NextDispatchAt = fields.NextDispatchAt
	} else if fields.ClearDispatch {
		e.NextDispatchAt = nil
	}

	c.entities[id] = e
	return true
}

// Remove drops an entity from the projection (deletion).
func (c *Cache) Remove(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entities, id)
	delete(c.moving, id)
}

// MarkMoving claims the in-flight transition marker for an entity. It returns
// false when another transition already holds the marker, so a concurrent
// manual drag and a reconciliation move on the same entity cannot both
// proceed.
func (c *Cache) MarkMoving(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, held := c.moving[id]; held {
		return false
	}
	c.moving[id] = struct{}{}
	return true
}

// ClearMoving releases the in-flight transition marker.
func (c *Cache) ClearMoving(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.moving, id)
}

// Moving reports whether a transition is in flight for the entity.
func (c *Cache) Moving(id uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, held := c.moving[id]
	return held
}

// Get returns one cached entity.
func (c *Cache) Get(id uuid.UUID) (domain.Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entities[id]
	return e, ok
}

// Snapshot returns the cached entities of one bucket, newest first.
func (c *Cache) Snapshot(bucket domain.Bucket) []domain.Entity {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entities := make([]domain.Entity, 0)
	for _, e := range c.entities {
		if e.Bucket == bucket {
			entities = append(entities, e)
		}
	}
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].CreatedAt.After(entities[j].CreatedAt)
	})
	return entities
}
