package fieldhistory

import (
	"field-history/internal/schema"
	"field-history/internal/tracker"
)

// Tracked pairs an entity with its baseline. Mutate the entity through
// Entity and write it with Coordinator.Save.
type Tracked[T any] struct {
	entity  *T
	schema  *schema.Schema
	tracker *tracker.InstanceTracker

	// firstWrite is set until the entity's first save succeeds.
	firstWrite bool
}

func (t *Tracked[T]) Entity() *T {
	return t.entity
}

// ID returns the entity's identity; ok is false until it has been created.
func (t *Tracked[T]) ID() (string, bool) {
	if t == nil {
		return "", false
	}
	return t.schema.Identity(t.entity)
}

func (t *Tracked[T]) HasChanged(field string) bool {
	return t.tracker.HasChanged(field)
}

func (t *Tracked[T]) Previous(field string) (any, bool) {
	return t.tracker.Previous(field)
}

func (t *Tracked[T]) CurrentValue(field string) any {
	return t.tracker.CurrentValue(field)
}

// Changed lists the tracked fields that differ from the baseline.
func (t *Tracked[T]) Changed() []string {
	return t.tracker.Changed()
}
