package scene

// DependencyIndex maps each watched entity id to the set of scenes
// referencing it. It is rebuilt atomically on scene (re)load and read-only
// between rebuilds; the engine's event loop is the only accessor, so no
// locking is needed.
type DependencyIndex struct {
	byEntity map[string]map[string]struct{}
}

// NewDependencyIndex creates an empty index.
func NewDependencyIndex() *DependencyIndex {
	return &DependencyIndex{byEntity: make(map[string]map[string]struct{})}
}

// Rebuild replaces the entire index from the given definitions. The new
// index is built aside and swapped in whole, so no reader ever observes a
// half-built mapping.
func (ix *DependencyIndex) Rebuild(defs []Definition) {
	next := make(map[string]map[string]struct{}, len(ix.byEntity))
	for _, def := range defs {
		for _, ent := range def.Entities {
			set, ok := next[ent.EntityID]
			if !ok {
				set = make(map[string]struct{})
				next[ent.EntityID] = set
			}
			set[def.ID] = struct{}{}
		}
	}
	ix.byEntity = next
}

// ScenesFor returns the ids of every scene that has at least one target
// for the given entity id. Returns nil for untracked entities. The
// returned set is the index's own; callers must not mutate it.
func (ix *DependencyIndex) ScenesFor(entityID string) map[string]struct{} {
	return ix.byEntity[entityID]
}

// EntityIDs returns all watched entity ids.
func (ix *DependencyIndex) EntityIDs() []string {
	ids := make([]string, 0, len(ix.byEntity))
	for id := range ix.byEntity {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of watched entities.
func (ix *DependencyIndex) Len() int {
	return len(ix.byEntity)
}
