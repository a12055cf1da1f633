package scene

// Counts is one scene's match tally. Matched, mismatched and ignored sum
// to Total; pattern-excluded entities are tracked separately and never
// counted toward the others.
type Counts struct {
	Total      int `json:"total"`
	Matched    int `json:"matched"`
	Mismatched int `json:"mismatched"`
	Ignored    int `json:"ignored"`
	Excluded   int `json:"excluded"`
}

// ActivityTracker maintains one scene's satisfied/unsatisfied tally over
// its member entities and derives the raw-active signal.
//
// Per entity event it re-evaluates only the changed entity, removes that
// entity's previous contribution and adds the new one — O(1) regardless
// of scene size. The only full rescan is Rescan(), used on scene load.
type ActivityTracker struct {
	opts    Options
	targets map[string]EntityTarget
	order   []string // entity ids in declaration order

	// watched caches the attribute keys that matter per entity, so
	// irrelevant updates can be filtered cheaply.
	watched map[string][]string

	results   map[string]MatchResult
	counts    Counts
	rawActive bool
}

// NewActivityTracker creates a tracker for one scene definition.
// All entities start as ResultUnknown until Rescan or an entity event.
func NewActivityTracker(def Definition, opts Options) *ActivityTracker {
	t := &ActivityTracker{
		opts:    opts,
		targets: make(map[string]EntityTarget, len(def.Entities)),
		order:   make([]string, 0, len(def.Entities)),
		watched: make(map[string][]string, len(def.Entities)),
		results: make(map[string]MatchResult, len(def.Entities)),
	}
	for _, ent := range def.Entities {
		if _, dup := t.targets[ent.EntityID]; dup {
			continue
		}
		t.targets[ent.EntityID] = ent
		t.order = append(t.order, ent.EntityID)
		t.results[ent.EntityID] = ResultUnknown

		t.count(ResultUnknown, +1)

		keys := make([]string, 0, len(ent.Attributes))
		for k := range ent.Attributes {
			keys = append(keys, k)
		}
		t.watched[ent.EntityID] = keys
	}
	t.derive()
	return t
}

// Rescan re-evaluates every member entity from scratch using the given
// snapshot lookup. This is the only allowed full rescan; it runs on scene
// (re)load.
func (t *ActivityTracker) Rescan(lookup func(entityID string) *Snapshot) {
	t.counts = Counts{}
	for _, id := range t.order {
		var live *Snapshot
		if lookup != nil {
			live = lookup(id)
		}
		res := Evaluate(t.targets[id], live, t.opts)
		t.results[id] = res
		t.count(res, +1)
	}
	t.derive()
}

// OnEntityEvent re-evaluates the one changed entity and updates the tally
// by delta. Returns whether the raw-active signal changed. Entities not
// part of this scene are ignored.
func (t *ActivityTracker) OnEntityEvent(entityID string, live *Snapshot) bool {
	target, ok := t.targets[entityID]
	if !ok {
		return false
	}

	old := t.results[entityID]
	res := Evaluate(target, live, t.opts)
	if res == old {
		return false
	}

	t.count(old, -1)
	t.count(res, +1)
	t.results[entityID] = res

	prev := t.rawActive
	t.derive()
	return t.rawActive != prev
}

// Interesting reports whether an update could affect this scene's match
// status: the state changed, or one of the attributes the scene declares
// for that entity changed. First-seen and availability transitions are
// always interesting.
func (t *ActivityTracker) Interesting(entityID string, old, live *Snapshot) bool {
	target, ok := t.targets[entityID]
	if !ok {
		return false
	}
	if old == nil || live == nil {
		return true
	}
	if old.Available != live.Available {
		return true
	}
	if target.State != "" && old.State != live.State {
		return true
	}
	if t.opts.IgnoreAttributes {
		return false
	}
	for _, key := range t.watched[entityID] {
		if !valuesMatch(attrOrNil(old, key), attrOrNil(live, key), 0) {
			return true
		}
	}
	return false
}

func attrOrNil(s *Snapshot, key string) any {
	if s == nil || s.Attributes == nil {
		return nil
	}
	return s.Attributes[key]
}

// RawActive returns the unfiltered, instantaneous boolean derived purely
// from current entity states matching the definition.
func (t *ActivityTracker) RawActive() bool {
	return t.rawActive
}

// Counts returns the current tally.
func (t *ActivityTracker) Counts() Counts {
	return t.counts
}

// Results returns a copy of the per-entity match results.
func (t *ActivityTracker) Results() map[string]MatchResult {
	out := make(map[string]MatchResult, len(t.results))
	for k, v := range t.results {
		out[k] = v
	}
	return out
}

// MemberEntityIDs returns the scene's entity ids in declaration order.
// When skipExcluded is set, pattern-excluded entities are omitted (used
// for turn-off commands). The pattern is checked directly rather than the
// current result: an excluded entity that happens to be unavailable still
// must not receive commands.
func (t *ActivityTracker) MemberEntityIDs(skipExcluded bool) []string {
	out := make([]string, 0, len(t.order))
	for _, id := range t.order {
		if skipExcluded && t.opts.ExcludeEnabled && MatchesAny(t.opts.ExcludePatterns, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// count applies one result's contribution to the tally. ResultUnknown
// entities count as mismatched: an unevaluated entity cannot satisfy the
// scene.
func (t *ActivityTracker) count(res MatchResult, delta int) {
	switch res {
	case ResultExcluded:
		t.counts.Excluded += delta
		return
	case ResultMatched:
		t.counts.Matched += delta
	case ResultIgnored:
		t.counts.Ignored += delta
	default:
		t.counts.Mismatched += delta
	}
	t.counts.Total += delta
}

// derive recomputes raw-active from the tally. A scene is raw-active when
// nothing mismatches, every available entity matches, and at least one
// entity actually matched — a scene with zero matchable entities is never
// active (guards against vacuous truth).
func (t *ActivityTracker) derive() {
	if t.counts.Mismatched > 0 {
		t.rawActive = false
		return
	}
	matchable := t.counts.Total - t.counts.Ignored
	t.rawActive = matchable > 0 && t.counts.Matched == matchable
}
