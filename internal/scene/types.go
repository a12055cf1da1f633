package scene

import "time"

// Definition is a declaratively-defined target configuration: a named set of
// entities, each with a desired state and attribute values. Definitions are
// immutable once loaded and replaced wholesale on reload.
type Definition struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`

	// UI metadata (optional)
	Icon string `json:"icon,omitempty"`

	// Target entities (ordered as declared)
	Entities []EntityTarget `json:"entities"`
}

// EntityTarget is one entity's desired state within a scene definition.
type EntityTarget struct {
	// Target entity
	EntityID string `json:"entity_id"`

	// Desired state string (e.g. "on", "off", "playing")
	State string `json:"state"`

	// Desired attribute values. Only the keys listed here are compared;
	// extra attributes on the live entity are ignored.
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Snapshot is the live state of one entity as reported by the host.
// Snapshots are read-only input; the engine copies what it keeps.
type Snapshot struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Available  bool           `json:"available"`
}

// States the host reports for entities that cannot currently be read.
const (
	StateUnavailable = "unavailable"
	StateUnknown     = "unknown"
	StateOff         = "off"
	StateOn          = "on"
)

// MatchResult is the per-entity outcome of evaluating a target against a
// live snapshot. Recomputed on every relevant event.
type MatchResult int

// MatchResult values.
const (
	// ResultUnknown means the entity has not been evaluated yet.
	ResultUnknown MatchResult = iota

	// ResultMatched means state and all declared attributes match.
	ResultMatched

	// ResultMismatched means the state or at least one attribute differs.
	ResultMismatched

	// ResultIgnored means the entity is unavailable and unavailable
	// entities are configured to be ignored.
	ResultIgnored

	// ResultExcluded means the entity id matched an exclusion pattern.
	ResultExcluded
)

// String returns the lowercase name of the match result.
func (m MatchResult) String() string {
	switch m {
	case ResultMatched:
		return "matched"
	case ResultMismatched:
		return "mismatched"
	case ResultIgnored:
		return "ignored"
	case ResultExcluded:
		return "excluded"
	default:
		return "unknown"
	}
}

// Options is the engine configuration bundle.
type Options struct {
	// SettleTime is the grace period after an activation or deactivation
	// trigger before raw-active is trusted.
	SettleTime time.Duration

	// NumberTolerance is the maximum absolute difference for numeric
	// attribute values to still count as matching.
	NumberTolerance float64

	// IgnoreUnavailable treats unavailable/unknown entities as ignored
	// rather than mismatched.
	IgnoreUnavailable bool

	// IgnoreAttributes satisfies an entity on a state match alone.
	IgnoreAttributes bool

	// ExcludeEnabled enables exclusion-pattern matching.
	ExcludeEnabled bool

	// ExcludePatterns are glob patterns for entity ids excluded from
	// matching and from turn-off commands.
	ExcludePatterns []string
}

// Default option values.
const (
	DefaultSettleTime      = 1500 * time.Millisecond
	DefaultNumberTolerance = 4
	DefaultExcludePattern  = "switch.circadian_lighting*"
)

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		SettleTime:        DefaultSettleTime,
		NumberTolerance:   DefaultNumberTolerance,
		IgnoreUnavailable: true,
		ExcludeEnabled:    true,
		ExcludePatterns:   []string{DefaultExcludePattern},
	}
}

// normalised clamps negative values so the engine never schedules
// negative deadlines or tolerances.
func (o Options) normalised() Options {
	if o.SettleTime < 0 {
		o.SettleTime = 0
	}
	if o.NumberTolerance < 0 {
		o.NumberTolerance = 0
	}
	return o
}

// DeepCopy creates a complete independent copy of the Definition.
// Attribute maps are cloned so modifications to the copy do not affect
// the original.
func (d *Definition) DeepCopy() *Definition {
	if d == nil {
		return nil
	}

	cpy := *d
	if d.Entities != nil {
		cpy.Entities = make([]EntityTarget, len(d.Entities))
		for i, ent := range d.Entities {
			cpy.Entities[i] = ent
			cpy.Entities[i].Attributes = deepCopyMap(ent.Attributes)
		}
	}
	return &cpy
}

// DeepCopy creates an independent copy of the Snapshot.
func (s *Snapshot) DeepCopy() *Snapshot {
	if s == nil {
		return nil
	}
	cpy := *s
	cpy.Attributes = deepCopyMap(s.Attributes)
	return &cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		// Primitives are immutable
		return v
	}
}
