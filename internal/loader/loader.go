package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/scenewatch/scenewatch/internal/scene"
)

// Sentinel errors for scene-definition loading.
var (
	// ErrSourceNotFound is returned when the configured path does not exist.
	ErrSourceNotFound = errors.New("loader: scene source not found")

	// ErrSourceInvalid is returned when a file parses but is not a scene
	// list or mapping.
	ErrSourceInvalid = errors.New("loader: scene source invalid")
)

// Logger defines the logging interface used by the loader.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Loader reads scene definitions from a YAML file or a directory of YAML
// files. The path is re-read on every Load call, so a reload picks up
// edits without restarting.
type Loader struct {
	path   string
	logger Logger
}

// New creates a loader for the given path.
//
// Parameters:
//   - path: A YAML file, or a directory scanned for *.yaml / *.yml
//   - logger: Logger instance (nil for no logging)
func New(path string, logger Logger) *Loader {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Loader{path: path, logger: logger}
}

// Load reads and parses every scene definition at the configured path.
//
// Each YAML document may be a list of scene items or a single mapping.
// Items without an entities mapping are skipped: platform-provided scenes
// don't expose enough detail to infer a target state. Duplicate ids keep
// the first occurrence.
func (l *Loader) Load() ([]scene.Definition, error) {
	info, err := os.Stat(l.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, l.path)
	}

	var items []any
	if info.IsDir() {
		items, err = l.readDir(l.path)
	} else {
		items, err = readFile(l.path)
	}
	if err != nil {
		return nil, err
	}

	defs := l.parseItems(items)
	defs = l.dedupe(defs)

	l.logger.Info("scene definitions loaded", "path", l.path, "scenes", len(defs))
	return defs, nil
}

// readDir collects scene items from every YAML file in the directory,
// in filename order so load results are deterministic.
func (l *Loader) readDir(dir string) ([]any, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, dir)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var items []any
	for _, name := range names {
		fileItems, err := readFile(filepath.Join(dir, name))
		if err != nil {
			// One malformed file shouldn't take out the whole directory.
			l.logger.Warn("skipping scene file", "file", name, "error", err)
			continue
		}
		items = append(items, fileItems...)
	}
	return items, nil
}

// readFile parses one YAML file into scene items. A file holding a list
// contributes each element; a file holding a mapping contributes itself;
// an empty file contributes nothing.
func readFile(path string) ([]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceInvalid, path, err)
	}

	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		return v, nil
	case map[string]any:
		return []any{v}, nil
	default:
		return nil, fmt.Errorf("%w: %s: not a list or mapping", ErrSourceInvalid, path)
	}
}

// parseItems converts raw YAML items into definitions.
func (l *Loader) parseItems(items []any) []scene.Definition {
	var defs []scene.Definition

	for _, item := range items {
		mapping, ok := item.(map[string]any)
		if !ok {
			continue
		}

		entities, ok := mapping["entities"].(map[string]any)
		if !ok {
			// Not a declarative scene item.
			continue
		}

		name, _ := mapping["name"].(string)
		if strings.TrimSpace(name) == "" {
			name = "Unnamed Scene"
		}

		def := scene.Definition{Name: name}
		if id, ok := mapping["id"].(string); ok && strings.TrimSpace(id) != "" {
			def.ID = strings.TrimSpace(id)
		}
		if icon, ok := mapping["icon"].(string); ok {
			def.Icon = icon
		}

		def.Entities = parseEntities(entities)
		defs = append(defs, def)
	}

	return defs
}

// parseEntities normalises the per-entity expectations. Entities are
// sorted by id so a definition parses identically on every load.
func parseEntities(entities map[string]any) []scene.EntityTarget {
	ids := make([]string, 0, len(entities))
	for id := range entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	targets := make([]scene.EntityTarget, 0, len(ids))
	for _, id := range ids {
		targets = append(targets, normaliseTarget(id, entities[id]))
	}
	return targets
}

// normaliseTarget converts one entity's raw YAML value into a target.
//
// A mapping carries an explicit state and attributes. A bare scalar is
// shorthand for a desired state; booleans map to on/off.
func normaliseTarget(entityID string, value any) scene.EntityTarget {
	target := scene.EntityTarget{EntityID: entityID}

	switch v := value.(type) {
	case nil:
		// Presence only; state stays empty and matches nothing until
		// the definition is corrected.
	case map[string]any:
		attrs := make(map[string]any, len(v))
		for key, attr := range v {
			if key == "state" {
				target.State = formatScalar(attr)
				continue
			}
			attrs[key] = attr
		}
		if len(attrs) > 0 {
			target.Attributes = attrs
		}
	default:
		target.State = formatScalar(v)
	}

	return target
}

// formatScalar renders a YAML scalar as a state string.
func formatScalar(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool:
		if s {
			return scene.StateOn
		}
		return scene.StateOff
	case int:
		return strconv.Itoa(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// dedupe drops duplicate scene ids, keeping the first occurrence.
// Identity is normalised first so a declared id and a name that slugs to
// the same value collide here rather than at load time.
func (l *Loader) dedupe(defs []scene.Definition) []scene.Definition {
	seen := make(map[string]struct{}, len(defs))
	out := make([]scene.Definition, 0, len(defs))

	for _, def := range defs {
		id := def.ID
		if id == "" {
			id = scene.GenerateSlug(def.Name)
		}
		if _, dup := seen[id]; dup {
			l.logger.Warn("duplicate scene id, keeping first", "id", id)
			continue
		}
		seen[id] = struct{}{}
		out = append(out, def)
	}
	return out
}
