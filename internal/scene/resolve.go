package scene

import "strings"

// SceneEntityInfo describes one scene entity known to the host: its
// entity id, the id the host's scene registry declares for it (if any),
// and its friendly name.
type SceneEntityInfo struct {
	EntityID   string
	DeclaredID string
	Name       string
}

// Directory lists the scene entities the host currently knows about.
// Implementations are external collaborators (typically fed from a
// registry announcement stream); a nil Directory resolves nothing.
type Directory interface {
	SceneEntities() []SceneEntityInfo
}

// ResolveSceneEntity finds the host scene entity backing a definition.
//
// Lookup order:
//  1. Declared id match against the host registry's declared ids
//  2. Slugified-name guess ("scene.<slug>")
//  3. Friendly-name match (case-insensitive)
//
// Returns ErrUnresolvedEntity when nothing matches; activation of an
// unresolved scene silently no-ops with an error report.
func ResolveSceneEntity(def Definition, dir Directory) (string, error) {
	if dir == nil {
		return "", ErrUnresolvedEntity
	}

	entries := dir.SceneEntities()

	if def.ID != "" {
		for _, e := range entries {
			if e.DeclaredID == def.ID {
				return e.EntityID, nil
			}
		}
	}

	if def.Slug != "" {
		guess := "scene." + def.Slug
		for _, e := range entries {
			if e.EntityID == guess {
				return e.EntityID, nil
			}
		}
	}

	if def.Name != "" {
		for _, e := range entries {
			if strings.EqualFold(e.Name, def.Name) {
				return e.EntityID, nil
			}
		}
	}

	return "", ErrUnresolvedEntity
}

// guessCandidates precomputes the entity ids a scene is likely to appear
// under on the host. Used to recognise external activations even when the
// scene entity could not be resolved at load time.
func guessCandidates(def Definition) []string {
	var out []string
	if def.ID != "" {
		out = append(out, "scene."+def.ID)
		if s := GenerateSlug(def.ID); s != "" && s != def.ID {
			out = append(out, "scene."+s)
		}
	}
	if def.Slug != "" && def.Slug != def.ID {
		out = append(out, "scene."+def.Slug)
	}
	return out
}
