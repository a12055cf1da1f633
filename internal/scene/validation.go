package scene

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength = 100
	maxSlugLength = 50
	maxEntities   = 200
)

// ValidateDefinition checks a scene definition for structural problems.
// Returns an error describing the first failure found. Validation
// failures are per-scene: a broken definition never aborts a whole load.
func ValidateDefinition(def *Definition) error {
	if def == nil {
		return ErrInvalidDefinition
	}

	trimmed := strings.TrimSpace(def.Name)
	if trimmed == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidDefinition)
	}
	if len(def.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidDefinition, maxNameLength)
	}

	if len(def.Entities) == 0 {
		return ErrNoEntities
	}
	if len(def.Entities) > maxEntities {
		return fmt.Errorf("%w: exceeds maximum of %d entities", ErrInvalidDefinition, maxEntities)
	}

	for i, ent := range def.Entities {
		if ent.EntityID == "" {
			return fmt.Errorf("%w: entity[%d]: entity_id is required", ErrInvalidDefinition, i)
		}
	}

	return nil
}

// GenerateSlug creates a URL-safe slug from a name.
// It lowercases, replaces spaces/underscores/dots with hyphens, removes
// non-alphanumeric characters, and trims to maxSlugLength.
func GenerateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "_", "-")
	slug = strings.ReplaceAll(slug, ".", "-")

	var result strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	slug = result.String()

	// Clean up multiple/leading/trailing hyphens
	slug = strings.Trim(slug, "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}

	// Truncate to max length
	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
		slug = strings.TrimRight(slug, "-")
	}

	return slug
}

// GenerateID creates a new UUID for a scene without a usable identity.
func GenerateID() string {
	return uuid.New().String()
}

// normaliseIdentity fills in a definition's derived identity fields:
// the slug from the name, and the id from the declared id or the slug.
func normaliseIdentity(def *Definition) {
	if def.Slug == "" {
		def.Slug = GenerateSlug(def.Name)
	}
	if def.ID == "" {
		def.ID = def.Slug
	}
	if def.ID == "" {
		def.ID = GenerateID()
	}
}
