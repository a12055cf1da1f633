package scene

import "errors"

// Domain errors for the scene package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, scene.ErrSceneNotFound) {
//	    // handle not found case
//	}
//
// None of them is fatal to the engine: a broken definition or an
// unresolved scene leaves every other scene serviceable.
var (
	// ErrSceneNotFound is returned when a scene id does not exist.
	ErrSceneNotFound = errors.New("scene: not found")

	// ErrInvalidDefinition is returned when definition validation fails.
	ErrInvalidDefinition = errors.New("scene: invalid definition")

	// ErrNoEntities is returned when a definition lists no entities.
	ErrNoEntities = errors.New("scene: no entities")

	// ErrDuplicateID is returned when a reload carries two definitions
	// with the same id. The first wins; the duplicate is skipped.
	ErrDuplicateID = errors.New("scene: duplicate id")

	// ErrDuplicateSlug is returned when two definitions slug to the same
	// value. The first wins; the duplicate is skipped.
	ErrDuplicateSlug = errors.New("scene: duplicate slug")

	// ErrUnresolvedEntity is returned when no host scene entity could be
	// resolved for a definition. Activation becomes a no-op.
	ErrUnresolvedEntity = errors.New("scene: no matching host scene entity")

	// ErrEngineClosed is returned when an operation is attempted after
	// the engine has shut down.
	ErrEngineClosed = errors.New("scene: engine closed")
)
