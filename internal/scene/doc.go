// Package scene provides the scene-activity engine for scenewatch.
//
// A scene is a named target configuration: a set of entities, each with a
// desired state and attribute values. The engine infers from the live
// entity-state stream whether each scene is currently active and exposes
// that as a debounced, controllable boolean.
//
// Architecture:
//
//	entity event ──▶ DependencyIndex ──▶ ActivityTracker (per scene)
//	                  (index.go)           (tracker.go, matcher.go)
//	                                            │ raw-active
//	                                            ▼
//	activate/deactivate ─────────────▶ SettleController (settle.go)
//	commands, timers                            │ published boolean
//	                                            ▼
//	                                    listeners (switch mirror, API)
//
// # Key Types
//
//   - Definition: Immutable scene definition (entities + desired values)
//   - Snapshot: Live entity state supplied per event (read-only input)
//   - ActivityTracker: O(1)-per-event satisfied/unsatisfied tally
//   - SettleController: Per-scene debounce state machine with epoch-based
//     stale-timer discard
//   - Engine: Orchestrator; owns the registry of scenes and the single
//     serialized event loop
//
// # Thread Safety
//
// All Engine methods are safe for concurrent use. Internally there is no
// concurrent mutation: events, timer firings and commands are serialized
// onto one processing queue and handled by a single goroutine.
//
// # Usage
//
//	engine := scene.NewEngine(scene.DefaultOptions(), commander, directory, log)
//	engine.Start(ctx)
//	defer engine.Close()
//
//	if errs := engine.LoadScenes(defs); len(errs) > 0 {
//	    // per-scene problems; the rest of the load succeeded
//	}
//
//	engine.HandleEntityEvent(snap)
//	active := engine.IsActive("movie-night")
package scene
