package scene

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Engine.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Commander dispatches the actual device commands. Calls are
// fire-and-forget from the engine's perspective: failures are logged and
// never roll back the settle state machine (optimism is the point).
type Commander interface {
	// ActivateScene asks the host to activate the scene entity.
	ActivateScene(sceneEntityID string) error

	// TurnOffEntities asks the host to turn off the given entities.
	TurnOffEntities(entityIDs []string) error
}

// ActiveChangedFunc is notified whenever a scene's published boolean
// changes. Callbacks run on the engine's event loop and must not block.
type ActiveChangedFunc func(sceneID string, active bool)

// SceneStatus is a read-only view of one scene's runtime state.
type SceneStatus struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Slug      string            `json:"slug"`
	Icon      string            `json:"icon,omitempty"`
	EntityID  string            `json:"entity_id,omitempty"`
	Active    bool              `json:"active"`
	Phase     string            `json:"phase"`
	RawActive bool              `json:"raw_active"`
	Counts    Counts            `json:"counts"`
	Entities  map[string]string `json:"entities"`
}

// runtime is the per-scene state owned by the event loop.
type runtime struct {
	def      Definition
	entityID string // resolved host scene entity, "" when unresolved
	tracker  *ActivityTracker
	settle   *SettleController
}

// Engine routes entity-change events through the dependency index to the
// affected activity trackers and publishes the debounced boolean via the
// settle controllers.
//
// Concurrency model: one logical thread of control. Entity events, timer
// deadlines and explicit commands are serialized onto a single processing
// queue and handled by one goroutine, so tracker and settle state is
// never mutated concurrently. Timer firings are just another queued
// event; stale ones are detected by epoch and discarded.
type Engine struct {
	opts      Options
	logger    Logger
	commander Commander
	directory Directory

	events  chan event
	closing chan struct{}
	done    chan struct{}
	once    sync.Once

	// Loop-owned state. Touched only by the event loop goroutine.
	runtimes  map[string]*runtime
	index     *DependencyIndex
	snapshots map[string]*Snapshot
	byEntity  map[string]string // resolved scene entity id -> scene id
	byGuess   map[string]string // guessed scene entity id -> scene id

	// published is the externally-observable boolean per scene, updated
	// only by the loop, read by IsActive.
	mu        sync.RWMutex
	published map[string]bool

	notify []ActiveChangedFunc
}

// event is a unit of work on the serialized processing queue.
type event any

type entityEvent struct{ snap Snapshot }

type commandEvent struct {
	sceneID string
	on      bool
	reply   chan error
}

type externalEvent struct {
	entityID   string
	transition time.Duration
}

type timerEvent struct {
	sceneID string
	epoch   uint64
}

type loadEvent struct {
	defs  []Definition
	reply chan []error
}

type queryEvent struct{ reply chan []SceneStatus }

// eventQueueSize bounds the processing queue. Bursty hardware transitions
// produce at most a few events per device; 256 gives ample headroom.
const eventQueueSize = 256

// NewEngine creates a scene engine. The engine is inert until Start is
// called: LoadScenes, Activate, Deactivate, Status and Statuses enqueue
// onto the processing queue and wait for the loop to answer, so they
// must not be called before Start.
//
// Parameters:
//   - opts: Matching and settle configuration (negative values clamped)
//   - commander: Device command dispatcher (may be nil; commands are then dropped with a warning)
//   - directory: Host scene directory for entity resolution (may be nil)
//   - logger: Logger instance (nil for no logging)
func NewEngine(opts Options, commander Commander, directory Directory, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		opts:      opts.normalised(),
		logger:    logger,
		commander: commander,
		directory: directory,
		events:    make(chan event, eventQueueSize),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
		runtimes:  make(map[string]*runtime),
		index:     NewDependencyIndex(),
		snapshots: make(map[string]*Snapshot),
		byEntity:  make(map[string]string),
		byGuess:   make(map[string]string),
		published: make(map[string]bool),
	}
}

// OnActiveChanged registers a published-state callback. Must be called
// before Start.
func (e *Engine) OnActiveChanged(fn ActiveChangedFunc) {
	e.notify = append(e.notify, fn)
}

// Start launches the event loop. The engine stops when ctx is cancelled
// or Close is called.
func (e *Engine) Start(ctx context.Context) {
	go e.loop(ctx)
}

// Close stops the event loop and waits for it to drain.
func (e *Engine) Close() {
	e.once.Do(func() { close(e.closing) })
	<-e.done
}

// LoadScenes validates and installs a new set of scene definitions,
// replacing any previous set. The dependency index is rebuilt atomically
// and every tracker re-initialised from the latest known snapshots (the
// one allowed full rescan). Invalid or duplicate definitions are reported
// per scene and skipped; the load continues for the rest.
//
// Safe to call while events are flowing: the reload is itself a queued
// event, so no entity event is ever matched against a half-updated index.
func (e *Engine) LoadScenes(defs []Definition) []error {
	reply := make(chan []error, 1)
	if err := e.enqueue(loadEvent{defs: defs, reply: reply}); err != nil {
		return []error{err}
	}
	select {
	case errs := <-reply:
		return errs
	case <-e.done:
		return []error{ErrEngineClosed}
	}
}

// HandleEntityEvent feeds one live entity snapshot into the engine.
// Unwatched entities are dropped after an O(1) index lookup.
func (e *Engine) HandleEntityEvent(snap Snapshot) {
	cp := snap.DeepCopy()
	if err := e.enqueue(entityEvent{snap: *cp}); err != nil {
		e.logger.Warn("entity event dropped", "entity_id", snap.EntityID, "error", err)
	}
}

// Activate triggers a scene's optimistic activation: the published
// boolean flips on immediately, the underlying activation command is
// issued exactly once, and raw-active is re-checked after the settle
// window. Returns ErrSceneNotFound or ErrUnresolvedEntity when the scene
// cannot be activated; the engine stays serviceable either way.
func (e *Engine) Activate(sceneID string) error {
	return e.command(sceneID, true)
}

// Deactivate turns off a scene: the turn-off command for its
// (non-excluded) member entities is issued exactly once and raw-active
// changes are suppressed for the settle window.
func (e *Engine) Deactivate(sceneID string) error {
	return e.command(sceneID, false)
}

func (e *Engine) command(sceneID string, on bool) error {
	reply := make(chan error, 1)
	if err := e.enqueue(commandEvent{sceneID: sceneID, on: on, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-e.done:
		return ErrEngineClosed
	}
}

// NotifyExternalActivation reports that a scene entity was activated by
// some external caller. The matching scene (resolved or guessed) gets an
// optimistic window; when the activation carried a transition duration,
// the window extends to at least that long. Unknown entity ids are
// ignored.
func (e *Engine) NotifyExternalActivation(sceneEntityID string, transition time.Duration) {
	_ = e.enqueue(externalEvent{entityID: sceneEntityID, transition: transition})
}

// IsActive returns the published, settle-filtered boolean for a scene.
// False for unknown scenes.
func (e *Engine) IsActive(sceneID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.published[sceneID]
}

// Statuses returns a point-in-time view of every scene, sorted by name.
func (e *Engine) Statuses() ([]SceneStatus, error) {
	reply := make(chan []SceneStatus, 1)
	if err := e.enqueue(queryEvent{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case out := <-reply:
		return out, nil
	case <-e.done:
		return nil, ErrEngineClosed
	}
}

// Status returns one scene's runtime view.
func (e *Engine) Status(sceneID string) (SceneStatus, error) {
	all, err := e.Statuses()
	if err != nil {
		return SceneStatus{}, err
	}
	for _, st := range all {
		if st.ID == sceneID {
			return st, nil
		}
	}
	return SceneStatus{}, ErrSceneNotFound
}

// enqueue places an event on the processing queue unless the engine has
// shut down.
func (e *Engine) enqueue(ev event) error {
	select {
	case e.events <- ev:
		return nil
	case <-e.done:
		return ErrEngineClosed
	}
}

// loop is the single thread of control. All tracker and settle mutation
// happens here.
func (e *Engine) loop(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.closing:
			return
		case ev := <-e.events:
			e.dispatch(ev)
		}
	}
}

func (e *Engine) dispatch(ev event) {
	switch v := ev.(type) {
	case entityEvent:
		e.handleEntity(v.snap)
	case commandEvent:
		v.reply <- e.handleCommand(v.sceneID, v.on)
	case externalEvent:
		e.handleExternal(v.entityID, v.transition)
	case timerEvent:
		e.handleTimer(v.sceneID, v.epoch)
	case loadEvent:
		v.reply <- e.handleLoad(v.defs)
	case queryEvent:
		v.reply <- e.handleQuery()
	}
}

func (e *Engine) handleEntity(snap Snapshot) {
	old := e.snapshots[snap.EntityID]
	e.snapshots[snap.EntityID] = &snap

	for sceneID := range e.index.ScenesFor(snap.EntityID) {
		rt, ok := e.runtimes[sceneID]
		if !ok {
			continue
		}
		if !rt.tracker.Interesting(snap.EntityID, old, &snap) {
			continue
		}
		if !rt.tracker.OnEntityEvent(snap.EntityID, &snap) {
			continue
		}

		raw := rt.tracker.RawActive()
		e.logger.Debug("raw-active changed",
			"scene_id", sceneID,
			"entity_id", snap.EntityID,
			"raw_active", raw,
		)

		// Open settle/suppression windows ignore raw transitions; only
		// the steady states react.
		if rt.settle.RawActiveChanged(raw) {
			e.publish(sceneID, rt.settle.Published())
		}
	}
}

func (e *Engine) handleCommand(sceneID string, on bool) error {
	rt, ok := e.runtimes[sceneID]
	if !ok {
		e.logger.Error("command for unknown scene", "scene_id", sceneID, "on", on)
		return ErrSceneNotFound
	}

	if on {
		return e.activate(sceneID, rt)
	}
	e.deactivate(sceneID, rt)
	return nil
}

func (e *Engine) activate(sceneID string, rt *runtime) error {
	// Re-resolve lazily: the host scene entity may not have existed at
	// load time.
	if rt.entityID == "" {
		id, err := ResolveSceneEntity(rt.def, e.directory)
		if err != nil {
			e.logger.Error("cannot activate unresolved scene",
				"scene_id", sceneID, "error", err)
			return fmt.Errorf("%w: %s", ErrUnresolvedEntity, sceneID)
		}
		rt.entityID = id
		e.byEntity[id] = sceneID
	}

	e.schedule(sceneID, rt.settle.TriggerActivate(e.opts.SettleTime))
	e.publish(sceneID, rt.settle.Published())

	entityID := rt.entityID
	if e.commander == nil {
		e.logger.Warn("no commander configured, activation not dispatched",
			"scene_id", sceneID, "entity_id", entityID)
		return nil
	}
	// Fire-and-forget: the settle window already committed to optimism.
	go func() {
		if err := e.commander.ActivateScene(entityID); err != nil {
			e.logger.Error("scene activation command failed",
				"scene_id", sceneID, "entity_id", entityID, "error", err)
		}
	}()
	return nil
}

func (e *Engine) deactivate(sceneID string, rt *runtime) {
	e.schedule(sceneID, rt.settle.TriggerDeactivate(e.opts.SettleTime))
	e.publish(sceneID, rt.settle.Published())

	entityIDs := rt.tracker.MemberEntityIDs(true)
	if len(entityIDs) == 0 {
		return
	}
	if e.commander == nil {
		e.logger.Warn("no commander configured, turn-off not dispatched",
			"scene_id", sceneID)
		return
	}
	go func() {
		if err := e.commander.TurnOffEntities(entityIDs); err != nil {
			e.logger.Error("scene turn-off command failed",
				"scene_id", sceneID, "error", err)
		}
	}()
}

func (e *Engine) handleExternal(entityID string, transition time.Duration) {
	sceneID, ok := e.byEntity[entityID]
	if !ok {
		sceneID, ok = e.byGuess[entityID]
		if !ok {
			return
		}
	}
	rt, ok := e.runtimes[sceneID]
	if !ok {
		return
	}

	// Late-bind the mapping when only a guess matched.
	if rt.entityID == "" {
		rt.entityID = entityID
		e.byEntity[entityID] = sceneID
	}

	delay := e.opts.SettleTime
	if transition > delay {
		delay = transition
	}

	e.logger.Debug("external activation observed",
		"scene_id", sceneID, "entity_id", entityID, "settle", delay)

	e.schedule(sceneID, rt.settle.TriggerActivate(delay))
	e.publish(sceneID, rt.settle.Published())
}

func (e *Engine) handleTimer(sceneID string, epoch uint64) {
	rt, ok := e.runtimes[sceneID]
	if !ok {
		return
	}

	retry, current := rt.settle.DeadlineElapsed(epoch, rt.tracker.RawActive())
	if !current {
		// Superseded by a later trigger; not an error.
		e.logger.Debug("stale timer discarded", "scene_id", sceneID, "epoch", epoch)
		return
	}
	if retry.valid() {
		e.schedule(sceneID, retry)
	}
	e.publish(sceneID, rt.settle.Published())
}

func (e *Engine) handleLoad(defs []Definition) []error {
	var errs []error

	seenIDs := make(map[string]struct{}, len(defs))
	seenSlugs := make(map[string]struct{}, len(defs))
	next := make(map[string]*runtime, len(defs))
	accepted := make([]Definition, 0, len(defs))

	for i := range defs {
		def := *defs[i].DeepCopy()
		normaliseIdentity(&def)

		if err := ValidateDefinition(&def); err != nil {
			errs = append(errs, fmt.Errorf("scene %q: %w", def.Name, err))
			continue
		}
		if _, dup := seenIDs[def.ID]; dup {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateID, def.ID))
			continue
		}
		if _, dup := seenSlugs[def.Slug]; dup {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateSlug, def.Slug))
			continue
		}
		seenIDs[def.ID] = struct{}{}
		seenSlugs[def.Slug] = struct{}{}

		rt := &runtime{
			def:     def,
			tracker: NewActivityTracker(def, e.opts),
			settle:  NewSettleController(),
		}
		rt.tracker.Rescan(e.lookupSnapshot)

		if id, err := ResolveSceneEntity(def, e.directory); err == nil {
			rt.entityID = id
		} else {
			e.logger.Warn("scene entity unresolved", "scene_id", def.ID, "name", def.Name)
		}

		// Reload does not fabricate activation: Confirmed only when the
		// scene already matches, otherwise Idle-Off.
		rt.settle.Reset(rt.tracker.RawActive())

		next[def.ID] = rt
		accepted = append(accepted, def)
	}

	// Atomic swap: index, runtimes and lookup maps replaced together
	// before any further event is processed.
	e.index.Rebuild(accepted)
	e.runtimes = next

	e.byEntity = make(map[string]string, len(next))
	e.byGuess = make(map[string]string)
	for id, rt := range next {
		if rt.entityID != "" {
			e.byEntity[rt.entityID] = id
		}
		for _, guess := range guessCandidates(rt.def) {
			if _, taken := e.byGuess[guess]; !taken {
				e.byGuess[guess] = id
			}
		}
	}

	// Drop published entries for scenes that no longer exist, then
	// publish the (possibly changed) state of every loaded scene.
	e.mu.Lock()
	for id := range e.published {
		if _, ok := next[id]; !ok {
			delete(e.published, id)
		}
	}
	e.mu.Unlock()

	for id, rt := range next {
		e.publish(id, rt.settle.Published())
	}

	e.logger.Info("scenes loaded",
		"scenes", len(next),
		"entities", e.index.Len(),
		"errors", len(errs),
	)
	return errs
}

func (e *Engine) handleQuery() []SceneStatus {
	out := make([]SceneStatus, 0, len(e.runtimes))
	for id, rt := range e.runtimes {
		results := rt.tracker.Results()
		entities := make(map[string]string, len(results))
		for eid, res := range results {
			entities[eid] = res.String()
		}
		out = append(out, SceneStatus{
			ID:        id,
			Name:      rt.def.Name,
			Slug:      rt.def.Slug,
			Icon:      rt.def.Icon,
			EntityID:  rt.entityID,
			Active:    rt.settle.Published(),
			Phase:     rt.settle.Phase().String(),
			RawActive: rt.tracker.RawActive(),
			Counts:    rt.tracker.Counts(),
			Entities:  entities,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (e *Engine) lookupSnapshot(entityID string) *Snapshot {
	return e.snapshots[entityID]
}

// schedule arms a settle deadline. The firing is delivered as a queued
// event carrying the epoch it was scheduled under; a new trigger for the
// scene bumps the epoch, so superseded firings are discarded on arrival
// rather than cancelled.
func (e *Engine) schedule(sceneID string, t Timer) {
	if !t.valid() {
		return
	}
	time.AfterFunc(t.Delay, func() {
		select {
		case e.events <- timerEvent{sceneID: sceneID, epoch: t.Epoch}:
		case <-e.done:
		}
	})
}

// publish records a scene's published boolean and notifies listeners when
// it actually changed. Duplicate publishes are absorbed here, which is
// what makes event handling idempotent for observers.
func (e *Engine) publish(sceneID string, active bool) {
	e.mu.Lock()
	prev, seen := e.published[sceneID]
	if seen && prev == active {
		e.mu.Unlock()
		return
	}
	e.published[sceneID] = active
	e.mu.Unlock()

	e.logger.Info("scene active changed", "scene_id", sceneID, "active", active)
	for _, fn := range e.notify {
		fn(sceneID, active)
	}
}
