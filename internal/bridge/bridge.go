package bridge

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/scenewatch/scenewatch/internal/infrastructure/mqtt"
	"github.com/scenewatch/scenewatch/internal/scene"
)

// Payload constants for the switch mirror (Home Assistant MQTT switch
// convention).
const (
	PayloadOn  = "ON"
	PayloadOff = "OFF"

	// subscribeQoS is the QoS level for all bridge subscriptions.
	subscribeQoS = 1

	// commandQoS is the QoS level for outgoing commands.
	commandQoS = 1
)

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// PublishRetained sends a retained message at QoS 1.
	PublishRetained(topic string, payload []byte) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// SceneEngine is the subset of the scene engine the bridge drives.
type SceneEngine interface {
	// HandleEntityEvent feeds one live entity snapshot into the engine.
	HandleEntityEvent(snap scene.Snapshot)

	// Activate triggers optimistic scene activation.
	Activate(sceneID string) error

	// Deactivate turns the scene's member entities off.
	Deactivate(sceneID string) error

	// NotifyExternalActivation reports an activation we did not issue.
	NotifyExternalActivation(sceneEntityID string, transition time.Duration)
}

// Logger defines the logging interface used by the bridge.
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

// sceneMeta is the per-scene metadata the bridge mirrors to MQTT.
type sceneMeta struct {
	ID       string
	Slug     string
	Name     string
	Icon     string
	EntityID string
	Entities []string
}

// Bridge connects the scene engine to the MQTT broker.
//
// Inbound: entity state snapshots, switch set commands, externally
// observed scene activations, and the host's scene registry. Outbound:
// scene activation / turn-off commands and the retained per-scene switch
// mirror.
//
// The bridge also implements scene.Commander (outgoing commands) and
// scene.Directory (registry-fed entity resolution).
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt   MQTTClient
	engine SceneEngine
	topics mqtt.Topics
	logger Logger

	// Scene metadata, replaced wholesale by UpdateScenes.
	metaMu sync.RWMutex
	bySlug map[string]string
	meta   map[string]sceneMeta

	// Host scene registry, replaced on every registry announcement.
	dirMu   sync.RWMutex
	entries []scene.SceneEntityInfo

	registryOnce  sync.Once
	registryReady chan struct{}
}

// New creates a bridge. Call Start to subscribe.
//
// Parameters:
//   - client: Connected MQTT client
//   - engine: Scene engine receiving inbound events
//   - logger: Logger instance (nil for no logging)
func New(client MQTTClient, engine SceneEngine, logger Logger) *Bridge {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bridge{
		mqtt:          client,
		engine:        engine,
		logger:        logger,
		bySlug:        make(map[string]string),
		meta:          make(map[string]sceneMeta),
		registryReady: make(chan struct{}),
	}
}

// Start subscribes to all inbound topics.
func (b *Bridge) Start() error {
	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{b.topics.AllEntityStates(), b.handleEntityState},
		{b.topics.AllSwitchSets(), b.handleSwitchSet},
		{b.topics.ActivationEvent(), b.handleActivationEvent},
		{b.topics.SceneRegistry(), b.handleRegistry},
	}

	for _, sub := range subs {
		if err := b.mqtt.Subscribe(sub.topic, subscribeQoS, sub.handler); err != nil {
			return fmt.Errorf("subscribe to %s: %w", sub.topic, err)
		}
	}

	b.logger.Info("bridge started", "subscriptions", len(subs))
	return nil
}

// RegistryReady returns a channel closed after the first scene registry
// announcement. Startup waits on it (with a timeout) so the initial scene
// load can resolve entities from a retained registry message.
func (b *Bridge) RegistryReady() <-chan struct{} {
	return b.registryReady
}

// ─── Inbound Handlers ───

// statePayload is the JSON body published under scenewatch/state/{entity_id}.
type statePayload struct {
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

func (b *Bridge) handleEntityState(topic string, payload []byte) error {
	entityID := b.topics.EntityFromStateTopic(topic)
	if entityID == "" {
		return fmt.Errorf("not an entity state topic: %s", topic)
	}

	var body statePayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return fmt.Errorf("parse state for %s: %w", entityID, err)
	}

	b.engine.HandleEntityEvent(scene.Snapshot{
		EntityID:   entityID,
		State:      body.State,
		Attributes: body.Attributes,
		Available:  body.State != scene.StateUnavailable && body.State != scene.StateUnknown,
	})
	return nil
}

func (b *Bridge) handleSwitchSet(topic string, payload []byte) error {
	slug := b.topics.SlugFromSetTopic(topic)
	if slug == "" {
		return fmt.Errorf("not a switch set topic: %s", topic)
	}

	b.metaMu.RLock()
	sceneID, known := b.bySlug[slug]
	b.metaMu.RUnlock()
	if !known {
		b.logger.Warn("switch command for unknown scene", "slug", slug)
		return nil
	}

	var err error
	switch strings.ToUpper(strings.TrimSpace(string(payload))) {
	case PayloadOn:
		err = b.engine.Activate(sceneID)
	case PayloadOff:
		err = b.engine.Deactivate(sceneID)
	default:
		return fmt.Errorf("switch %s: unknown payload %q", slug, payload)
	}
	if err != nil {
		b.logger.Error("switch command failed", "slug", slug, "error", err)
	}
	return err
}

// activationPayload is the JSON body on scenewatch/event/activation.
// Transition is in seconds, matching the host's scene service call.
type activationPayload struct {
	EntityID   string  `json:"entity_id"`
	Transition float64 `json:"transition,omitempty"`
}

func (b *Bridge) handleActivationEvent(_ string, payload []byte) error {
	var body activationPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return fmt.Errorf("parse activation event: %w", err)
	}
	if body.EntityID == "" {
		return fmt.Errorf("activation event without entity_id")
	}

	transition := time.Duration(body.Transition * float64(time.Second))
	b.engine.NotifyExternalActivation(body.EntityID, transition)
	return nil
}

// registryEntry is one scene entity in the host's registry announcement.
type registryEntry struct {
	EntityID string `json:"entity_id"`
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
}

func (b *Bridge) handleRegistry(_ string, payload []byte) error {
	var raw []registryEntry
	if err := json.Unmarshal(payload, &raw); err != nil {
		return fmt.Errorf("parse scene registry: %w", err)
	}

	entries := make([]scene.SceneEntityInfo, 0, len(raw))
	for _, e := range raw {
		if e.EntityID == "" {
			continue
		}
		entries = append(entries, scene.SceneEntityInfo{
			EntityID:   e.EntityID,
			DeclaredID: e.ID,
			Name:       e.Name,
		})
	}

	b.dirMu.Lock()
	b.entries = entries
	b.dirMu.Unlock()

	b.registryOnce.Do(func() { close(b.registryReady) })
	b.logger.Debug("scene registry updated", "entities", len(entries))
	return nil
}

// ─── scene.Directory ───

// SceneEntities returns the host scene entities from the latest registry
// announcement.
func (b *Bridge) SceneEntities() []scene.SceneEntityInfo {
	b.dirMu.RLock()
	defer b.dirMu.RUnlock()
	out := make([]scene.SceneEntityInfo, len(b.entries))
	copy(out, b.entries)
	return out
}

// ─── scene.Commander ───

// sceneCommand is the JSON body for outgoing activation commands.
type sceneCommand struct {
	EntityID string `json:"entity_id"`
}

// turnOffCommand is the JSON body for outgoing turn-off commands.
type turnOffCommand struct {
	EntityIDs []string `json:"entity_ids"`
}

// ActivateScene publishes an activation command for the host scene entity.
func (b *Bridge) ActivateScene(sceneEntityID string) error {
	payload, err := json.Marshal(sceneCommand{EntityID: sceneEntityID})
	if err != nil {
		return fmt.Errorf("marshal scene command: %w", err)
	}
	if err := b.mqtt.Publish(b.topics.SceneCommand(sceneEntityID), payload, commandQoS, false); err != nil {
		return fmt.Errorf("publish scene command: %w", err)
	}
	return nil
}

// TurnOffEntities publishes a turn-off command for the given entities.
func (b *Bridge) TurnOffEntities(entityIDs []string) error {
	if len(entityIDs) == 0 {
		return nil
	}
	payload, err := json.Marshal(turnOffCommand{EntityIDs: entityIDs})
	if err != nil {
		return fmt.Errorf("marshal turn-off command: %w", err)
	}
	if err := b.mqtt.Publish(b.topics.TurnOffCommand(), payload, commandQoS, false); err != nil {
		return fmt.Errorf("publish turn-off command: %w", err)
	}
	return nil
}

// ─── Switch Mirror ───

// switchAttributes is the retained metadata published alongside a scene's
// switch state.
type switchAttributes struct {
	SceneID  string   `json:"scene_id"`
	Name     string   `json:"name"`
	Icon     string   `json:"icon,omitempty"`
	EntityID string   `json:"entity_id,omitempty"`
	Entities []string `json:"entities"`
}

// UpdateScenes replaces the bridge's scene metadata after a (re)load and
// republishes the retained mirror for every scene. Scenes removed by the
// reload get their retained topics cleared.
func (b *Bridge) UpdateScenes(statuses []scene.SceneStatus) {
	next := make(map[string]sceneMeta, len(statuses))
	bySlug := make(map[string]string, len(statuses))
	for _, st := range statuses {
		entities := make([]string, 0, len(st.Entities))
		for id := range st.Entities {
			entities = append(entities, id)
		}
		sort.Strings(entities)
		next[st.ID] = sceneMeta{
			ID:       st.ID,
			Slug:     st.Slug,
			Name:     st.Name,
			Icon:     st.Icon,
			EntityID: st.EntityID,
			Entities: entities,
		}
		bySlug[st.Slug] = st.ID
	}

	b.metaMu.Lock()
	previous := b.meta
	b.meta = next
	b.bySlug = bySlug
	b.metaMu.Unlock()

	for _, st := range statuses {
		b.publishSwitch(next[st.ID], st.Active)
	}

	// Clear retained topics for scenes the reload dropped.
	for id, meta := range previous {
		if _, kept := next[id]; kept {
			continue
		}
		if err := b.mqtt.PublishRetained(b.topics.SwitchState(meta.Slug), nil); err != nil {
			b.logger.Warn("failed to clear switch state", "slug", meta.Slug, "error", err)
		}
		if err := b.mqtt.PublishRetained(b.topics.SwitchAttributes(meta.Slug), nil); err != nil {
			b.logger.Warn("failed to clear switch attributes", "slug", meta.Slug, "error", err)
		}
	}
}

// HandleActiveChanged mirrors a published-state flip to the retained
// switch topic. Registered with the engine's OnActiveChanged; the engine
// callback must not block, so the publish happens on its own goroutine.
func (b *Bridge) HandleActiveChanged(sceneID string, active bool) {
	b.metaMu.RLock()
	meta, known := b.meta[sceneID]
	b.metaMu.RUnlock()
	if !known {
		return
	}

	go b.publishSwitch(meta, active)
}

// publishSwitch writes the retained state and attributes for one scene.
func (b *Bridge) publishSwitch(meta sceneMeta, active bool) {
	state := PayloadOff
	if active {
		state = PayloadOn
	}
	if err := b.mqtt.PublishRetained(b.topics.SwitchState(meta.Slug), []byte(state)); err != nil {
		b.logger.Error("failed to publish switch state", "slug", meta.Slug, "error", err)
		return
	}

	attrs, err := json.Marshal(switchAttributes{
		SceneID:  meta.ID,
		Name:     meta.Name,
		Icon:     meta.Icon,
		EntityID: meta.EntityID,
		Entities: meta.Entities,
	})
	if err != nil {
		b.logger.Error("failed to marshal switch attributes", "slug", meta.Slug, "error", err)
		return
	}
	if err := b.mqtt.PublishRetained(b.topics.SwitchAttributes(meta.Slug), attrs); err != nil {
		b.logger.Error("failed to publish switch attributes", "slug", meta.Slug, "error", err)
	}
}
