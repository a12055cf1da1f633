package mqtt

import "fmt"

// Topic prefixes for the SceneWatch MQTT scheme.
//
// Entity states flow in under scenewatch/state/{entity_id}; scene commands
// flow out under scenewatch/command/...; the per-scene switch mirror lives
// under scenewatch/switch/{slug}/....
const (
	// TopicPrefix is the base for all SceneWatch topics.
	TopicPrefix = "scenewatch"

	// TopicPrefixSwitch is the base for the per-scene switch mirror.
	TopicPrefixSwitch = "scenewatch/switch"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "scenewatch/system"
)

// Topics provides builders for SceneWatch MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.SwitchState("evening")
//	// Returns: "scenewatch/switch/evening/state"
type Topics struct{}

// EntityState returns the topic carrying live state for one entity.
//
// Example: scenewatch/state/light.lounge
func (Topics) EntityState(entityID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, entityID)
}

// SwitchState returns the retained topic mirroring a scene's active boolean.
//
// Example: scenewatch/switch/evening/state
func (Topics) SwitchState(slug string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefixSwitch, slug)
}

// SwitchSet returns the command topic for a scene's switch.
//
// Example: scenewatch/switch/evening/set
func (Topics) SwitchSet(slug string) string {
	return fmt.Sprintf("%s/%s/set", TopicPrefixSwitch, slug)
}

// SwitchAttributes returns the retained topic carrying a scene's metadata
// (icon, entity counts, phase) alongside the switch state.
//
// Example: scenewatch/switch/evening/attributes
func (Topics) SwitchAttributes(slug string) string {
	return fmt.Sprintf("%s/%s/attributes", TopicPrefixSwitch, slug)
}

// SceneCommand returns the topic for outgoing scene activation commands.
//
// Example: scenewatch/command/scene/scene.evening
func (Topics) SceneCommand(sceneEntityID string) string {
	return fmt.Sprintf("%s/command/scene/%s", TopicPrefix, sceneEntityID)
}

// TurnOffCommand returns the topic for outgoing entity turn-off commands.
//
// Example: scenewatch/command/turn_off
func (Topics) TurnOffCommand() string {
	return fmt.Sprintf("%s/command/turn_off", TopicPrefix)
}

// ActivationEvent returns the topic carrying externally-observed scene
// activations (a scene entity turned on by something other than us).
//
// Example: scenewatch/event/activation
func (Topics) ActivationEvent() string {
	return fmt.Sprintf("%s/event/activation", TopicPrefix)
}

// SceneRegistry returns the retained topic announcing the host's scene
// entities. Feeds entity resolution.
//
// Example: scenewatch/registry/scenes
func (Topics) SceneRegistry() string {
	return fmt.Sprintf("%s/registry/scenes", TopicPrefix)
}

// SystemStatus returns the system status topic (online/offline, LWT).
//
// Example: scenewatch/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// ─── Wildcard Patterns for Subscriptions ───

// AllEntityStates returns a pattern matching every entity state update.
//
// Pattern: scenewatch/state/#
func (Topics) AllEntityStates() string {
	return fmt.Sprintf("%s/state/#", TopicPrefix)
}

// AllSwitchSets returns a pattern matching every switch command.
//
// Pattern: scenewatch/switch/+/set
func (Topics) AllSwitchSets() string {
	return fmt.Sprintf("%s/+/set", TopicPrefixSwitch)
}

// EntityFromStateTopic extracts the entity id from an entity state topic.
// Returns "" when the topic is not under the state prefix.
func (Topics) EntityFromStateTopic(topic string) string {
	prefix := TopicPrefix + "/state/"
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return ""
	}
	return topic[len(prefix):]
}

// SlugFromSetTopic extracts the scene slug from a switch command topic.
// Returns "" when the topic does not match scenewatch/switch/{slug}/set.
func (Topics) SlugFromSetTopic(topic string) string {
	prefix := TopicPrefixSwitch + "/"
	const suffix = "/set"
	if len(topic) <= len(prefix)+len(suffix) || topic[:len(prefix)] != prefix {
		return ""
	}
	rest := topic[len(prefix):]
	if rest[len(rest)-len(suffix):] != suffix {
		return ""
	}
	slug := rest[:len(rest)-len(suffix)]
	for i := 0; i < len(slug); i++ {
		if slug[i] == '/' {
			return ""
		}
	}
	return slug
}
