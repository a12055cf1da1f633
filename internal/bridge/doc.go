// Package bridge connects the scene engine to the MQTT broker.
//
// # Architecture
//
//	host automation ──▶ scenewatch/state/#          ──▶ engine entity events
//	host automation ──▶ scenewatch/registry/scenes  ──▶ entity resolution
//	anything        ──▶ scenewatch/switch/+/set     ──▶ activate / deactivate
//	host automation ──▶ scenewatch/event/activation ──▶ external activations
//
//	engine commands ──▶ scenewatch/command/scene/{entity}
//	engine commands ──▶ scenewatch/command/turn_off
//	published state ──▶ scenewatch/switch/{slug}/state       (retained)
//	scene metadata  ──▶ scenewatch/switch/{slug}/attributes  (retained)
//
// The Bridge doubles as the engine's Commander (outgoing commands) and
// Directory (registry-fed scene entity resolution), so one wiring step in
// main covers both collaborators.
//
// # Key Types
//
//   - Bridge: The adapter itself
//   - MQTTClient: Broker operations, satisfied by infrastructure/mqtt.Client
//   - SceneEngine: The engine subset the bridge drives
//
// # Thread Safety
//
// All methods are safe for concurrent use. Scene metadata and the
// registry are guarded separately so inbound state events never wait on a
// reload.
package bridge
