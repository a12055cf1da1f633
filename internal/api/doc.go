// Package api provides the HTTP REST API and WebSocket server for
// SceneWatch.
//
// It exposes scene runtime status, activation and deactivation, the
// persisted transition history, and a definition reload trigger. A
// WebSocket hub pushes scene.active_changed events to subscribed
// clients in real time.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// # Endpoints
//
//	GET  /api/v1/health                    liveness + schema status (no auth)
//	GET  /api/v1/ws?token=...              WebSocket upgrade
//	GET  /api/v1/scenes                    all scene statuses
//	GET  /api/v1/scenes/{id}               one scene status
//	GET  /api/v1/scenes/{id}/transitions   recent flips, newest first
//	POST /api/v1/scenes/{id}/activate      operator role
//	POST /api/v1/scenes/{id}/deactivate    operator role
//	POST /api/v1/reload                    operator role
//
// Authentication is a bearer JWT (see internal/auth). Viewer tokens may
// read; operator tokens may also change state.
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api
