// Package api implements the HTTP REST API and WebSocket server for the
// DaVinci bridge.
//
// This package provides:
//   - REST endpoints for fireplace state, commands, refresh and scan interval
//   - State history and command log queries
//   - WebSocket hub pushing every distinct snapshot on "fireplace.state"
//   - API-key to JWT exchange with viewer and operator roles
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The server talks to the fireplace coordinator directly. Commands use the
// same vocabulary as the MQTT bridge and the console (device.Capabilities
// Execute), so every front end queues identical protocol lines.
//
// # Security
//
// Authentication is off when security.jwt.secret is empty. When it is set,
// clients POST an API key to /api/v1/auth/token and send the returned token
// as a bearer token. WebSocket connections use single-use tickets so the
// token never appears in a URL.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
