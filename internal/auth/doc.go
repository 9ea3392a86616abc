// Package auth provides bearer-token authentication for the bridge API.
//
// Clients exchange a configured API key for a short-lived JWT at
// POST /api/v1/auth/token and present it as "Authorization: Bearer <jwt>".
// Two roles exist:
//   - operator: read state and send commands
//   - viewer: read state only
//
// API keys in the config file may be plaintext or an Argon2id PHC string
// produced by HashAPIKey; both are compared in constant time.
package auth
