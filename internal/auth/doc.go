// Package auth issues and validates the bearer tokens protecting the
// HTTP API.
//
// Tokens are stateless HS256 JWTs: validation is signature plus expiry,
// no database hit. Two roles exist — viewer (read-only) and operator
// (may activate, deactivate, and reload scenes). Token distribution is
// out of band: an installer generates long-lived operator tokens for
// trusted automations and short-lived viewer tokens for dashboards.
package auth
