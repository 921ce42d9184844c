// Package auth provides authentication for Gateway Bridge.
//
// It implements a 3-tier role model (user → admin → owner) with:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - HS256 JWT access tokens carrying role and session claims
//   - A token verifier that resolves token subjects against the user store
//
// The WebSocket proxy consumes Verifier to authenticate each inbound
// client connection independently; the token's expiry claim is tracked
// per connection so stale clients can be terminated mid-session.
package auth
