package auth

import (
	"context"
	"fmt"
)

// Verifier resolves raw bearer tokens to user accounts.
//
// The WebSocket proxy consumes this to gate incoming client connections:
// a token is valid only if its signature checks out, it has not expired,
// and its subject resolves to an active account.
type Verifier struct {
	secret string
	users  UserRepository
}

// NewVerifier creates a token verifier backed by the given user repository.
func NewVerifier(secret string, users UserRepository) *Verifier {
	return &Verifier{secret: secret, users: users}
}

// Verify parses and validates a raw token string and resolves its subject.
//
// Returns the resolved user and the token claims. All failures map to
// ErrTokenInvalid, ErrUserNotFound or ErrUserInactive so callers can treat
// them uniformly as a rejected connection.
func (v *Verifier) Verify(ctx context.Context, token string) (*User, *CustomClaims, error) {
	claims, err := ParseToken(token, v.secret)
	if err != nil {
		return nil, nil, err
	}

	user, err := v.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving token subject: %w", err)
	}

	if !user.IsActive {
		return nil, nil, ErrUserInactive
	}

	return user, claims, nil
}

// Authenticate checks a username/password pair against the user store.
// Used by the login endpoint to issue access tokens.
func (v *Verifier) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := v.users.GetByUsername(ctx, username)
	if err != nil {
		// Don't leak whether the username exists.
		return nil, ErrInvalidCredentials
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrUserInactive
	}

	return user, nil
}

// IssueToken generates a signed access token for an authenticated user.
func (v *Verifier) IssueToken(user *User, ttlMinutes int) (string, error) {
	return GenerateAccessToken(user, v.secret, ttlMinutes)
}
