package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the JWT payload for access tokens issued by the
// institution's identity service.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// IsManager reports whether the caller may act on other users' reservations.
func (c *JWTClaims) IsManager() bool {
	return c.Actor().IsManager()
}

// Actor is the authenticated caller of a booking operation.
type Actor struct {
	ID   string
	Role UserRole
}

// IsManager reports whether the actor holds an administrative role.
func (a Actor) IsManager() bool {
	return a.Role == RoleAdmin || a.Role == RoleSuperAdmin
}

// Actor projects the claims onto an Actor.
func (c *JWTClaims) Actor() Actor {
	if c == nil {
		return Actor{}
	}
	return Actor{ID: c.UserID, Role: c.Role}
}
