package auth

import "github.com/golang-jwt/jwt/v5"

// Claims are the only supported JWT claims shape for the calls API.
// Subject (sub) names the caller; Role drives rbac checks.
type Claims struct {
	jwt.RegisteredClaims

	Role string `json:"role"`
}
