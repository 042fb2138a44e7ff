package session

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// PeekClaims decodes the claims of a JWT access token without verifying its
// signature. Tokens are opaque to the console, so this is for display only and
// never used for authorization decisions.
func PeekClaims(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("token is not a JWT: %w", err)
	}
	return claims, nil
}
