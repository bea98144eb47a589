package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ExtractTokenFromRequest extracts a JWT token from an HTTP request's
// Authorization header.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	// Bearer token format: "Bearer {token}"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}

	return parts[1], nil
}

// ParseCallerFromJWT extracts the caller identity from a JWT without
// validating the signature. Dev-mode only; production traffic goes
// through the OIDC verifier in Middleware.
func ParseCallerFromJWT(tokenString string) (CallerContext, error) {
	if tokenString == "" {
		return CallerContext{}, errors.New("empty token")
	}

	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return CallerContext{}, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return CallerContext{}, errors.New("invalid token claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return CallerContext{}, errors.New("subject claim not found in token")
	}

	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)

	return CallerContext{
		ID:    sub,
		Email: email,
		Role:  normalizeRole(role),
	}, nil
}
