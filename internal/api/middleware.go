/**
 * @description
 * This file contains custom middleware for the HTTP router. Middlewares are used
 * to process requests before they reach the final handler, perfect for tasks like
 * authentication, logging, or adding context to a request.
 *
 * The dashboard authenticates with an HMAC-signed JWT carrying the actor's
 * subject and role; machine callers (the escrow transaction pipeline, the
 * fraud detector) authenticate with the internal API key instead.
 *
 * @dependencies
 * - context, net/http, strings: Standard Go libraries.
 * - github.com/golang-jwt/jwt/v5: JWT parsing and validation.
 */

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ActorContextKey is a custom type for the context keys to avoid collisions.
type ActorContextKey string

const (
	actorSubjectKey ActorContextKey = "actorSubject"
	actorRoleKey    ActorContextKey = "actorRole"
)

// AuthMiddleware creates a middleware that validates HMAC-signed JWTs and
// places the actor's subject and role claims on the request context.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil {
				http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
				return
			}
			if !token.Valid {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}

			subject, ok := claims["sub"].(string)
			if !ok || subject == "" {
				http.Error(w, "Subject not found in token", http.StatusUnauthorized)
				return
			}
			role, _ := claims["role"].(string)

			ctx := context.WithValue(r.Context(), actorSubjectKey, subject)
			ctx = context.WithValue(ctx, actorRoleKey, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InternalAPIKeyMiddleware guards machine-to-machine endpoints with a shared key.
func InternalAPIKeyMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := strings.TrimSpace(r.Header.Get("X-Internal-Api-Key"))
			if provided == "" || provided != apiKey {
				http.Error(w, "Invalid internal API key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetActor retrieves the authenticated actor's subject and role from the
// request context. Handlers use this to thread the actor into every mutating
// service call.
func GetActor(ctx context.Context) (subject string, role string, ok bool) {
	subject, ok = ctx.Value(actorSubjectKey).(string)
	if !ok {
		return "", "", false
	}
	role, _ = ctx.Value(actorRoleKey).(string)
	return subject, role, true
}
