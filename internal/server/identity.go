package server

import (
	"context"
	"net/http"
)

// Identity is the caller identity supplied by the upstream auth gateway.
// The gateway authenticates users; this service only reads the headers.
type Identity struct {
	Username string
	Role     string
}

// roleMaster is the highest-privilege role; required for approval and
// routing-mode changes.
const roleMaster = "master"

type identityCtxKey struct{}

// identityMiddleware extracts the caller identity from the X-User-Name and
// X-User-Role headers set by the auth gateway.
func identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := Identity{
			Username: r.Header.Get("X-User-Name"),
			Role:     r.Header.Get("X-User-Role"),
		}
		ctx := context.WithValue(r.Context(), identityCtxKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// identityFrom returns the caller identity stored by identityMiddleware.
func identityFrom(r *http.Request) Identity {
	id, _ := r.Context().Value(identityCtxKey{}).(Identity)
	return id
}
