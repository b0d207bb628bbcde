package handler

import (
	"context"
	"net/http"
)

// The upstream auth layer validates the session and installs the resolved
// account identity in this header. The service never authenticates on its
// own, it only consumes the identity.
const accountHeader = "X-Account-ID"

type contextKey struct{}

// RequireAccount rejects requests without a resolved identity and threads
// the account id through the request context.
func RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID := r.Header.Get(accountHeader)
		if accountID == "" {
			respondError(w, http.StatusUnauthorized, "missing account identity")
			return
		}
		ctx := context.WithValue(r.Context(), contextKey{}, accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accountID(r *http.Request) string {
	id, _ := r.Context().Value(contextKey{}).(string)
	return id
}
