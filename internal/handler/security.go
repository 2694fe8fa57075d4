package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/academy-pricing/internal/domain/auth"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "X-API-Key"

// RequireScope authenticates the request and rejects keys without scope.
func RequireScope(authn Authenticator, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := authn.Authenticate(r.Context(), r.Header.Get(APIKeyHeader))
			switch {
			case errors.Is(err, auth.ErrUnauthorized):
				writeError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			case err != nil:
				zctx.From(r.Context()).Error("Authenticate", zap.Error(err))
				writeError(w, r, http.StatusInternalServerError, "internal error")
				return
			}
			if !key.Allows(scope) {
				writeError(w, r, http.StatusForbidden, "api key lacks scope "+scope)
				return
			}

			ctx := auth.WithKey(r.Context(), key)
			ctx = zctx.With(ctx, zap.String("api_key", key.Name))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
