package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// HeaderAgent carries the caller's agent address on every API request.
// Verifying that the caller actually controls the address is the
// integrator's concern; the marketplace only requires a well-formed one.
const HeaderAgent = "X-Molt-Agent"

type callerKey struct{}

// Identity returns middleware that parses the agent address header into the
// request context. Requests without the header pass through unauthenticated;
// a malformed address is rejected outright.
func Identity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(HeaderAgent))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !common.IsHexAddress(raw) {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"malformed ` + HeaderAgent + ` header"}`))
				return
			}

			ctx := context.WithValue(r.Context(), callerKey{}, common.HexToAddress(raw))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerFrom returns the agent address the identity middleware attached to
// the context, if any.
func CallerFrom(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(callerKey{}).(common.Address)
	return addr, ok
}
