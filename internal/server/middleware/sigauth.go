package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/alanyoungcy/friendbet/internal/chain"
	"github.com/alanyoungcy/friendbet/internal/domain"
)

type ctxKey int

const verifiedCallerKey ctxKey = iota

// VerifiedCaller returns the normalized address whose signature SigAuth
// verified for this request. ok is false on unsigned requests.
func VerifiedCaller(ctx context.Context) (string, bool) {
	addr, ok := ctx.Value(verifiedCallerKey).(string)
	return addr, ok
}

// SigAuth returns middleware that verifies an EIP-191 personal signature over
// the request body. Clients send their address in X-Caller and the hex
// signature in X-Signature. When required is false, unsigned requests pass
// through; signed requests are still verified so a bad signature always
// fails. The verified address is bound to the request context; handlers
// must refuse to act on behalf of any other address (see VerifiedCaller).
func SigAuth(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := strings.TrimSpace(r.Header.Get("X-Caller"))
			sig := strings.TrimSpace(r.Header.Get("X-Signature"))

			if caller == "" && sig == "" {
				if required {
					writeUnauthorized(w, "missing request signature")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeUnauthorized(w, "unreadable request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			ok, err := chain.VerifyPersonal(caller, body, sig)
			if err != nil || !ok {
				writeUnauthorized(w, "invalid request signature")
				return
			}

			addr, err := domain.NormalizeAddress(caller)
			if err != nil {
				writeUnauthorized(w, "malformed caller address")
				return
			}
			ctx := context.WithValue(r.Context(), verifiedCallerKey, addr)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
