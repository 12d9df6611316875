package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomex/settle/internal/domain"
	"github.com/outcomex/settle/internal/identity"
)

// Headers carrying the caller's identity proof on trading endpoints.
const (
	HeaderAccount   = "X-Settle-Account"
	HeaderTimestamp = "X-Settle-Timestamp"
	HeaderSignature = "X-Settle-Signature"
)

// maxSignedBodyBytes bounds how much request body the verifier buffers.
const maxSignedBodyBytes = 1 << 20

type accountContextKey struct{}

// AccountFrom returns the verified account address stored in the request
// context by the Signature middleware. The boolean is false when the request
// did not pass through signature auth.
func AccountFrom(ctx context.Context) (string, bool) {
	account, ok := ctx.Value(accountContextKey{}).(string)
	return account, ok
}

// WithAccount returns a context carrying a verified account address, as the
// Signature middleware would set it.
func WithAccount(ctx context.Context, account string) context.Context {
	return context.WithValue(ctx, accountContextKey{}, account)
}

// Signature returns middleware that authenticates requests by recovering the
// secp256k1 signature over the canonical request (method, path, timestamp,
// body) and comparing the recovered address to the account header. On
// success the checksummed address is stored in the request context.
func Signature(verifier *identity.Verifier, clock domain.Clock) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account := r.Header.Get(HeaderAccount)
			timestamp := r.Header.Get(HeaderTimestamp)
			sig := r.Header.Get(HeaderSignature)
			if account == "" || timestamp == "" || sig == "" {
				writeUnauthorized(w, "missing signature headers")
				return
			}
			if !common.IsHexAddress(account) {
				writeUnauthorized(w, "malformed account address")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBodyBytes))
			if err != nil {
				writeUnauthorized(w, "unreadable request body")
				return
			}
			r.Body.Close()
			// Verification consumed the body; handlers still need it.
			r.Body = io.NopCloser(bytes.NewReader(body))

			addr, err := verifier.VerifyRequest(account, timestamp, sig, r.Method, r.URL.Path, body, clock.Now())
			if err != nil {
				writeUnauthorized(w, verifyFailureMessage(err))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), addr.Hex())))
		})
	}
}

func verifyFailureMessage(err error) string {
	switch {
	case errors.Is(err, identity.ErrTimestampSkew):
		return "request timestamp outside allowed window"
	case errors.Is(err, identity.ErrAccountMismatch):
		return "signature does not match account"
	default:
		return "invalid request signature"
	}
}
