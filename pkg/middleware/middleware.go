package middleware

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/waves-enterprise/voting-encrypt/pkg/receipt"
	"github.com/waves-enterprise/voting-encrypt/pkg/storage"
)

// ContextKey is used for storing values in context
type ContextKey string

const (
	// ReceiptClaimsKey is the context key for verified receipt claims
	ReceiptClaimsKey ContextKey = "receipt_claims"
)

// ReceiptAuth creates middleware that requires a valid bulletin receipt as a
// Bearer token. Receipts whose ID is in revocations are refused; revocations
// may be nil.
func ReceiptAuth(verifier *receipt.Verifier, expectedAudience string, revocations storage.RevocationStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Extract receipt from Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing Authorization header", http.StatusUnauthorized)
				return
			}

			// Check Bearer prefix
			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				http.Error(w, "invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			token := strings.TrimPrefix(authHeader, bearerPrefix)

			claims, err := verifier.Verify(token, expectedAudience)
			if err != nil {
				http.Error(w, fmt.Sprintf("receipt verification failed: %v", err), http.StatusUnauthorized)
				return
			}

			if revocations != nil && claims.ID != "" {
				revoked, err := revocations.IsReceiptRevoked(claims.ID)
				if err != nil {
					http.Error(w, "failed to check receipt status", http.StatusInternalServerError)
					return
				}
				if revoked {
					http.Error(w, "receipt revoked", http.StatusUnauthorized)
					return
				}
			}

			// Add claims to context
			ctx := context.WithValue(r.Context(), ReceiptClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetReceiptClaims extracts receipt claims from request context
func GetReceiptClaims(r *http.Request) (*receipt.Claims, bool) {
	claims, ok := r.Context().Value(ReceiptClaimsKey).(*receipt.Claims)
	return claims, ok
}

// RequireSubject ensures the receipt subject matches the named chi URL
// parameter, so a receipt only opens its own bulletin.
func RequireSubject(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetReceiptClaims(r)
			if !ok {
				http.Error(w, "receipt claims required", http.StatusInternalServerError)
				return
			}

			if claims.Subject != chi.URLParam(r, param) {
				http.Error(w, "receipt was not issued for this bulletin", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireCurve ensures the receipt was issued for a specific curve
func RequireCurve(expectedCurve string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetReceiptClaims(r)
			if !ok {
				http.Error(w, "receipt claims required", http.StatusInternalServerError)
				return
			}

			if claims.Group != expectedCurve {
				http.Error(w, fmt.Sprintf("invalid curve: expected %s, got %s", expectedCurve, claims.Group), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CORS middleware for development
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequestLogger writes one access log entry per request. It reads the request
// ID set by chi's RequestID middleware when present.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}

				event := logger.Info()
				if status >= http.StatusInternalServerError {
					event = logger.Error()
				}
				event.
					Str("request_id", chimw.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote", r.RemoteAddr).
					Int("status", status).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// Recovery recovers from panics and logs them
func Recovery(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error().
						Str("request_id", chimw.GetReqID(r.Context())).
						Interface("panic", rec).
						Bytes("stack", debug.Stack()).
						Msg("handler panicked")
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
