package middleware

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/waves-enterprise/voting-encrypt/pkg/receipt"
	"github.com/waves-enterprise/voting-encrypt/pkg/storage"
)

const testAudience = "test-audience"

func newTestSigner(t *testing.T) *receipt.ES256Signer {
	t.Helper()
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	signer, err := receipt.NewES256Signer(privateKey, "test-key", "https://votecrypt.test")
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}
	return signer
}

func mintTestReceipt(t *testing.T, signer receipt.Signer, bulletinID, audience string, ttl time.Duration) (string, *receipt.Claims) {
	t.Helper()
	token, claims, err := receipt.MintReceipt(signer, bulletinID, audience, []byte("payload"), 1, "secp256k1", ttl)
	if err != nil {
		t.Fatalf("failed to mint receipt: %v", err)
	}
	return token, claims
}

func TestReceiptAuth(t *testing.T) {
	signer := newTestSigner(t)
	verifier := receipt.NewVerifier(signer.JWKS(), "https://votecrypt.test")
	store := storage.NewMemoryStore(0)
	defer store.Close()

	var seen *receipt.Claims
	protected := ReceiptAuth(verifier, testAudience, store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetReceiptClaims(r)
		if !ok {
			t.Error("claims should be in context")
		}
		seen = claims
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("ValidReceipt", func(t *testing.T) {
		token, _ := mintTestReceipt(t, signer, "bulletin-1", testAudience, time.Hour)

		req := httptest.NewRequest("GET", "/bulletins/bulletin-1", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}

		if seen == nil || seen.Subject != "bulletin-1" {
			t.Errorf("unexpected claims in context: %+v", seen)
		}
	})

	t.Run("MissingAuthorization", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/bulletins/bulletin-1", nil)
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("InvalidAuthorizationFormat", func(t *testing.T) {
		token, _ := mintTestReceipt(t, signer, "bulletin-1", testAudience, time.Hour)

		req := httptest.NewRequest("GET", "/bulletins/bulletin-1", nil)
		req.Header.Set("Authorization", "Token "+token)
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("ExpiredReceipt", func(t *testing.T) {
		token, _ := mintTestReceipt(t, signer, "bulletin-1", testAudience, -time.Minute)

		req := httptest.NewRequest("GET", "/bulletins/bulletin-1", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("WrongAudience", func(t *testing.T) {
		token, _ := mintTestReceipt(t, signer, "bulletin-1", "other-audience", time.Hour)

		req := httptest.NewRequest("GET", "/bulletins/bulletin-1", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("RevokedReceipt", func(t *testing.T) {
		token, claims := mintTestReceipt(t, signer, "bulletin-1", testAudience, time.Hour)
		store.RevokeReceipt(claims.ID)

		req := httptest.NewRequest("GET", "/bulletins/bulletin-1", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rr.Code)
		}

		if !strings.Contains(rr.Body.String(), "revoked") {
			t.Errorf("expected revocation message, got %s", rr.Body.String())
		}
	})
}

func TestRequireSubject(t *testing.T) {
	signer := newTestSigner(t)
	verifier := receipt.NewVerifier(signer.JWKS(), "")

	r := chi.NewRouter()
	r.With(ReceiptAuth(verifier, testAudience, nil), RequireSubject("id")).
		Get("/bulletins/{id}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

	token, _ := mintTestReceipt(t, signer, "bulletin-1", testAudience, time.Hour)

	t.Run("MatchingSubject", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/bulletins/bulletin-1", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("OtherBulletin", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/bulletins/bulletin-2", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)

		if rr.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rr.Code)
		}
	})

	t.Run("MissingClaims", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/bulletins/bulletin-1", nil)
		rr := httptest.NewRecorder()
		RequireSubject("id")(http.NotFoundHandler()).ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rr.Code)
		}
	})
}

func TestRequireCurve(t *testing.T) {
	handler := RequireCurve("secp256k1")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(claims *receipt.Claims) int {
		req := httptest.NewRequest("GET", "/test", nil)
		req = req.WithContext(context.WithValue(req.Context(), ReceiptClaimsKey, claims))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	t.Run("ValidCurve", func(t *testing.T) {
		if code := serve(&receipt.Claims{Group: "secp256k1"}); code != http.StatusOK {
			t.Errorf("expected 200, got %d", code)
		}
	})

	t.Run("WrongCurve", func(t *testing.T) {
		if code := serve(&receipt.Claims{Group: "P-256"}); code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", code)
		}
	})
}

func TestUtilityMiddleware(t *testing.T) {
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	t.Run("CORS", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		rr := httptest.NewRecorder()

		CORS(testHandler).ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
			t.Errorf("expected CORS origin *, got %s", origin)
		}

		if headers := rr.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(headers, "Authorization") {
			t.Errorf("expected Authorization in allowed headers, got %s", headers)
		}
	})

	t.Run("CORSOptions", func(t *testing.T) {
		req := httptest.NewRequest("OPTIONS", "/test", nil)
		rr := httptest.NewRecorder()

		CORS(testHandler).ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		// Should not call next handler for OPTIONS
		if body := rr.Body.String(); body != "" {
			t.Error("OPTIONS should not call next handler")
		}
	})

	t.Run("RequestLogger", func(t *testing.T) {
		var buf bytes.Buffer
		logger := zerolog.New(&buf)

		req := httptest.NewRequest("GET", "/logged", nil)
		rr := httptest.NewRecorder()

		chimw.RequestID(RequestLogger(logger)(testHandler)).ServeHTTP(rr, req)

		out := buf.String()
		for _, want := range []string{`"path":"/logged"`, `"status":200`, `"bytes":2`, `"request_id":"`} {
			if !strings.Contains(out, want) {
				t.Errorf("access log missing %s: %s", want, out)
			}
		}
	})

	t.Run("RequestLoggerServerError", func(t *testing.T) {
		var buf bytes.Buffer
		failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})

		RequestLogger(zerolog.New(&buf))(failing).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

		if !strings.Contains(buf.String(), `"level":"error"`) {
			t.Errorf("5xx should log at error level: %s", buf.String())
		}
	})

	t.Run("Recovery", func(t *testing.T) {
		var buf bytes.Buffer
		panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		})

		req := httptest.NewRequest("GET", "/test", nil)
		rr := httptest.NewRecorder()

		Recovery(zerolog.New(&buf))(panicHandler).ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500 after panic, got %d", rr.Code)
		}

		if body := rr.Body.String(); !strings.Contains(body, "Internal Server Error") {
			t.Errorf("expected error message, got %s", body)
		}

		if !strings.Contains(buf.String(), "test panic") {
			t.Errorf("panic should be logged: %s", buf.String())
		}
	})

	t.Run("RecoveryNoPanic", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		rr := httptest.NewRecorder()

		Recovery(zerolog.Nop())(testHandler).ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		if body := rr.Body.String(); body != "OK" {
			t.Errorf("expected OK, got %s", body)
		}
	})
}

func TestRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ratelimited := RateLimit(ctx, 2, time.Minute)

	counter := 0
	baseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter++
		w.WriteHeader(http.StatusOK)
	})

	handler := ratelimited(baseHandler)

	req := httptest.NewRequest("GET", "/rate", nil)
	req.RemoteAddr = "192.0.2.1:1234"

	resp1 := httptest.NewRecorder()
	handler.ServeHTTP(resp1, req)
	if resp1.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", resp1.Code)
	}

	resp2 := httptest.NewRecorder()
	handler.ServeHTTP(resp2, req)
	if resp2.Code != http.StatusOK {
		t.Fatalf("expected second request to succeed, got %d", resp2.Code)
	}

	resp3 := httptest.NewRecorder()
	handler.ServeHTTP(resp3, req)
	if resp3.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rate limit to trigger, got %d", resp3.Code)
	}

	if resp3.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	if counter != 2 {
		t.Fatalf("expected handler to execute twice, ran %d times", counter)
	}

	// Another client has its own budget
	other := httptest.NewRequest("GET", "/rate", nil)
	other.RemoteAddr = "192.0.2.2:1234"
	resp4 := httptest.NewRecorder()
	handler.ServeHTTP(resp4, other)
	if resp4.Code != http.StatusOK {
		t.Fatalf("expected other client to succeed, got %d", resp4.Code)
	}

	// Forwarded headers are not trusted without RealIP in front
	spoofed := httptest.NewRequest("GET", "/rate", nil)
	spoofed.RemoteAddr = "192.0.2.1:1234"
	spoofed.Header.Set("X-Forwarded-For", "198.51.100.7")
	resp5 := httptest.NewRecorder()
	handler.ServeHTTP(resp5, spoofed)
	if resp5.Code != http.StatusTooManyRequests {
		t.Fatalf("expected spoofed request to be limited, got %d", resp5.Code)
	}
}
