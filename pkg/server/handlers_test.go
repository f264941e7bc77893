package server

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/waves-enterprise/voting-encrypt/pkg/ballot"
	"github.com/waves-enterprise/voting-encrypt/pkg/crypto/curve"
	"github.com/waves-enterprise/voting-encrypt/pkg/crypto/sampler"
	"github.com/waves-enterprise/voting-encrypt/pkg/receipt"
	"github.com/waves-enterprise/voting-encrypt/pkg/storage"
	"github.com/waves-enterprise/voting-encrypt/pkg/wire"
)

const (
	testIssuer   = "https://votecrypt.test"
	testAudience = "test-bulletins"
)

type fixture struct {
	handlers *Handlers
	store    *storage.MemoryStore
	signer   *receipt.ES256Signer
	verifier *receipt.Verifier
}

func setupTestHandlers(t *testing.T) *fixture {
	t.Helper()

	crv := curve.NewSecp256k1()
	sk, err := sampler.New(nil).DrawSecretScalar()
	if err != nil {
		t.Fatalf("failed to draw key: %v", err)
	}
	encryptor, err := ballot.NewEncryptor(crv, ballot.Config{
		Q:          crv.Order(),
		HashLength: 256,
		MainKey:    crv.ScalarMult(crv.Generator(), sk),
		BasePoint:  crv.Generator(),
	})
	if err != nil {
		t.Fatalf("failed to create encryptor: %v", err)
	}

	privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	signer, err := receipt.NewES256Signer(privKey, "test-key", testIssuer)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}

	store := storage.NewMemoryStore(0)
	t.Cleanup(func() { store.Close() })

	config := Config{
		Audience:    testAudience,
		ReceiptTTL:  time.Hour,
		BulletinTTL: time.Hour,
		MaxBallots:  8,
		Workers:     2,
	}

	return &fixture{
		handlers: NewHandlers(encryptor, store, signer, config, zerolog.Nop()),
		store:    store,
		signer:   signer,
		verifier: receipt.NewVerifier(signer.JWKS(), testIssuer),
	}
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func encryptBulletin(t *testing.T, f *fixture, bits []int) EncryptResponse {
	t.Helper()
	rr := postJSON(t, f.handlers.EncryptBulletin, "/bulletins", EncryptRequest{Bulletin: bits})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp EncryptResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestHandlers_Health(t *testing.T) {
	f := setupTestHandlers(t)

	rr := httptest.NewRecorder()
	f.handlers.Health(rr, httptest.NewRequest("GET", "/health", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	f.store.Close()
	rr = httptest.NewRecorder()
	f.handlers.Health(rr, httptest.NewRequest("GET", "/health", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("closed store should report 503, got %d", rr.Code)
	}
}

func TestHandlers_Params(t *testing.T) {
	f := setupTestHandlers(t)

	rr := httptest.NewRecorder()
	f.handlers.Params(rr, httptest.NewRequest("GET", "/params", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	params, err := wire.DecodeParams(rr.Body)
	if err != nil {
		t.Fatalf("params should decode: %v", err)
	}
	cfg, err := params.Config(f.handlers.encryptor.Curve())
	if err != nil {
		t.Fatalf("params should be valid: %v", err)
	}
	if !cfg.MainKey.Equal(f.handlers.encryptor.Config().MainKey) {
		t.Error("served main key differs from the encryptor's")
	}
	if cfg.HashLength != 256 {
		t.Errorf("expected hash length 256, got %d", cfg.HashLength)
	}
}

func TestHandlers_EncryptBulletin(t *testing.T) {
	f := setupTestHandlers(t)

	t.Run("SingleVote", func(t *testing.T) {
		resp := encryptBulletin(t, f, []int{1})

		if resp.ID == "" || resp.Receipt == "" {
			t.Fatal("response should carry an id and a receipt")
		}
		if resp.Aggregate != "proof" {
			t.Errorf("one vote should yield a real aggregate proof, got %s", resp.Aggregate)
		}
		if resp.ExpiresIn != int64(time.Hour.Seconds()) {
			t.Errorf("unexpected expires_in %d", resp.ExpiresIn)
		}

		stored, err := f.store.GetBulletin(resp.ID)
		if err != nil {
			t.Fatalf("bulletin should be stored: %v", err)
		}
		if !bytes.Equal(stored.Payload, resp.Bulletin) {
			t.Error("stored payload differs from the returned bulletin")
		}

		claims, err := f.verifier.Verify(resp.Receipt, testAudience)
		if err != nil {
			t.Fatalf("receipt should verify: %v", err)
		}
		if claims.Subject != resp.ID || claims.Digest != receipt.Digest(resp.Bulletin) || claims.Ballots != 1 {
			t.Errorf("receipt claims do not describe the bulletin: %+v", claims)
		}
	})

	t.Run("TwoVotesPlaceholderAggregate", func(t *testing.T) {
		resp := encryptBulletin(t, f, []int{1, 1})
		if resp.Aggregate != "placeholder" {
			t.Errorf("two votes should yield a placeholder aggregate, got %s", resp.Aggregate)
		}
	})

	t.Run("EmptyBulletin", func(t *testing.T) {
		resp := encryptBulletin(t, f, []int{})
		if !strings.HasPrefix(string(resp.Bulletin), "[[],") {
			t.Errorf("empty bulletin should carry no proofs: %s", resp.Bulletin)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/bulletins", strings.NewReader("invalid json"))
		rr := httptest.NewRecorder()
		f.handlers.EncryptBulletin(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("UnknownField", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/bulletins", strings.NewReader(`{"bulletin":[1],"extra":true}`))
		rr := httptest.NewRecorder()
		f.handlers.EncryptBulletin(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("NonBinaryVote", func(t *testing.T) {
		rr := postJSON(t, f.handlers.EncryptBulletin, "/bulletins", EncryptRequest{Bulletin: []int{0, 2}})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "ballot 1") {
			t.Errorf("error should name the offending ballot: %s", rr.Body.String())
		}
	})

	t.Run("TooManyBallots", func(t *testing.T) {
		rr := postJSON(t, f.handlers.EncryptBulletin, "/bulletins", EncryptRequest{Bulletin: make([]int, 9)})
		if rr.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("expected status 413, got %d", rr.Code)
		}
	})

	t.Run("StoreClosed", func(t *testing.T) {
		closed := setupTestHandlers(t)
		closed.store.Close()
		rr := postJSON(t, closed.handlers.EncryptBulletin, "/bulletins", EncryptRequest{Bulletin: []int{1}})
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}

func TestHandlers_VerifyBulletin(t *testing.T) {
	f := setupTestHandlers(t)

	verify := func(t *testing.T, bulletin json.RawMessage) (int, VerifyResponse) {
		t.Helper()
		rr := postJSON(t, f.handlers.VerifyBulletin, "/bulletins/verify", VerifyRequest{Bulletin: bulletin})
		var resp VerifyResponse
		if rr.Code == http.StatusOK {
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
		}
		return rr.Code, resp
	}

	t.Run("Valid", func(t *testing.T) {
		enc := encryptBulletin(t, f, []int{0, 1, 0})
		code, resp := verify(t, enc.Bulletin)
		if code != http.StatusOK || !resp.Valid {
			t.Fatalf("bulletin should verify: %d %+v", code, resp)
		}
		if resp.Ballots != 3 || resp.Aggregate != "valid" {
			t.Errorf("unexpected response %+v", resp)
		}
	})

	t.Run("PlaceholderAggregate", func(t *testing.T) {
		enc := encryptBulletin(t, f, []int{1, 1})
		_, resp := verify(t, enc.Bulletin)
		if resp.Valid {
			t.Error("a placeholder aggregate must not verify")
		}
		if resp.Aggregate != "placeholder" {
			t.Errorf("expected placeholder aggregate, got %s", resp.Aggregate)
		}
	})

	t.Run("TamperedBallot", func(t *testing.T) {
		enc := encryptBulletin(t, f, []int{1, 0})

		var wb wire.Bulletin
		if err := json.Unmarshal(enc.Bulletin, &wb); err != nil {
			t.Fatal(err)
		}
		wb.Proofs[1].R0 = "1"
		tampered, err := json.Marshal(wb)
		if err != nil {
			t.Fatal(err)
		}

		_, resp := verify(t, tampered)
		if resp.Valid || resp.Error == "" {
			t.Errorf("tampered bulletin must not verify: %+v", resp)
		}
		if resp.Aggregate != "unchecked" {
			t.Errorf("aggregate should not be reached, got %s", resp.Aggregate)
		}
	})

	t.Run("Malformed", func(t *testing.T) {
		code, _ := verify(t, json.RawMessage(`[[["1","2"]],[]]`))
		if code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", code)
		}
	})

	t.Run("MissingBulletin", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/bulletins/verify", strings.NewReader(`{}`))
		rr := httptest.NewRecorder()
		f.handlers.VerifyBulletin(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestHandlers_GetBulletin(t *testing.T) {
	f := setupTestHandlers(t)

	get := func(id string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/bulletins/"+id, nil)
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", id)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
		rr := httptest.NewRecorder()
		f.handlers.GetBulletin(rr, req)
		return rr
	}

	t.Run("Found", func(t *testing.T) {
		enc := encryptBulletin(t, f, []int{1, 0})
		rr := get(enc.ID)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var resp BulletinResponse
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Ballots != 2 || !bytes.Equal(resp.Bulletin, enc.Bulletin) {
			t.Errorf("unexpected bulletin %+v", resp)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if rr := get("missing"); rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("Expired", func(t *testing.T) {
		past := time.Now().Add(-time.Hour)
		f.store.PutBulletin(&storage.Bulletin{
			ID:        "expired",
			Payload:   []byte(`[[],[]]`),
			CreatedAt: past.Add(-time.Hour),
			ExpiresAt: past,
		})
		if rr := get("expired"); rr.Code != http.StatusGone {
			t.Errorf("expected status 410, got %d", rr.Code)
		}
	})
}

func TestHandlers_AdminEndpoints(t *testing.T) {
	f := setupTestHandlers(t)
	encryptBulletin(t, f, []int{1, 0, 1})

	t.Run("Stats", func(t *testing.T) {
		rr := httptest.NewRecorder()
		f.handlers.Stats(rr, httptest.NewRequest("GET", "/admin/stats", nil))

		var resp struct {
			Storage map[string]int `json:"storage"`
		}
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Storage["bulletins"] != 1 || resp.Storage["ballots"] != 3 {
			t.Errorf("unexpected stats %v", resp.Storage)
		}
	})

	t.Run("ListBulletins", func(t *testing.T) {
		rr := httptest.NewRecorder()
		f.handlers.ListBulletins(rr, httptest.NewRequest("GET", "/admin/bulletins", nil))

		var resp struct {
			Bulletins int `json:"bulletins"`
		}
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Bulletins != 1 {
			t.Errorf("expected 1 bulletin, got %d", resp.Bulletins)
		}
	})

	t.Run("JWKS", func(t *testing.T) {
		rr := httptest.NewRecorder()
		f.handlers.JWKS(rr, httptest.NewRequest("GET", "/.well-known/jwks.json", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if rr.Header().Get("Cache-Control") == "" {
			t.Error("JWKS should be cacheable")
		}
		if !strings.Contains(rr.Body.String(), `"test-key"`) {
			t.Errorf("JWKS should carry the key ID: %s", rr.Body.String())
		}
	})
}
