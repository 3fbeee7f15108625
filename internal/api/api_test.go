package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/celerix-mint/internal/engine"
	"github.com/celerix-dev/celerix-mint/internal/service"
	"github.com/celerix-dev/celerix-mint/pkg/ledger"
)

const callerHeader = "X-Celerix-Caller"

func setupTestRouter(auth Auth) *gin.Engine {
	gin.SetMode(gin.TestMode)
	l := service.New(engine.NewMemStore(nil, nil), service.Options{
		Clock:  service.ClockFunc(func() int64 { return 4*ledger.SecondsPerDay + 30 }),
		Logger: log.New(io.Discard, "", 0),
	})
	h := &Handler{Ledger: l}
	r := gin.New()
	r.Use(CORS(callerHeader))
	h.Register(r.Group("/api"), auth.Middleware())
	return r
}

func do(r *gin.Engine, method, path, caller string, body any) *httptest.ResponseRecorder {
	var buf io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		buf = bytes.NewBuffer(b)
	}
	req, _ := http.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(callerHeader, caller)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var out struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return out.Code
}

func TestProfileRoutes(t *testing.T) {
	r := setupTestRouter(Auth{Header: callerHeader})

	w := do(r, "POST", "/api/profiles", "alice", map[string]any{"name": "Alice", "age": 30})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var rec ledger.ProfileRecord
	json.Unmarshal(w.Body.Bytes(), &rec)
	if rec.OwnerID != "alice" || rec.DisplayName != "Alice" {
		t.Errorf("unexpected profile: %+v", rec)
	}

	w = do(r, "POST", "/api/profiles", "alice", map[string]any{"name": "Again", "age": 1})
	if w.Code != http.StatusConflict || errorCode(t, w) != ledger.CodeAlreadyExists {
		t.Errorf("Expected 409 already_exists, got %d: %s", w.Code, w.Body.String())
	}

	w = do(r, "PUT", "/api/profiles/alice", "mallory", map[string]any{"name": "x", "age": 1})
	if w.Code != http.StatusForbidden || errorCode(t, w) != ledger.CodeUnauthorized {
		t.Errorf("Expected 403 unauthorized, got %d: %s", w.Code, w.Body.String())
	}

	w = do(r, "PUT", "/api/profiles/alice", "alice", map[string]any{"name": "Alice B", "age": 31})
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	w = do(r, "POST", "/api/profiles/alice/balance", "alice", map[string]any{"amount": uint64(18446744073709551615)})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	w = do(r, "POST", "/api/profiles/alice/balance", "alice", map[string]any{"amount": 1})
	if w.Code != http.StatusUnprocessableEntity || errorCode(t, w) != ledger.CodeOverflow {
		t.Errorf("Expected 422 overflow, got %d: %s", w.Code, w.Body.String())
	}

	w = do(r, "GET", "/api/profiles/alice", "", nil)
	json.Unmarshal(w.Body.Bytes(), &rec)
	if w.Code != http.StatusOK || rec.DisplayName != "Alice B" || rec.Balance != 18446744073709551615 {
		t.Errorf("unexpected profile %d: %s", w.Code, w.Body.String())
	}

	w = do(r, "GET", "/api/profiles", "", nil)
	var list []ledger.ProfileRecord
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 1 {
		t.Errorf("Expected one profile, got %v", list)
	}

	w = do(r, "GET", "/api/profiles/nobody", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestDailyMintRoutes(t *testing.T) {
	r := setupTestRouter(Auth{Header: callerHeader})

	w := do(r, "POST", "/api/mint/daily", "alice", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 before token exists, got %d", w.Code)
	}

	w = do(r, "POST", "/api/tokens", "issuer", ledger.TokenParams{TokenID: "celerix", Name: "Celerix", Symbol: "CLX"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	w = do(r, "POST", "/api/mint/daily", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var grant ledger.Grant
	json.Unmarshal(w.Body.Bytes(), &grant)
	if grant.Action.Amount != 100 || grant.Record.LastMintDay != 4 {
		t.Errorf("unexpected grant: %+v", grant)
	}

	w = do(r, "POST", "/api/mint/daily", "alice", nil)
	if w.Code != http.StatusTooManyRequests || errorCode(t, w) != ledger.CodeAlreadyClaimedToday {
		t.Errorf("Expected 429 already_claimed_today, got %d: %s", w.Code, w.Body.String())
	}

	w = do(r, "GET", "/api/mint/daily/alice", "", nil)
	var e ledger.Eligibility
	json.Unmarshal(w.Body.Bytes(), &e)
	if e.State != "exhausted" || e.NextEligibleAt != 5*ledger.SecondsPerDay {
		t.Errorf("unexpected eligibility: %+v", e)
	}

	w = do(r, "GET", "/api/holdings/celerix/alice", "", nil)
	var h ledger.Holding
	json.Unmarshal(w.Body.Bytes(), &h)
	if h.Amount != 100 || h.LastGrantID != grant.ID {
		t.Errorf("unexpected holding: %+v", h)
	}

	w = do(r, "GET", "/api/tokens/celerix", "", nil)
	var desc ledger.TokenDescriptor
	json.Unmarshal(w.Body.Bytes(), &desc)
	if desc.TotalSupply != 100 {
		t.Errorf("unexpected descriptor: %+v", desc)
	}
}

func TestMissingCaller(t *testing.T) {
	r := setupTestRouter(Auth{Header: callerHeader})
	w := do(r, "POST", "/api/mint/daily", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

func TestBadBody(t *testing.T) {
	r := setupTestRouter(Auth{Header: callerHeader})
	w := do(r, "POST", "/api/profiles", "alice", map[string]any{"name": "x", "age": 500})
	if w.Code != http.StatusBadRequest || errorCode(t, w) != ledger.CodeInvalidArgument {
		t.Errorf("Expected 400 invalid_argument, got %d: %s", w.Code, w.Body.String())
	}
}

func TestBearerAuth(t *testing.T) {
	secret := []byte("test-secret")
	r := setupTestRouter(Auth{Secret: secret, Header: callerHeader})

	token, err := SignCaller(secret, "alice", time.Hour)
	if err != nil {
		t.Fatalf("SignCaller failed: %v", err)
	}

	body, _ := json.Marshal(map[string]any{"name": "Alice", "age": 30})
	req, _ := http.NewRequest("POST", "/api/profiles", bytes.NewBuffer(body))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	// The trusted header is ignored once a secret is configured.
	w = do(r, "POST", "/api/profiles", "bob", map[string]any{"name": "Bob", "age": 1})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for header caller, got %d", w.Code)
	}

	forged, _ := SignCaller([]byte("other"), "bob", time.Hour)
	req, _ = http.NewRequest("POST", "/api/mint/daily", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for forged token, got %d", w.Code)
	}

	expired, _ := SignCaller(secret, "alice", -time.Minute)
	req, _ = http.NewRequest("POST", "/api/mint/daily", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for expired token, got %d", w.Code)
	}
}

func TestHealthAndCORS(t *testing.T) {
	r := setupTestRouter(Auth{Header: callerHeader})
	w := do(r, "GET", "/api/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}

	w = do(r, "OPTIONS", "/api/profiles", "", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for preflight, got %d", w.Code)
	}
}
