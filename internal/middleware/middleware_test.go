package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestJWTAuth_RoleRequired(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	userID := uuid.New()

	recruiter, err := auth.GenerateToken(userID, RoleRecruiter, time.Hour)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	candidate, _ := auth.GenerateToken(uuid.New(), "candidate", time.Hour)

	var seenUser uuid.UUID
	h := auth.Middleware(RequireRole(RoleAdmin, RoleRecruiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"recruiter allowed", "Bearer " + recruiter, http.StatusOK},
		{"candidate forbidden", "Bearer " + candidate, http.StatusForbidden},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + recruiter, http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/review/sessions/x/timeline", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rr.Code)
			}
		})
	}

	if seenUser != userID {
		t.Errorf("expected user id %s in context, got %s", userID, seenUser)
	}
}

func TestJWTAuth_ExpiredToken(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	token, _ := auth.GenerateToken(uuid.New(), RoleAdmin, -time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	auth.Middleware(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	var body map[string]map[string]string
	json.NewDecoder(rr.Body).Decode(&body)
	if body["error"]["code"] != "TOKEN_EXPIRED" {
		t.Errorf("expected TOKEN_EXPIRED, got %q", body["error"]["code"])
	}
}

func TestJWTAuth_RejectsOtherSigningMethods(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"user_id": uuid.NewString(),
		"role":    RoleAdmin,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build unsigned token: %v", err)
	}

	if _, err := auth.ParseToken(signed); err == nil {
		t.Fatalf("expected unsigned token to be rejected")
	}
}

func TestRateLimiter_FixedWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := newRateLimiter(2, time.Minute, clock)
	defer rl.Stop()

	h := rl.Middleware(http.HandlerFunc(okHandler))
	do := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/integrity-event", nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	if do("10.0.0.1:1000") != http.StatusOK || do("10.0.0.1:1001") != http.StatusOK {
		t.Fatalf("first two requests must pass")
	}
	if code := do("10.0.0.1:1002"); code != http.StatusTooManyRequests {
		t.Fatalf("expected third request to be limited, got %d", code)
	}
	if code := do("10.0.0.2:1000"); code != http.StatusOK {
		t.Fatalf("other clients must not be limited, got %d", code)
	}

	clock.Advance(time.Minute)
	if code := do("10.0.0.1:1003"); code != http.StatusOK {
		t.Fatalf("expected new window to allow request, got %d", code)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if seen != "abc-123" || rr.Header().Get(RequestIDHeader) != "abc-123" {
		t.Errorf("expected caller request id to propagate, got %q / %q", seen, rr.Header().Get(RequestIDHeader))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if _, err := uuid.Parse(seen); err != nil {
		t.Errorf("expected generated uuid, got %q", seen)
	}
}

func TestCORS(t *testing.T) {
	h := CORS("http://localhost:3000/")(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodOptions, "/snapshot", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected preflight 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("unexpected allow-origin %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("foreign origin must not be allowed")
	}
}
