package mw

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sahoo999/meeting-ai/pkg/auth"
	"github.com/Sahoo999/meeting-ai/pkg/ratelimit"
)

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = RequestIDFrom(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.HasPrefix(seen, "req_") {
		t.Fatalf("request id=%q", seen)
	}
	if rr.Header().Get("X-Request-ID") != seen {
		t.Fatalf("header=%q, ctx=%q", rr.Header().Get("X-Request-ID"), seen)
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req_from_client")
	h.ServeHTTP(rr, req)
	if seen != "req_from_client" {
		t.Fatalf("request id=%q, want client value", seen)
	}
}

func TestRecover_PanicReturnsJSONEnvelope(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := RequestID(Recover(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/webhook", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	var env struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Error != "internal error" {
		t.Fatalf("error=%q", env.Error)
	}
	if !strings.Contains(buf.String(), `"panic":"boom"`) {
		t.Fatalf("expected panic to be logged: %q", buf.String())
	}
}

func TestAccessLog_RecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := RequestID(AccessLog(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("unmarshal log: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "request" || rec["path"] != "/healthz" {
		t.Fatalf("unexpected record: %#v", rec)
	}
	if status, _ := rec["status"].(float64); int(status) != http.StatusTeapot {
		t.Fatalf("status=%v", rec["status"])
	}
	if id, _ := rec["request_id"].(string); id == "" {
		t.Fatalf("expected request_id in log")
	}
}

func TestAuth_RejectsMissingAndInvalidBearer(t *testing.T) {
	h := Auth(auth.NewVerifier("secret"), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/premium/usage", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing bearer: status=%d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/premium/usage", nil)
	req.Header.Set("Authorization", "Bearer nope")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("invalid bearer: status=%d", rr.Code)
	}
}

func TestAuth_SetsPrincipal(t *testing.T) {
	tok, err := auth.Issue("secret", "user_9", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	var got string
	h := Auth(auth.NewVerifier("secret"), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := auth.PrincipalFrom(r.Context())
		got = p.UserID
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/premium/usage", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent || got != "user_9" {
		t.Fatalf("status=%d user=%q", rr.Code, got)
	}
}

func TestRateLimit_DeniesWithRetryAfter(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{RPS: 1, Burst: 1})
	h := RateLimit(limiter, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/premium/products", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), &auth.Principal{UserID: "u1"}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("first status=%d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second status=%d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestDeadline_BoundsContext(t *testing.T) {
	var hasDeadline bool
	h := Deadline(time.Second, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background()))
	if !hasDeadline {
		t.Fatalf("expected request context deadline")
	}
}
