package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/capitalize-ai/rail-support-bot/pkg/logger"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, subject string, scopes ...string) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scopes: scopes,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(GetOperatorID(r.Context())))
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuth(t *testing.T) {
	h := Auth(testSecret)(RequireScope(ScopeOps)(http.HandlerFunc(okHandler)))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"bad format", "Token abc", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, "other", "op-1", ScopeOps), http.StatusUnauthorized},
		{"missing scope", "Bearer " + signToken(t, testSecret, "op-1", "read"), http.StatusForbidden},
		{"valid", "Bearer " + signToken(t, testSecret, "op-1", ScopeOps), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/cases", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := serve(h, req)
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
			if tt.status == http.StatusOK && rec.Body.String() != "op-1" {
				t.Errorf("expected operator id in context, got %q", rec.Body.String())
			}
		})
	}
}

func TestWebhookToken(t *testing.T) {
	h := WebhookToken("s3cret")(http.HandlerFunc(okHandler))

	tests := []struct {
		target string
		status int
	}{
		{"/webhook/wazzup", http.StatusUnauthorized},
		{"/webhook/wazzup?token=nope", http.StatusUnauthorized},
		{"/webhook/wazzup?token=s3cret", http.StatusOK},
		{"/webhook/wazzup?crmKey=s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		rec := serve(h, httptest.NewRequest(http.MethodPost, tt.target, nil))
		if rec.Code != tt.status {
			t.Errorf("%s: expected %d, got %d", tt.target, tt.status, rec.Code)
		}
	}

	open := WebhookToken("")(http.HandlerFunc(okHandler))
	if rec := serve(open, httptest.NewRequest(http.MethodPost, "/webhooks", nil)); rec.Code != http.StatusOK {
		t.Errorf("expected open webhook without a secret, got %d", rec.Code)
	}
}

func TestLoggingCorrelationID(t *testing.T) {
	var seen string
	h := Logging(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Correlation-ID", "corr-1")
	rec := serve(h, req)
	if seen != "corr-1" || rec.Header().Get("X-Correlation-ID") != "corr-1" {
		t.Errorf("expected correlation id to be propagated, got %q / %q", seen, rec.Header().Get("X-Correlation-ID"))
	}

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if seen == "" || rec.Header().Get("X-Correlation-ID") != seen {
		t.Errorf("expected generated correlation id, got %q", seen)
	}
}

func TestLoggingFlush(t *testing.T) {
	h := Logging(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("expected wrapped writer to implement http.Flusher")
		}
		w.Write([]byte("data: x\n\n"))
		f.Flush()
	}))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/stream", nil))
	if !rec.Flushed {
		t.Error("expected flush to reach the underlying writer")
	}
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(2, time.Minute)(http.HandlerFunc(okHandler))
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhooks", nil)
		// Same client on a new source port each time.
		req.RemoteAddr = "10.0.0.1:" + strconv.Itoa(1234+i)
		last = serve(h, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Errorf("expected third request to be limited, got %d", last.Code)
	}
	if got := last.Header().Get("Retry-After"); got != "60" {
		t.Errorf("expected Retry-After 60, got %q", got)
	}

	req := httptest.NewRequest(http.MethodPost, "/webhooks", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	if code := serve(h, req).Code; code != http.StatusOK {
		t.Errorf("expected other client to pass, got %d", code)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		window time.Duration
		want   int
	}{
		{time.Minute, 60},
		{1500 * time.Millisecond, 2},
		{100 * time.Millisecond, 1},
	}
	for _, tt := range tests {
		if got := retryAfterSeconds(tt.window); got != tt.want {
			t.Errorf("retryAfterSeconds(%v): expected %d, got %d", tt.window, tt.want, got)
		}
	}
}

func TestValidation(t *testing.T) {
	for _, ok := range []string{"hello", strings.Repeat("details ", 2000)} {
		if err := ValidateMessageText(ok); err != nil {
			t.Errorf("expected valid text of %d bytes, got %v", len(ok), err)
		}
	}
	for _, bad := range []string{"", "\xff\xfe"} {
		if err := ValidateMessageText(bad); err == nil {
			t.Errorf("expected %q to be rejected", bad)
		}
	}

	if err := ValidateConversationKey(strings.Repeat("ab", 32)); err != nil {
		t.Errorf("expected valid key, got %v", err)
	}
	for _, bad := range []string{"", "abc", strings.Repeat("AB", 32), "77010000000"} {
		if err := ValidateConversationKey(bad); err == nil {
			t.Errorf("expected key %q to be rejected", bad)
		}
	}

	if err := ValidateTicketID("KTZH-20260301-ABC123-1A2B3C"); err != nil {
		t.Errorf("expected valid ticket id, got %v", err)
	}
	for _, bad := range []string{"", "KTZH", "KTZH-../x", "a b-c"} {
		if err := ValidateTicketID(bad); err == nil {
			t.Errorf("expected ticket id %q to be rejected", bad)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := serve(SecurityHeaders(http.HandlerFunc(okHandler)), httptest.NewRequest(http.MethodGet, "/health", nil))
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("expected nosniff, got %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("expected no-store, got %q", got)
	}
}
