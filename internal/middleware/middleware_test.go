package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Rafael-Renck/sistema-preco/internal/ctxkeys"
)

const secret = "test-secret"

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(ctxkeys.UserIDFrom(r.Context()) + "/" + ctxkeys.RoleFrom(r.Context())))
	})
}

func TestAuth(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"missing header", "", http.StatusUnauthorized, ""},
		{"bad scheme", "Token abc", http.StatusUnauthorized, ""},
		{"garbage token", "Bearer abc", http.StatusUnauthorized, ""},
		{"expired", "Bearer " + sign(t, jwt.MapClaims{"userId": "7", "role": "adm", "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized, ""},
		{"no user", "Bearer " + sign(t, jwt.MapClaims{"role": "adm", "exp": exp}), http.StatusUnauthorized, ""},
		{"string id", "Bearer " + sign(t, jwt.MapClaims{"userId": "7", "role": "adm", "exp": exp}), http.StatusOK, "7/adm"},
		{"numeric id", "Bearer " + sign(t, jwt.MapClaims{"userId": 42, "role": "consulta", "exp": exp}), http.StatusOK, "42/consulta"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			Auth(secret)(echoUser()).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body, tt.wantBody)
			}
		})
	}
}

func TestRequireMinRole(t *testing.T) {
	tests := []struct {
		role string
		want int
	}{
		{"adm", http.StatusOK},
		{"consulta", http.StatusForbidden},
		{"", http.StatusForbidden},
		{"admin", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+sign(t, jwt.MapClaims{"userId": "1", "role": tt.role}))
			rec := httptest.NewRecorder()
			Auth(secret)(RequireMinRole(ctxkeys.RoleAdm)(echoUser())).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRateLimitPerUser(t *testing.T) {
	h := Auth(secret)(RateLimit(0.001, 2, zap.NewNop())(echoUser()))
	alice := "Bearer " + sign(t, jwt.MapClaims{"userId": "alice"})
	bob := "Bearer " + sign(t, jwt.MapClaims{"userId": "bob"})

	do := func(token string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := do(alice); code != http.StatusOK {
			t.Fatalf("alice request %d = %d", i, code)
		}
	}
	if code := do(alice); code != http.StatusTooManyRequests {
		t.Errorf("alice third request = %d, want 429", code)
	}
	if code := do(bob); code != http.StatusOK {
		t.Errorf("bob = %d, want own bucket", code)
	}
}

func TestExtractIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if got := extractIP(req); got != "10.0.0.1" {
		t.Errorf("RemoteAddr ip = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "200.1.1.1, 10.0.0.2")
	if got := extractIP(req); got != "200.1.1.1" {
		t.Errorf("forwarded ip = %q", got)
	}
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries", len(entries))
	}
	e := entries[0]
	fields := e.ContextMap()
	if e.Level != zap.WarnLevel || fields["status"] != int64(http.StatusTeapot) || fields["bytes"] != int64(5) || fields["path"] != "/api/health" {
		t.Errorf("entry = %v %v", e.Level, fields)
	}
}
