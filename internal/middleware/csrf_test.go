package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// csrfResult はCSRFミドルウェアを1回通したときの結果。
type csrfResult struct {
	called   bool
	recorder *httptest.ResponseRecorder
}

func serveCSRF(t *testing.T, config CSRFConfig, req *http.Request) csrfResult {
	t.Helper()
	var res csrfResult
	handler := NewCSRFMiddleware(config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res.called = true
		w.WriteHeader(http.StatusNoContent)
	}))
	res.recorder = httptest.NewRecorder()
	handler.ServeHTTP(res.recorder, req)
	return res
}

func findCSRFCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == csrfCookieName {
			return c
		}
	}
	return nil
}

func TestCSRFMiddleware_UnsafeMethods(t *testing.T) {
	const token = "abc123"
	tests := []struct {
		name       string
		method     string
		cookie     string
		header     string
		authz      string
		wantReason string
	}{
		{"cookie auth with matching token", http.MethodPost, token, token, "", ""},
		{"matching token on PUT", http.MethodPut, token, token, "", ""},
		{"bearer without any token", http.MethodPost, "", "", "Bearer session-token", ""},
		{"bearer scheme is case-insensitive", http.MethodDelete, "", "", "bearer session-token", ""},
		{"bearer with stale cookie", http.MethodPatch, "stale", "other", "Bearer session-token", ""},
		{"missing cookie", http.MethodPost, "", token, "", "missing cookie token"},
		{"missing header", http.MethodPut, token, "", "", "missing header token"},
		{"token mismatch", http.MethodPatch, token, "xyz789", "", "token mismatch"},
		{"token prefix is not a match", http.MethodDelete, token, token[:3], "", "token mismatch"},
		{"empty bearer falls back to cookie check", http.MethodPost, "", "", "Bearer ", "missing cookie token"},
		{"basic auth is not a bypass", http.MethodPost, "", "", "Basic dXNlcjpwdw==", "missing cookie token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/programs", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(csrfHeaderName, tt.header)
			}
			if tt.authz != "" {
				req.Header.Set("Authorization", tt.authz)
			}

			if _, bearer := bearerToken(req); !bearer {
				if got := validateCSRF(req); got != tt.wantReason {
					t.Errorf("validateCSRF() = %q, want %q", got, tt.wantReason)
				}
			}

			res := serveCSRF(t, CSRFConfig{}, req)
			if tt.wantReason == "" {
				if !res.called || res.recorder.Code != http.StatusNoContent {
					t.Errorf("request should pass: called=%v status=%d", res.called, res.recorder.Code)
				}
				return
			}

			if res.called {
				t.Fatal("handler must not run when CSRF validation fails")
			}
			if res.recorder.Code != http.StatusForbidden {
				t.Errorf("status = %d, want %d", res.recorder.Code, http.StatusForbidden)
			}
			if ct := res.recorder.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			var body ErrorResponseBody
			if err := json.NewDecoder(res.recorder.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode error body: %v", err)
			}
			if body.Code != "CSRF_TOKEN_INVALID" || body.Category != "auth" || body.Message == "" || body.Action == "" {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestCSRFMiddleware_SafeMethodsIssueCookie(t *testing.T) {
	tests := []struct {
		name   string
		config CSRFConfig
	}{
		{"local", CSRFConfig{}},
		{"production", CSRFConfig{CookieSecure: true, CookieDomain: "moai.example.com"}},
	}
	for _, tt := range tests {
		for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
			t.Run(tt.name+"/"+method, func(t *testing.T) {
				res := serveCSRF(t, tt.config, httptest.NewRequest(method, "/api/profile", nil))
				if !res.called {
					t.Fatal("safe method should reach the handler without a token")
				}

				c := findCSRFCookie(res.recorder.Result())
				if c == nil {
					t.Fatal("csrf cookie should be issued")
				}
				if len(c.Value) != 64 {
					t.Errorf("token length = %d, want 64 hex chars", len(c.Value))
				}
				if c.Path != "/" || c.MaxAge != csrfCookieMaxAge || c.HttpOnly || c.SameSite != http.SameSiteLaxMode {
					t.Errorf("cookie attributes = %+v", c)
				}
				if c.Secure != tt.config.CookieSecure {
					t.Errorf("Secure = %v, want %v", c.Secure, tt.config.CookieSecure)
				}
				if c.Domain != tt.config.CookieDomain {
					t.Errorf("Domain = %q, want %q", c.Domain, tt.config.CookieDomain)
				}
			})
		}
	}
}

func TestCSRFMiddleware_SafeMethodKeepsExistingCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})

	res := serveCSRF(t, CSRFConfig{}, req)
	if !res.called {
		t.Fatal("handler should be called")
	}
	if c := findCSRFCookie(res.recorder.Result()); c != nil {
		t.Errorf("existing cookie should not be replaced, got %q", c.Value)
	}
}

func TestCSRFMiddleware_BearerRequestDoesNotIssueCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/completions", nil)
	req.Header.Set("Authorization", "Bearer session-token")

	res := serveCSRF(t, CSRFConfig{}, req)
	if !res.called {
		t.Fatal("bearer request should reach the handler")
	}
	if c := findCSRFCookie(res.recorder.Result()); c != nil {
		t.Error("unsafe bearer request should not set a csrf cookie")
	}
}

func TestCSRFTokenHandler(t *testing.T) {
	config := CSRFConfig{CookieSecure: true, CookieDomain: "moai.example.com"}

	t.Run("issues token", func(t *testing.T) {
		w := httptest.NewRecorder()
		NewCSRFTokenHandler(config).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		c := findCSRFCookie(w.Result())
		if c == nil {
			t.Fatal("csrf cookie should be issued")
		}
		if body["token"] == "" || body["token"] != c.Value {
			t.Errorf("body token %q should equal cookie %q", body["token"], c.Value)
		}
		if !c.Secure || c.Domain != "moai.example.com" || c.MaxAge != csrfCookieMaxAge {
			t.Errorf("cookie attributes = %+v", c)
		}
	})

	t.Run("returns existing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
		w := httptest.NewRecorder()
		NewCSRFTokenHandler(config).ServeHTTP(w, req)

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if body["token"] != "existing" {
			t.Errorf("token = %q, want existing", body["token"])
		}
		if findCSRFCookie(w.Result()) != nil {
			t.Error("existing cookie should not be re-issued")
		}
	})
}

func TestGenerateCSRFToken_Unique(t *testing.T) {
	a, err := generateCSRFToken()
	if err != nil {
		t.Fatalf("generateCSRFToken: %v", err)
	}
	b, err := generateCSRFToken()
	if err != nil {
		t.Fatalf("generateCSRFToken: %v", err)
	}
	if a == b {
		t.Error("tokens should differ between calls")
	}
}
