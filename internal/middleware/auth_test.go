package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"idportal/internal/apperr"
	"idportal/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type stubParser map[string]model.Identity

func (p stubParser) Parse(token string) (model.Identity, error) {
	if token == "expired" {
		return model.Identity{}, apperr.Unauthenticated("session expired, sign in again")
	}
	id, ok := p[token]
	if !ok {
		return model.Identity{}, errors.New("signature is invalid")
	}
	return id, nil
}

func newRouter(parser IdentityParser) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	who := func(c *gin.Context) {
		id, ok := IdentityFromContext(c)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"role": "anonymous"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"role": id.Role, "id": id.ID})
	}
	r.GET("/admin", RequireRole(parser, model.RoleAdmin), who)
	r.GET("/any", RequireRole(parser), who)
	r.GET("/optional", OptionalAuth(parser), who)
	return r
}

type body struct {
	Role       string `json:"role"`
	Code       string `json:"code"`
	Error      string `json:"error"`
	StatusCode int    `json:"status_code"`
}

func do(t *testing.T, r http.Handler, path string, mutate func(*http.Request)) (int, body) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var b body
	_ = json.Unmarshal(w.Body.Bytes(), &b)
	return w.Code, b
}

func bearer(tok string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func TestRequireRole(t *testing.T) {
	parser := stubParser{
		"admin":  {ID: uuid.New(), Role: model.RoleAdmin},
		"vendor": {ID: uuid.New(), Role: model.RoleVendor},
	}
	r := newRouter(parser)

	tests := []struct {
		name     string
		path     string
		mutate   func(*http.Request)
		wantCode int
		wantKind string
	}{
		{"missing", "/admin", nil, http.StatusUnauthorized, string(apperr.KindUnauthenticated)},
		{"malformed header", "/admin", func(r *http.Request) { r.Header.Set("Authorization", "Token abc") }, http.StatusUnauthorized, string(apperr.KindUnauthenticated)},
		{"forged", "/admin", bearer("forged"), http.StatusUnauthorized, string(apperr.KindUnauthenticated)},
		{"expired", "/admin", bearer("expired"), http.StatusUnauthorized, string(apperr.KindUnauthenticated)},
		{"wrong role", "/admin", bearer("vendor"), http.StatusForbidden, string(apperr.KindAuthorization)},
		{"admin", "/admin", bearer("admin"), http.StatusOK, ""},
		{"any role", "/any", bearer("vendor"), http.StatusOK, ""},
		{"cookie", "/admin", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "admin"})
		}, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, b := do(t, r, tt.path, tt.mutate)
			if code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, code)
			}
			if b.Code != tt.wantKind {
				t.Fatalf("expected code %q, got %q", tt.wantKind, b.Code)
			}
			if tt.wantCode != http.StatusOK && b.StatusCode != tt.wantCode {
				t.Fatalf("envelope status_code %d", b.StatusCode)
			}
		})
	}

	_, b := do(t, r, "/admin", bearer("expired"))
	if b.Error != "session expired, sign in again" {
		t.Fatalf("expiry message lost: %q", b.Error)
	}
}

func TestOptionalAuth(t *testing.T) {
	r := newRouter(stubParser{"hr": {ID: uuid.New(), Role: model.RoleHR}})

	if code, b := do(t, r, "/optional", nil); code != http.StatusOK || b.Role != "anonymous" {
		t.Fatalf("anonymous: %d %+v", code, b)
	}
	if _, b := do(t, r, "/optional", bearer("forged")); b.Role != "anonymous" {
		t.Fatalf("bad token should fall back to anonymous, got %+v", b)
	}
	if _, b := do(t, r, "/optional", bearer("hr")); b.Role != string(model.RoleHR) {
		t.Fatalf("expected HR, got %+v", b)
	}
}

func TestTokenCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	SetTokenCookie(c, "tok", time.Hour, true)
	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	ck := cookies[0]
	if ck.Name != AccessTokenCookie || ck.Value != "tok" || !ck.HttpOnly || !ck.Secure || ck.SameSite != http.SameSiteNoneMode || ck.MaxAge != 3600 {
		t.Fatalf("unexpected cookie %+v", ck)
	}
}
