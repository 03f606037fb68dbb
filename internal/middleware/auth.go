package middleware

import (
	"net/http"
	"strings"
	"time"

	"idportal/internal/apperr"
	"idportal/internal/model"
	"idportal/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	AccessTokenCookie = "access_token"
	identityKey       = "identity"
)

// IdentityParser verifies an access token.
type IdentityParser interface {
	Parse(token string) (model.Identity, error)
}

// SetTokenCookie stores the access token as an HttpOnly cookie.
// Production (cross-origin): SameSiteNoneMode + Secure=true
// Development (same-site):   SameSiteLaxMode  + Secure=false
func SetTokenCookie(c *gin.Context, token string, ttl time.Duration, secure bool) {
	c.SetSameSite(sameSite(secure))
	c.SetCookie(AccessTokenCookie, token, int(ttl.Seconds()), "/", "", secure, true)
}

func ClearTokenCookie(c *gin.Context, secure bool) {
	c.SetSameSite(sameSite(secure))
	c.SetCookie(AccessTokenCookie, "", -1, "/", "", secure, true)
}

func sameSite(secure bool) http.SameSite {
	if secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// tokenFrom reads the cookie first and falls back to the Authorization header.
func tokenFrom(c *gin.Context) (string, bool, string) {
	if tok, err := c.Cookie(AccessTokenCookie); err == nil && tok != "" {
		return tok, true, ""
	}
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false, ""
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false, "Invalid authorization format. Expected 'Bearer <token>'"
	}
	return parts[1], true, ""
}

func abort(c *gin.Context, err *apperr.Error) {
	status := apperr.HTTPStatus(err.Kind)
	c.AbortWithStatusJSON(status, response.ErrorWithCode(status, string(err.Kind), err.Field, err.Message))
}

// RequireRole validates the access token and checks the caller's role is one
// of allowedRoles. With no roles any signed-in caller passes.
func RequireRole(parser IdentityParser, allowedRoles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok, msg := tokenFrom(c)
		if !ok {
			if msg == "" {
				msg = "Authorization is missing"
			}
			abort(c, apperr.Unauthenticated(msg))
			return
		}

		id, err := parser.Parse(tok)
		if err != nil {
			e := apperr.Unauthenticated("Invalid token")
			if apperr.Is(err, apperr.KindUnauthenticated) {
				e = apperr.Unauthenticated(err.Error())
			}
			abort(c, e)
			return
		}

		if len(allowedRoles) > 0 && !hasRole(id.Role, allowedRoles) {
			abort(c, apperr.Authorization("Access denied: insufficient permissions"))
			return
		}

		setIdentity(c, id)
		c.Next()
	}
}

// OptionalAuth attaches the identity when a valid token is present and
// otherwise lets the request through anonymously.
func OptionalAuth(parser IdentityParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tok, ok, _ := tokenFrom(c); ok {
			if id, err := parser.Parse(tok); err == nil {
				setIdentity(c, id)
			}
		}
		c.Next()
	}
}

func setIdentity(c *gin.Context, id model.Identity) {
	c.Set(identityKey, id)
	c.Set("userID", id.ID.String())
	c.Set("userRole", string(id.Role))
}

// IdentityFromContext returns the identity RequireRole or OptionalAuth stored.
func IdentityFromContext(c *gin.Context) (model.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return model.Identity{}, false
	}
	id, ok := v.(model.Identity)
	return id, ok
}

func hasRole(role model.Role, allowed []model.Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
