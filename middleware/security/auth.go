package security

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Context key the rest of the gateway reads the caller identity from.
const CtxUserIDKey = "user_id"

type Options struct {
	Secret string
	// Allow ?token= in addition to Authorization: Bearer. WebSocket and SSE
	// clients cannot always set headers.
	AllowQueryToken bool
}

func DefaultOptions(secret string) *Options {
	return &Options{Secret: secret, AllowQueryToken: true}
}

// ParseToken validates an HS256 token and returns the user_id claim.
func ParseToken(secret, token string) (string, error) {
	tok, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", jwt.ErrTokenInvalidClaims
	}
	uid, _ := claims["user_id"].(string)
	if uid == "" {
		// Fall back to the subject claim for older tokens.
		uid, _ = claims["sub"].(string)
	}
	if uid == "" {
		return "", jwt.ErrTokenRequiredClaimMissing
	}
	return uid, nil
}

// TokenFromRequest pulls a token out of the Authorization header or, when
// allowed, the token query parameter.
func TokenFromRequest(c *gin.Context, opts *Options) string {
	if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
		if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return strings.TrimSpace(authz[len("bearer "):])
		}
	}
	if opts.AllowQueryToken {
		return strings.TrimSpace(c.Query("token"))
	}
	return ""
}

func Middleware(opts *Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c, opts)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "token not provided"})
			return
		}
		uid, err := ParseToken(opts.Secret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "could not validate credentials"})
			return
		}
		c.Set(CtxUserIDKey, uid)
		c.Next()
	}
}

// UserID reads the authenticated caller set by Middleware.
func UserID(c *gin.Context) string {
	return c.GetString(CtxUserIDKey)
}
