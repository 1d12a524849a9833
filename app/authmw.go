package app

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"library_lending/apperr"
	"library_lending/auth"
	"library_lending/service"
)

const identityKey = "identity"

// bearer 取出 "Authorization: Bearer <token>" 里的 token
func bearer(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if h == "" {
		return "", false
	}
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", true
	}
	return strings.TrimSpace(tok), true
}

// AuthRequired resolves the bearer token to an Identity and stores it on the context.
func AuthRequired(accounts *service.Accounts) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, _ := bearer(c)
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		id, err := accounts.Resolve(c.Request.Context(), tok)
		if err != nil {
			abortResolve(c, err)
			return
		}
		c.Set(identityKey, id)
		c.Set("userID", id.UserID)
		c.Next()
	}
}

// OptionalAuth 有 token 就解析，没有就匿名放行；token 无效仍然 401
func OptionalAuth(accounts *service.Accounts) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, present := bearer(c)
		if !present {
			c.Next()
			return
		}
		id, err := accounts.Resolve(c.Request.Context(), tok)
		if err != nil {
			abortResolve(c, err)
			return
		}
		c.Set(identityKey, id)
		c.Set("userID", id.UserID)
		c.Next()
	}
}

// abortResolve: 坏 token 是 401；存储挂了不算客户端的错，按错误类型给 5xx
func abortResolve(c *gin.Context, err error) {
	if errors.Is(err, apperr.ErrUnauthenticated) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "invalid token"})
		return
	}
	_ = c.Error(err)
	status := StatusOf(err)
	c.AbortWithStatusJSON(status, H{"error": http.StatusText(status)})
}

// AdminOnly 必须挂在 AuthRequired 之后
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := IdentityFrom(c)
		if id == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		if !id.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the caller resolved by AuthRequired, or nil.
func IdentityFrom(c *gin.Context) *auth.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*auth.Identity)
	return id
}
