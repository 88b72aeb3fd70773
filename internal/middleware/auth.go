package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/marketplace/internal/model"
	"github.com/d60-Lab/marketplace/internal/repository"
	"github.com/d60-Lab/marketplace/pkg/jwtauth"
	"github.com/d60-Lab/marketplace/pkg/response"
)

const ctxUserKey = "auth.user"

// Auth 校验 Bearer 令牌并加载当前用户
func Auth(issuer *jwtauth.Issuer, users repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			response.Unauthorized(c, "authentication credentials were not provided")
			return
		}
		uid, err := issuer.Parse(strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")))
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}
		u, err := users.GetByID(c.Request.Context(), uid)
		if err != nil {
			response.Unauthorized(c, "user not found")
			return
		}
		c.Set(ctxUserKey, u)
		c.Next()
	}
}

// StaffOnly 仅允许管理员通过
func StaffOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		u := CurrentUser(c)
		if u == nil || !u.IsStaff {
			response.Forbidden(c)
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user or nil.
func CurrentUser(c *gin.Context) *model.User {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return nil
	}
	u, _ := v.(*model.User)
	return u
}
