package middleware

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/nexo-chat/pkg/errcode"
	"github.com/mbeoliero/nexo-chat/pkg/jwt"
	"github.com/mbeoliero/nexo-chat/pkg/response"
)

const (
	// AuthorizationHeader is the header key for authorization
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer token
	BearerPrefix = "Bearer "
	// UserIdKey is the context key for user Id
	UserIdKey = "user_id"
)

// JWTAuth verifies tokens issued by the external auth service with the shared secret
func JWTAuth(secret string) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		authHeader := string(c.GetHeader(AuthorizationHeader))
		if authHeader == "" {
			response.Unauthorized(ctx, c, errcode.ErrTokenMissing)
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			response.Unauthorized(ctx, c, errcode.ErrTokenInvalid)
			c.Abort()
			return
		}

		claims, err := jwt.ParseToken(strings.TrimPrefix(authHeader, BearerPrefix), secret)
		if err != nil {
			response.Unauthorized(ctx, c, errcode.ErrTokenInvalid)
			c.Abort()
			return
		}

		c.Set(UserIdKey, claims.UserId)
		c.Next(ctx)
	}
}

// GetUserId gets user Id from context
func GetUserId(c *app.RequestContext) int64 {
	if v, ok := c.Get(UserIdKey); ok {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return 0
}
