package middleware

import (
	"context"
	"errors"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/nexo-chat/internal/service"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
	"github.com/mbeoliero/nexo-chat/pkg/response"
)

// WriteGuard rejects suspended users with 403 and the suspension detail. Must run after JWTAuth.
func WriteGuard(guard *service.Guard) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		suspension, err := guard.CheckWrite(ctx, GetUserId(c))
		if err != nil {
			var e *errcode.Error
			if errors.As(err, &e) && errors.Is(e, errcode.ErrAccountSuspended) {
				response.Forbidden(ctx, c, e, suspension)
			} else {
				response.Error(ctx, c, err)
			}
			c.Abort()
			return
		}
		c.Next(ctx)
	}
}
