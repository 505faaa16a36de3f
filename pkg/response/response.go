package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
)

// Response represents a standard API response
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

// Success sends a success response
func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: 0,
		Msg:  "success",
		Data: data,
	})
}

// Error sends an error response. Business errors keep HTTP 200 and carry their code.
func Error(ctx context.Context, c *app.RequestContext, err error) {
	var e *errcode.Error
	if !errors.As(err, &e) {
		e = errcode.ErrInternalServer
	}

	c.JSON(http.StatusOK, Response{
		Code: e.Code,
		Msg:  e.Msg,
	})
}

// ErrorWithCode sends an error response with specific error code
func ErrorWithCode(ctx context.Context, c *app.RequestContext, e *errcode.Error) {
	c.JSON(http.StatusOK, Response{
		Code: e.Code,
		Msg:  e.Msg,
	})
}

// Unauthorized sends a 401 unauthorized response
func Unauthorized(ctx context.Context, c *app.RequestContext, e *errcode.Error) {
	if e == nil {
		e = errcode.ErrUnauthorized
	}
	c.JSON(http.StatusUnauthorized, Response{
		Code: e.Code,
		Msg:  e.Msg,
	})
}

// Forbidden sends a 403 forbidden response with optional detail data
func Forbidden(ctx context.Context, c *app.RequestContext, e *errcode.Error, data interface{}) {
	if e == nil {
		e = errcode.ErrForbidden
	}
	c.JSON(http.StatusForbidden, Response{
		Code: e.Code,
		Msg:  e.Msg,
		Data: data,
	})
}
