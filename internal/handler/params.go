package handler

import (
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
)

// pathId parses a positive int64 path parameter
func pathId(c *app.RequestContext, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// queryInt64 parses an optional int64 query parameter, falling back to def
func queryInt64(c *app.RequestContext, name string, def int64) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
