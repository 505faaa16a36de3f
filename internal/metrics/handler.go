package metrics

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves gatherer in the prometheus exposition format on hertz
func Handler(gatherer prometheus.Gatherer) app.HandlerFunc {
	h := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{DisableCompression: true})

	return func(ctx context.Context, c *app.RequestContext) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, string(c.Request.URI().RequestURI()), nil)
		if err != nil {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		if accept := c.GetHeader("Accept"); len(accept) > 0 {
			req.Header.Set("Accept", string(accept))
		}

		w := &responseWriter{c: c, header: make(http.Header)}
		h.ServeHTTP(w, req)
		w.flushHeader()
	}
}

// responseWriter writes a net/http response into the hertz response
type responseWriter struct {
	c           *app.RequestContext
	header      http.Header
	wroteHeader bool
}

func (w *responseWriter) Header() http.Header {
	return w.header
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.c.SetStatusCode(code)
	w.flushHeader()
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.c.Write(b)
}

func (w *responseWriter) flushHeader() {
	for k, vs := range w.header {
		// hertz computes the length from the body
		if k == "Content-Length" {
			continue
		}
		w.c.Response.Header.Del(k)
		for _, v := range vs {
			w.c.Response.Header.Add(k, v)
		}
	}
}
