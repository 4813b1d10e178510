package observability

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// ResponseRecorder wraps an http.ResponseWriter and remembers the status
// and body size of the response written through it.
type ResponseRecorder struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

// NewResponseRecorder wraps w. The status reads 200 until a handler says
// otherwise.
func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{ResponseWriter: w, status: http.StatusOK}
}

// Status is the first status code written.
func (w *ResponseRecorder) Status() int { return w.status }

// Bytes is the number of body bytes written.
func (w *ResponseRecorder) Bytes() int { return w.bytes }

func (w *ResponseRecorder) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *ResponseRecorder) Write(b []byte) (int, error) {
	w.written = true
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *ResponseRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// RoutePattern is the chi route a request matched, or its raw path when no
// route matched. Metric labels and span names use it to keep instance ids
// out of their values.
func RoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.TrimSuffix(rctx.RoutePattern(), "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}
