// Package httputils provides small HTTP plumbing shared by the middleware
// layers.
package httputils

import (
	"bufio"
	"errors"
	"net"
	"net/http"
)

// ResponseWriter wraps http.ResponseWriter, captures the status code and the
// number of bytes written, and runs registered hooks just before the header
// is flushed. The session middleware uses the hook to persist session state
// while headers can still be set.
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode    int
	BytesWritten  int
	HeaderWritten bool

	beforeWrite []func()
	hooksRan    bool
}

// NewResponseWriter creates a new response writer wrapper.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// BeforeWriteHeader registers fn to run once, right before the first header
// flush. Hooks run in registration order and may still set headers.
func (rw *ResponseWriter) BeforeWriteHeader(fn func()) {
	rw.beforeWrite = append(rw.beforeWrite, fn)
}

// RunBeforeWriteHooks runs pending hooks once. It is called automatically on
// the first header flush; middleware may also call it after the handler
// returns without writing anything.
func (rw *ResponseWriter) RunBeforeWriteHooks() {
	if rw.hooksRan {
		return
	}
	rw.hooksRan = true
	for _, fn := range rw.beforeWrite {
		fn()
	}
}

// WriteHeader runs pending hooks, captures the status code and passes it to
// the underlying ResponseWriter. Later calls are ignored.
func (rw *ResponseWriter) WriteHeader(code int) {
	if rw.HeaderWritten {
		return
	}
	rw.RunBeforeWriteHooks()
	rw.HeaderWritten = true
	rw.StatusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the bytes written and passes them through.
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.HeaderWritten {
		rw.WriteHeader(http.StatusOK)
	}
	size, err := rw.ResponseWriter.Write(b)
	rw.BytesWritten += size
	return size, err
}

// Hijack forwards to the underlying ResponseWriter when supported.
func (rw *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, errors.New("underlying ResponseWriter does not implement http.Hijacker")
}

// Flush forwards to the underlying ResponseWriter when supported.
func (rw *ResponseWriter) Flush() {
	if !rw.HeaderWritten {
		rw.WriteHeader(http.StatusOK)
	}
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Wrap returns w unchanged when it is already a *ResponseWriter, otherwise
// it wraps it. Middleware layers share one wrapper per request.
func Wrap(w http.ResponseWriter) *ResponseWriter {
	if rw, ok := w.(*ResponseWriter); ok {
		return rw
	}
	return NewResponseWriter(w)
}
