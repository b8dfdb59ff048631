package httputils

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapturesStatusAndBytes(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	rw.WriteHeader(418)
	n, err := rw.Write([]byte("short and stout"))
	assert.NoError(t, err)
	assert.Equal(t, 15, n)

	assert.Equal(t, 418, rw.StatusCode)
	assert.Equal(t, 15, rw.BytesWritten)
	assert.Equal(t, 418, rec.Code)
}

func TestImplicit200OnWrite(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	_, err := rw.Write([]byte("ok"))
	assert.NoError(t, err)
	assert.Equal(t, 200, rw.StatusCode)
	assert.True(t, rw.HeaderWritten)
}

func TestSecondWriteHeaderIgnored(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	rw.WriteHeader(301)
	rw.WriteHeader(500)
	assert.Equal(t, 301, rw.StatusCode)
	assert.Equal(t, 301, rec.Code)
}

func TestHooksRunOnceBeforeHeaderFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	var order []string
	rw.BeforeWriteHeader(func() {
		order = append(order, "first")
		rw.Header().Set("Set-Cookie", "id=abc")
	})
	rw.BeforeWriteHeader(func() { order = append(order, "second") })

	rw.WriteHeader(200)
	rw.RunBeforeWriteHooks()

	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, "id=abc", rec.Header().Get("Set-Cookie"))
}

func TestHooksRunWhenHandlerNeverWrites(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	ran := false
	rw.BeforeWriteHeader(func() { ran = true })

	// Simulates the middleware calling after a handler that wrote nothing.
	rw.RunBeforeWriteHooks()
	assert.True(t, ran)
	assert.False(t, rw.HeaderWritten)
}

func TestWrapReusesExistingWrapper(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := Wrap(rec)
	assert.Same(t, rw, Wrap(rw))
}
