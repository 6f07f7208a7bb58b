package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("hunter: invalid api key"), false},
		{"explicit", NewTransientError(errors.New("overloaded"), 503), true},
		{"eris wrapped", eris.Wrap(NewTransientError(errors.New("rate limited"), 429), "hunter: domain search"), true},
		{"fmt wrapped", fmt.Errorf("jina: read: %w", NewTransientError(errors.New("bad gateway"), 502)), true},
		{"conn reset", fmt.Errorf("write tcp: %w", syscall.ECONNRESET), true},
		{"conn refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), true},
		{"conn aborted", fmt.Errorf("read: %w", syscall.ECONNABORTED), true},
		{"dns timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"dns not found", &net.DNSError{Err: "no such host", IsNotFound: true}, false},
		{"broken pipe text", errors.New("write: Broken Pipe"), true},
		{"tls timeout text", errors.New("net/http: TLS handshake timeout"), true},
		{"idle conn text", errors.New("http: server closed idle connection"), true},
		{"cancelled", context.Canceled, false},
		{"cancelled beats transient", errors.Join(context.Canceled, NewTransientError(errors.New("503"), 503)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("too many requests")
	te := NewTransientError(inner, http.StatusTooManyRequests)

	assert.Equal(t, "too many requests", te.Error())
	assert.ErrorIs(t, te, inner)
	assert.Equal(t, http.StatusTooManyRequests, te.StatusCode)
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404, 422, 501} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}
