package resilience

import (
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestTransientErrorWrapping(t *testing.T) {
	inner := eris.New("rate limited")
	te := NewTransientError(inner, 429)

	assert.Equal(t, "rate limited", te.Error())
	assert.ErrorIs(t, te, inner)
	assert.Equal(t, 429, te.StatusCode)
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit transient", NewTransientError(eris.New("x"), 503), true},
		{"wrapped transient", fmt.Errorf("send: %w", NewTransientError(eris.New("x"), 0)), true},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"connection reset", syscall.ECONNRESET, true},
		{"net timeout", &net.DNSError{IsTimeout: true}, true},
		{"reset message", eris.New("read tcp: connection reset by peer"), true},
		{"throttling message", eris.New("ThrottlingException: rate exceeded"), true},
		{"too many requests message", eris.New("429 Too Many Requests"), true},
		{"plain error", eris.New("attendee not found"), false},
		{"validation error", eris.New("message failed grounding"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 201, 301, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}
