package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.5:4321"
	assert.Equal(t, "10.0.0.5", GetClientIP(r))

	r.Header.Set("X-Real-IP", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", GetClientIP(r))

	r.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")
	assert.Equal(t, "198.51.100.1", GetClientIP(r))

	r.Header.Set("X-Forwarded-For", "not-an-ip")
	assert.Equal(t, "203.0.113.9", GetClientIP(r))
}
