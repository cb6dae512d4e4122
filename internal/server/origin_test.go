package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "no origin header", allowed: []string{"http://localhost:8080"}, origin: "", want: true},
		{name: "exact match", allowed: []string{"http://localhost:8080"}, origin: "http://localhost:8080", want: true},
		{name: "case insensitive", allowed: []string{"HTTP://LocalHost:8080"}, origin: "http://localhost:8080", want: true},
		{name: "path ignored", allowed: []string{"https://chat.example.com/app"}, origin: "https://chat.example.com", want: true},
		{name: "different port", allowed: []string{"http://localhost:8080"}, origin: "http://localhost:9090", want: false},
		{name: "different scheme", allowed: []string{"http://localhost:8080"}, origin: "https://localhost:8080", want: false},
		{name: "unlisted host", allowed: []string{"http://localhost:8080"}, origin: "http://evil.example", want: false},
		{name: "malformed origin", allowed: []string{"*"}, origin: "not a url", want: false},
		{name: "wildcard", allowed: []string{"*"}, origin: "http://anything.example", want: true},
		{name: "empty allow list", allowed: nil, origin: "http://localhost:8080", want: false},
		{name: "invalid entries skipped", allowed: []string{"localhost", " ", "http://ok.example"}, origin: "http://ok.example", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := newOriginPolicy(tt.allowed, discardLogger())

			req := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, policy.checkOrigin(req))
		})
	}
}

func TestNormalizeOrigin(t *testing.T) {
	got, ok := normalizeOrigin("HTTPS://Chat.Example.com:443/path?q=1")
	assert.True(t, ok)
	assert.Equal(t, "https://chat.example.com:443", got)

	_, ok = normalizeOrigin("chat.example.com")
	assert.False(t, ok)
}
