package xresource

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimitConfig_ResourceKey(t *testing.T) {
	tests := []struct {
		cfg  RateLimitConfig
		want string
	}{
		{RateLimitConfig{Type: TypeGlobal}, GlobalID},
		{RateLimitConfig{Type: TypeServiceDefault}, ServiceDefaultID},
		{RateLimitConfig{Type: TypeService, Service: "s"}, "^^^s^"},
		{RateLimitConfig{Type: TypeAPI, Service: "s", Path: "/p"}, "^^^s^/p"},
		{RateLimitConfig{Type: TypeApp, App: "a", Service: "s"}, "a^^^s^"},
		{RateLimitConfig{Type: TypeIP, IP: "1.2.3.4", Service: "s"}, "^1.2.3.4^^s^"},
		{RateLimitConfig{Type: TypeAPI, ResourceID: "x^^^s^/q"}, "x^^^s^/q"},
		{RateLimitConfig{Type: ConfigType(9)}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.cfg.ResourceKey(), tt.cfg.Type.String())
	}
}

func TestRateLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  RateLimitConfig
		err  error
	}{
		{"global", RateLimitConfig{Type: TypeGlobal, QPS: 100}, nil},
		{"api", RateLimitConfig{Type: TypeAPI, Service: "s", Path: "/p"}, nil},
		{"unknown type", RateLimitConfig{Type: 0}, ErrInvalidType},
		{"api without path", RateLimitConfig{Type: TypeAPI, Service: "s"}, ErrMissingDimension},
		{"app without app", RateLimitConfig{Type: TypeApp, Service: "s"}, ErrMissingDimension},
		{"ip without service", RateLimitConfig{Type: TypeIP, IP: "1.1.1.1"}, ErrMissingDimension},
		{"negative qps", RateLimitConfig{Type: TypeGlobal, QPS: -1}, ErrNegativeLimit},
		{"delimiter", RateLimitConfig{Type: TypeService, Service: "a^b"}, ErrInvalidDimension},
		{"bad explicit id", RateLimitConfig{Type: TypeAPI, ResourceID: "x^y"}, ErrInvalidID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestRateLimitConfig_EnabledAndResponse(t *testing.T) {
	off := false
	c := RateLimitConfig{Type: TypeGlobal, ResponseStatus: 503, ResponseContent: "busy"}
	assert.True(t, c.IsEnabled())
	c.Enabled = &off
	assert.False(t, c.IsEnabled())
	assert.Equal(t, Response{Status: 503, Content: "busy"}, c.Response())
	assert.False(t, c.Response().IsZero())
	assert.True(t, Response{}.IsZero())
	assert.Equal(t, "ConfigType(0)", ConfigType(0).String())
}
