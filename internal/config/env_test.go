package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	for _, k := range []string{
		"BASE_URL",
		"SOCIALLOAD_LOG_LEVEL",
		"SOCIALLOAD_LOG_FORMAT",
		"SOCIALLOAD_METRICS_ADDR",
		"SOCIALLOAD_REQUEST_TIMEOUT",
		"SOCIALLOAD_RESULTS_DIR",
	} {
		// register restore, then unset so envconfig applies its defaults
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	env, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, env.BaseURL)
	assert.Equal(t, "info", env.LogLevel)
	assert.Equal(t, "console", env.LogFormat)
	assert.Empty(t, env.MetricsAddr)
	assert.Zero(t, env.RequestTimeout)
	assert.Equal(t, ".", env.ResultsDir)
}

func TestParse_Overrides(t *testing.T) {
	t.Setenv("BASE_URL", "http://nginx-thrift:8080")
	t.Setenv("SOCIALLOAD_LOG_FORMAT", "json")
	t.Setenv("SOCIALLOAD_METRICS_ADDR", ":9090")
	t.Setenv("SOCIALLOAD_REQUEST_TIMEOUT", "10s")
	t.Setenv("SOCIALLOAD_RESULTS_DIR", "/tmp/results")

	env, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "http://nginx-thrift:8080", env.BaseURL)
	assert.Equal(t, "json", env.LogFormat)
	assert.Equal(t, ":9090", env.MetricsAddr)
	assert.Equal(t, 10*time.Second, env.RequestTimeout)
	assert.Equal(t, "/tmp/results", env.ResultsDir)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"bad scheme", "BASE_URL", "nginx:8080"},
		{"bad format", "SOCIALLOAD_LOG_FORMAT", "xml"},
		{"bad timeout", "SOCIALLOAD_REQUEST_TIMEOUT", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Parse()
			assert.Error(t, err)
		})
	}
}

func TestMustParse_Panics(t *testing.T) {
	t.Setenv("BASE_URL", "ftp://example")
	assert.Panics(t, func() { MustParse() })
}
