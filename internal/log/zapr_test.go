package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestNewZapr_JSON(t *testing.T) {
	var buf bytes.Buffer
	lggr, err := NewZapr(Options{Level: "info", JSON: true, Output: &buf})
	require.NoError(t, err)

	lggr.WithName("workload").Info("seed user created", "seedUserId", 1)
	lggr.V(1).Info("debug detail")

	line := buf.String()
	assert.Equal(t, "seed user created", gjson.Get(line, "msg").String())
	assert.Equal(t, "workload", gjson.Get(line, "logger").String())
	assert.Equal(t, int64(1), gjson.Get(line, "seedUserId").Int())
	assert.NotContains(t, line, "debug detail")
}

func TestNewZapr_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	lggr, err := NewZapr(Options{Level: "debug", Output: &buf})
	require.NoError(t, err)

	lggr.V(1).Info("debug detail")
	assert.Contains(t, buf.String(), "debug detail")
}

func TestNewZapr_InvalidLevel(t *testing.T) {
	_, err := NewZapr(Options{Level: "loud"})
	assert.Error(t, err)
}
