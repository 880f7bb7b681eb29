// SPDX-License-Identifier: MIT

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseString(t *testing.T) {
	assert.Equal(t, "fallback", ParseString("ZNSIM_TEST_UNSET", "fallback"))

	t.Setenv("ZNSIM_TEST_STR", "value")
	assert.Equal(t, "value", ParseString("ZNSIM_TEST_STR", "fallback"))

	t.Setenv("ZNSIM_TEST_EMPTY", "")
	assert.Equal(t, "fallback", ParseString("ZNSIM_TEST_EMPTY", "fallback"))
}

func TestParseInt(t *testing.T) {
	assert.Equal(t, 7, ParseInt("ZNSIM_TEST_UNSET", 7))

	t.Setenv("ZNSIM_TEST_INT", "42")
	assert.Equal(t, 42, ParseInt("ZNSIM_TEST_INT", 7))

	t.Setenv("ZNSIM_TEST_INT", "not-a-number")
	assert.Equal(t, 7, ParseInt("ZNSIM_TEST_INT", 7))
}

func TestParseFloat(t *testing.T) {
	t.Setenv("ZNSIM_TEST_FLOAT", "2.5")
	assert.Equal(t, 2.5, ParseFloat("ZNSIM_TEST_FLOAT", 1.0))

	t.Setenv("ZNSIM_TEST_FLOAT", "nope")
	assert.Equal(t, 1.0, ParseFloat("ZNSIM_TEST_FLOAT", 1.0))
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true}, {"1", true}, {"yes", true}, {"YES", true},
		{"false", false}, {"0", false}, {"no", false},
		{"garbage", true}, // falls back to default
	}
	for _, tt := range tests {
		t.Setenv("ZNSIM_TEST_BOOL", tt.value)
		assert.Equal(t, tt.want, ParseBool("ZNSIM_TEST_BOOL", true), "value %q", tt.value)
	}
}

func TestParseDuration(t *testing.T) {
	t.Setenv("ZNSIM_TEST_DUR", "90s")
	assert.Equal(t, 90*time.Second, ParseDuration("ZNSIM_TEST_DUR", time.Minute))

	t.Setenv("ZNSIM_TEST_DUR", "soon")
	assert.Equal(t, time.Minute, ParseDuration("ZNSIM_TEST_DUR", time.Minute))
}
