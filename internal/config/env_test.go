// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHelpers(t *testing.T) {
	t.Setenv("T_STR", "value")
	t.Setenv("T_INT", "42")
	t.Setenv("T_BAD_INT", "x")
	t.Setenv("T_DUR", "90s")
	t.Setenv("T_BOOL", "YES")
	t.Setenv("T_BAD_BOOL", "maybe")
	t.Setenv("T_FLOAT", "0.25")
	t.Setenv("T_EMPTY", "")
	t.Setenv("T_LIST", " a, ,b ")

	assert.Equal(t, "value", ParseString("T_STR", "d"))
	assert.Equal(t, "d", ParseString("T_EMPTY", "d"))
	assert.Equal(t, "d", ParseString("T_UNSET_XYZ", "d"))
	assert.Equal(t, 42, ParseInt("T_INT", 1))
	assert.Equal(t, 1, ParseInt("T_BAD_INT", 1))
	assert.Equal(t, 90*time.Second, ParseDuration("T_DUR", time.Second))
	assert.True(t, ParseBool("T_BOOL", false))
	assert.True(t, ParseBool("T_BAD_BOOL", true))
	assert.InDelta(t, 0.25, ParseFloat("T_FLOAT", 1), 1e-9)
	assert.Equal(t, []string{"a", "b"}, ParseList("T_LIST", nil))
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(p, []byte("MINIOS_DOTENV_A=fromfile\nMINIOS_DOTENV_B=fromfile\n"), 0o600))

	t.Setenv("MINIOS_DOTENV_A", "fromenv")
	// register B for cleanup; godotenv only sets unset variables
	t.Setenv("MINIOS_DOTENV_B", "")
	require.NoError(t, os.Unsetenv("MINIOS_DOTENV_B"))

	require.NoError(t, LoadDotEnv(p, filepath.Join(dir, "missing.env"), ""))

	assert.Equal(t, "fromenv", os.Getenv("MINIOS_DOTENV_A"))
	assert.Equal(t, "fromfile", os.Getenv("MINIOS_DOTENV_B"))
}
