package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsAndEnvPrecedence(t *testing.T) {
	t.Setenv("DVR_HOST", "10.0.0.9")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9", cfg.Host)
	assert.Equal(t, 5050, cfg.CommandPort)
	assert.Equal(t, 6050, cfg.MediaPort)
	assert.Equal(t, "admin", cfg.Username)
	assert.Equal(t, ":8080", cfg.Listen)
}

func TestLoadYAMLThenEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hieasy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"host: 192.168.1.50\ncommand_port: 15050\nlisten: \":9000\"\n"), 0o644))

	t.Setenv("DVR_CMD_PORT", "25050")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.50", cfg.Host)
	assert.Equal(t, 25050, cfg.CommandPort, "environment beats the file")
	assert.Equal(t, ":9000", cfg.Listen)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRequiresHost(t *testing.T) {
	t.Setenv("DVR_HOST", "")
	_, err := Load("")
	assert.Error(t, err)
}

func TestParseIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("HIEASY_TEST_INT", "not-a-number")
	assert.Equal(t, 7, ParseInt("HIEASY_TEST_INT", 7))
}

func TestParseBool(t *testing.T) {
	t.Setenv("HIEASY_TEST_BOOL", "TRUE")
	assert.True(t, ParseBool("HIEASY_TEST_BOOL", false))
	t.Setenv("HIEASY_TEST_BOOL", "garbage")
	assert.False(t, ParseBool("HIEASY_TEST_BOOL", false))
}

func TestParseIntList(t *testing.T) {
	t.Setenv("HIEASY_TEST_LIST", "0, 2,5")
	assert.Equal(t, []int{0, 2, 5}, ParseIntList("HIEASY_TEST_LIST", nil))
	t.Setenv("HIEASY_TEST_LIST", "0,x")
	assert.Equal(t, []int{9}, ParseIntList("HIEASY_TEST_LIST", []int{9}))
}
