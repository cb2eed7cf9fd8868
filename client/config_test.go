package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "legiswire.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `{
		"url": "https://gateway.legiswire.dev/rpc",
		"token": "tok-abc",
		"requestTimeoutMs": 5000,
		"connectionTimeoutMs": 2000,
		"reconnect": {"baseMs": 250, "maxAttempts": 5}
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://gateway.legiswire.dev/rpc", cfg.URL)
	assert.Equal(t, "tok-abc", cfg.Token)
	assert.Equal(t, 5000, cfg.RequestTimeoutMS)
	assert.Equal(t, 250, cfg.Reconnect.BaseMS)
	assert.Equal(t, 5, cfg.Reconnect.MaxAttempts)
}

func TestLoadConfigRequiresURL(t *testing.T) {
	path := writeConfig(t, `{"token": "tok-abc"}`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadConfigRejectsBadJSON(t *testing.T) {
	path := writeConfig(t, `{not json`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestConfigOptionsApplied(t *testing.T) {
	cfg := &Config{
		URL:                 "https://gateway.legiswire.dev/rpc",
		Token:               "tok-abc",
		RequestTimeoutMS:    5000,
		ConnectionTimeoutMS: 2000,
		Reconnect:           ReconnectConfig{BaseMS: 250, MaxAttempts: 5},
	}

	c, err := NewClient(cfg.URL, cfg.Options()...)
	require.NoError(t, err)

	impl := c.(*clientImpl)
	assert.Equal(t, 5*time.Second, impl.requestTimeout)
	assert.Equal(t, 2*time.Second, impl.connectionTimeout)
	assert.Equal(t, 5, impl.policy.maxAttempts)
	require.NotNil(t, impl.tokenProvider)
	tok, err := impl.tokenProvider.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", tok)
}

func TestConfigPartialReconnectFallsBack(t *testing.T) {
	cfg := &Config{
		URL:       "https://gateway.legiswire.dev/rpc",
		Reconnect: ReconnectConfig{MaxAttempts: 7},
	}

	c, err := NewClient(cfg.URL, cfg.Options()...)
	require.NoError(t, err)

	impl := c.(*clientImpl)
	assert.Equal(t, 7, impl.policy.maxAttempts)

	delay, _, ok := impl.policy.next()
	require.True(t, ok)
	assert.Equal(t, DefaultReconnectBase, delay)
}
