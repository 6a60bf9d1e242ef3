// internal/browser/session/session_test.go
package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/synthcheck-cli/internal/config"
)

func TestAllocatorOptions(t *testing.T) {
	t.Run("headed default", func(t *testing.T) {
		opts := allocatorOptions(config.BrowserConfig{})
		// Base flags only; no headless or exec-path options added.
		assert.GreaterOrEqual(t, len(opts), 6)
	})

	t.Run("headless adds options", func(t *testing.T) {
		base := allocatorOptions(config.BrowserConfig{})
		headless := allocatorOptions(config.BrowserConfig{Headless: true})
		assert.Len(t, headless, len(base)+2)
	})

	t.Run("exec path and user data dir", func(t *testing.T) {
		base := allocatorOptions(config.BrowserConfig{})
		opts := allocatorOptions(config.BrowserConfig{
			ExecPath:    "/usr/bin/chromium",
			UserDataDir: "/tmp/profile",
		})
		assert.Len(t, opts, len(base)+2)
	})

	t.Run("extra args become flags", func(t *testing.T) {
		base := allocatorOptions(config.BrowserConfig{})
		opts := allocatorOptions(config.BrowserConfig{Args: []string{"disable-sync", "mute-audio"}})
		assert.Len(t, opts, len(base)+2)
	})
}

func TestJSEncode(t *testing.T) {
	assert.Equal(t, `"plain"`, JSEncode("plain"))
	assert.Equal(t, `"with \"quotes\""`, JSEncode(`with "quotes"`))
	assert.Equal(t, `42`, JSEncode(42))
	// Encoding failures fall back to an empty string literal.
	assert.Equal(t, `""`, JSEncode(make(chan int)))
}
