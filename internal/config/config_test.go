// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "synthcheck-cli", cfg.Logger.ServiceName)

	// The automation timings are the contract the whole flow is built on.
	assert.Equal(t, 30*time.Second, cfg.Automation.ReadyTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Automation.ReadyPoll)
	assert.Equal(t, 50*time.Millisecond, cfg.Automation.KeystrokeDelay)
	assert.Equal(t, 300*time.Millisecond, cfg.Automation.SettleInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.Automation.SuggestionPoll)
	assert.Equal(t, 3*time.Second, cfg.Automation.SuggestionTimeout)
	assert.Equal(t, 1, cfg.Automation.CommitRetries)
	assert.Equal(t, 2*time.Second, cfg.Automation.UploadSettle)
	assert.Equal(t, 30*time.Second, cfg.Automation.StaleAfter)
	assert.True(t, cfg.Automation.ProceedWithoutVerifiedUpload)

	assert.Equal(t, "@SynthID", cfg.Automation.MentionToken)
	assert.Equal(t, "SynthID", cfg.Automation.MentionFilter)

	require.NoError(t, cfg.Validate())
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(v *viper.Viper)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(v *viper.Viper) {},
		},
		{
			name:    "empty chat url",
			mutate:  func(v *viper.Viper) { v.Set("browser.chat_url", "") },
			wantErr: "chat_url",
		},
		{
			name:    "zero ready timeout",
			mutate:  func(v *viper.Viper) { v.Set("automation.ready_timeout", "0s") },
			wantErr: "ready_timeout",
		},
		{
			name:    "negative commit retries",
			mutate:  func(v *viper.Viper) { v.Set("automation.commit_retries", -1) },
			wantErr: "commit_retries",
		},
		{
			name:    "empty mention token",
			mutate:  func(v *viper.Viper) { v.Set("automation.mention_token", "") },
			wantErr: "mention_token",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			tc.mutate(v)

			cfg, err := Load(v)
			if tc.wantErr == "" {
				require.NoError(t, err)
				require.NotNil(t, cfg)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestEnvOverride(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("automation.keystroke_delay", "75ms")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 75*time.Millisecond, cfg.Automation.KeystrokeDelay)
}
