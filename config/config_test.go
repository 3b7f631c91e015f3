package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{AccessTokenKey, "GRADIO_SPACE", "HF_API_URL", "ASSET_ROOT", "ASSET_BUCKET", "GENERATION_TIMEOUT", "PORT"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.False(t, cfg.HasCredential())
	assert.Equal(t, DefaultSpace, cfg.Space)
	assert.Equal(t, DefaultHuggingFaceAPIURL, cfg.HuggingFaceAPIURL)
	assert.Equal(t, "public", cfg.AssetRoot)
	assert.False(t, cfg.AssetBucket.Enabled())
	assert.Equal(t, 180*time.Second, cfg.GenerationTimeout)
	assert.Equal(t, "8080", cfg.Port)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv(AccessTokenKey, "hf_abcdefgh")
	t.Setenv("GRADIO_SPACE", "human37/IDM-VTON")
	t.Setenv("ASSET_BUCKET", "outfits")
	t.Setenv("ASSET_BUCKET_PREFIX", "public")
	t.Setenv("GENERATION_TIMEOUT", "60")
	t.Setenv("PORT", "3000")

	cfg := Load()

	assert.True(t, cfg.HasCredential())
	assert.Equal(t, "hf_ab", cfg.TokenPrefix())
	assert.Equal(t, "human37/IDM-VTON", cfg.Space)
	assert.True(t, cfg.AssetBucket.Enabled())
	assert.Equal(t, "public", cfg.AssetBucket.Prefix)
	assert.Equal(t, 60*time.Second, cfg.GenerationTimeout)
	assert.Equal(t, "3000", cfg.Port)
}

func TestLoadIgnoresInvalidTimeout(t *testing.T) {
	t.Setenv("GENERATION_TIMEOUT", "soon")
	assert.Equal(t, 180*time.Second, Load().GenerationTimeout)

	t.Setenv("GENERATION_TIMEOUT", "-5")
	assert.Equal(t, 180*time.Second, Load().GenerationTimeout)
}

func TestHasCredentialOnNilConfig(t *testing.T) {
	var cfg *Config
	assert.False(t, cfg.HasCredential())
}
