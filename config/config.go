package config

import (
	"os"
	"strconv"
	"time"
)

const (
	DefaultSpace             = "yisol/IDM-VTON"
	DefaultHuggingFaceAPIURL = "https://huggingface.co"
	AccessTokenKey           = "HF_ACCESS_TOKEN"
)

// R2Config points local asset references at a bucket instead of a directory.
type R2Config struct {
	Bucket          string
	Prefix          string
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
}

func (r R2Config) Enabled() bool {
	return r.Bucket != ""
}

type Config struct {
	HFAccessToken     string
	Space             string
	HuggingFaceAPIURL string
	AssetRoot         string
	AssetBucket       R2Config
	GenerationTimeout time.Duration
	Port              string
	Env               string
	SentryDSN         string
}

// Load reads the configuration from the environment. It never fails, call
// HasCredential to check the access token.
func Load() *Config {
	timeout := 180 * time.Second
	if seconds, err := strconv.Atoi(GetEnv("GENERATION_TIMEOUT", "")); err == nil && seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}
	return &Config{
		HFAccessToken:     os.Getenv(AccessTokenKey),
		Space:             GetEnv("GRADIO_SPACE", DefaultSpace),
		HuggingFaceAPIURL: GetEnv("HF_API_URL", DefaultHuggingFaceAPIURL),
		AssetRoot:         GetEnv("ASSET_ROOT", "public"),
		AssetBucket: R2Config{
			Bucket:          GetEnv("ASSET_BUCKET", ""),
			Prefix:          GetEnv("ASSET_BUCKET_PREFIX", ""),
			AccountID:       GetEnv("R2_ACCOUNT_ID", ""),
			AccessKeyID:     GetEnv("R2_ACCESS_KEY_ID", ""),
			AccessKeySecret: GetEnv("R2_ACCESS_KEY_SECRET", ""),
		},
		GenerationTimeout: timeout,
		Port:              GetEnv("PORT", "8080"),
		Env:               GetEnv("ENV", "local"),
		SentryDSN:         GetEnv("SENTRY_DSN", ""),
	}
}

// HasCredential reports whether the hosted model can be reached at all.
func (c *Config) HasCredential() bool {
	return c != nil && c.HFAccessToken != ""
}

// TokenPrefix is the only part of the token we ever log.
func (c *Config) TokenPrefix() string {
	if len(c.HFAccessToken) <= 5 {
		return c.HFAccessToken
	}
	return c.HFAccessToken[:5]
}

func GetEnv(key, fallback string) string {
	value := os.Getenv(key)
	if len(value) == 0 {
		return fallback
	}
	return value
}
