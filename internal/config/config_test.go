package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, 20, cfg.Credits.SignupBonus)
	assert.Equal(t, 10, cfg.Credits.GenerationCost)
	assert.Equal(t, 5, cfg.Credits.EditCost)
	assert.Equal(t, 3, cfg.Credits.MaxConcurrentJobs)
	assert.Equal(t, 10, cfg.Credits.RateLimitMax)
	assert.Equal(t, 60*time.Second, cfg.Credits.RateLimitWindow)
	assert.Equal(t, 3*time.Second, cfg.Worker.PollInterval)
}

func TestLoadConfigReadsEnvironment(t *testing.T) {
	t.Setenv("CREDITS_GENERATION_COST", "25")
	t.Setenv("MAX_CONCURRENT_REQUESTS", "5")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")

	cfg := LoadConfig()

	assert.Equal(t, 25, cfg.Credits.GenerationCost)
	assert.Equal(t, 5, cfg.Credits.MaxConcurrentJobs)
	assert.Equal(t, 30*time.Second, cfg.Credits.RateLimitWindow)
}
