package oauth

import "testing"

func TestApplyDefaults(t *testing.T) {
	config := applyDefaults(Config{})
	if config.Logger == nil {
		t.Error("Logger should default to slog.Default()")
	}
	if config.RateLimit.Rate != DefaultRateLimit || config.RateLimit.Burst != DefaultRateBurst {
		t.Errorf("RateLimit = %+v", config.RateLimit)
	}

	custom := applyDefaults(Config{RateLimit: RateLimitConfig{Rate: 5, Burst: 7}})
	if custom.RateLimit.Rate != 5 || custom.RateLimit.Burst != 7 {
		t.Errorf("custom RateLimit overwritten: %+v", custom.RateLimit)
	}

	disabled := applyDefaults(Config{RateLimit: RateLimitConfig{Rate: -1}})
	if disabled.RateLimit.Rate != -1 {
		t.Errorf("negative rate should disable limiting, got %+v", disabled.RateLimit)
	}
}
