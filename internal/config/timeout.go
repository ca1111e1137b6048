package config

import (
	"time"

	"github.com/spf13/cast"
)

// ResolveUpstreamTimeout converts AppConfig's configured timeout (an int
// of whole seconds) into a time.Duration, falling back to def when it is
// zero or negative.
func ResolveUpstreamTimeout(cfg AppConfig, def time.Duration) time.Duration {
	if cfg.UpstreamTimeoutSeconds <= 0 {
		return def
	}

	seconds, err := cast.ToIntE(cfg.UpstreamTimeoutSeconds)
	if err != nil || seconds <= 0 {
		return def
	}

	return time.Duration(seconds) * time.Second
}
