package rpcconfig

import (
	"time"

	"github.com/twoporeguys/go-librpc/internal/bytesize"
)

// Defaults returns a Config populated with librpcd's built-in defaults,
// used as the base Load unmarshals onto.
func Defaults() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
		Server: ServerConfig{
			Workers:           0,
			DefaultSerializer: "json",
			CallTimeout:       30 * time.Second,
			PingInterval:      10 * time.Second,
			PingGrace:         5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			MaxFrameSize:      16 * bytesize.MiB,
			DefaultPrefetch:   0,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
			Path:    "/metrics",
		},
	}
}
