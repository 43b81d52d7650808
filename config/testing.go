package config

import "time"

// NewTestConfig returns a configuration suitable for tests: a fixed
// encryption key, fast scheduler intervals and no database.
func NewTestConfig() *Config {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	return &Config{
		Encryption: EncryptionConfig{Key: key},
		Kite: KiteConfig{
			Timeout: 2 * time.Second,
		},
		Scheduler: SchedulerConfig{
			CutoffHour:        6,
			CutoffMinute:      0,
			ReconcileInterval: time.Minute,
			ReportOffset:      time.Minute,
		},
		HTTP: HTTPConfig{
			Addr:               ":0",
			CORSAllowedOrigins: "*",
		},
	}
}
