package config

import "github.com/dmitrijs2005/kinsync/internal/flagx"

// parseEnv applies environment overrides. Secrets are only read from here.
func parseEnv(config *Config) {
	config.ApplyEnv()
}

// ApplyEnv overlays KINSYNC_* environment variables.
func (c *Config) ApplyEnv() {
	flagx.EnvString("KINSYNC_DATABASE_DSN", &c.DatabaseDSN)
	flagx.EnvString("KINSYNC_LOG_LEVEL", &c.LogLevel)
	flagx.EnvInt("KINSYNC_WORKERS", &c.Workers)
	flagx.EnvDuration("KINSYNC_POLL_INTERVAL", &c.PollInterval)
	flagx.EnvString("KINSYNC_REDIS_ADDR", &c.RedisAddr)
	flagx.EnvString("KINSYNC_SEAL_KEY", &c.SealKey)
	flagx.EnvString("KINSYNC_S3_ACCESS_KEY", &c.S3AccessKey)
	flagx.EnvString("KINSYNC_S3_SECRET_KEY", &c.S3SecretKey)
	flagx.EnvString("KINSYNC_GOOGLE_CLIENT_ID", &c.GoogleClientID)
	flagx.EnvString("KINSYNC_GOOGLE_CLIENT_SECRET", &c.GoogleClientSecret)
	flagx.EnvString("KINSYNC_MICROSOFT_CLIENT_ID", &c.MicrosoftClientID)
	flagx.EnvString("KINSYNC_MICROSOFT_CLIENT_SECRET", &c.MicrosoftClientSecret)
}
