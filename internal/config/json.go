package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/kinsync/internal/flagx"
	"github.com/dmitrijs2005/kinsync/internal/timex"
)

// JsonConfig is the on-disk shape of Config. Durations use timex.Duration so
// both "30s" and integer nanoseconds are accepted. Absent fields keep the
// value already in Config.
type JsonConfig struct {
	DatabaseDSN string `json:"database_dsn"`
	LogLevel    string `json:"log_level"`

	Workers      int            `json:"workers"`
	PollInterval timex.Duration `json:"poll_interval"`
	MaxAttempts  int            `json:"max_attempts"`
	RetryBase    timex.Duration `json:"retry_base"`
	StaleAfter   timex.Duration `json:"stale_after"`

	FanOutLimit   int            `json:"fan_out_limit"`
	ItemTimeout   timex.Duration `json:"item_timeout"`
	ProviderRPS   float64        `json:"provider_rps"`
	ProviderBurst int            `json:"provider_burst"`

	Schedule    *string `json:"schedule"`
	MetricsAddr *string `json:"metrics_addr"`
	RedisAddr   string  `json:"redis_addr"`

	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	GoogleClientID    string `json:"google_client_id"`
	MicrosoftClientID string `json:"microsoft_client_id"`
	MicrosoftTenant   string `json:"microsoft_tenant"`
}

// parseJson loads the file named by -c/-config, if any, into config.
// It panics if the file cannot be read or holds invalid JSON.
func parseJson(config *Config) {
	path := flagx.JsonConfigFlags()
	if path == "" {
		return
	}
	if err := config.ApplyJSONFile(path); err != nil {
		panic(err)
	}
}

// ApplyJSONFile overlays the settings found in the JSON file at path.
func (c *Config) ApplyJSONFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var j JsonConfig
	if err := json.Unmarshal(data, &j); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	c.applyJSON(&j)
	return nil
}

func (c *Config) applyJSON(j *JsonConfig) {
	setString(&c.DatabaseDSN, j.DatabaseDSN)
	setString(&c.LogLevel, j.LogLevel)
	setInt(&c.Workers, j.Workers)
	if j.PollInterval.Duration > 0 {
		c.PollInterval = j.PollInterval.Duration
	}
	setInt(&c.MaxAttempts, j.MaxAttempts)
	if j.RetryBase.Duration > 0 {
		c.RetryBase = j.RetryBase.Duration
	}
	if j.StaleAfter.Duration > 0 {
		c.StaleAfter = j.StaleAfter.Duration
	}
	setInt(&c.FanOutLimit, j.FanOutLimit)
	if j.ItemTimeout.Duration > 0 {
		c.ItemTimeout = j.ItemTimeout.Duration
	}
	if j.ProviderRPS > 0 {
		c.ProviderRPS = j.ProviderRPS
	}
	setInt(&c.ProviderBurst, j.ProviderBurst)
	// schedule and metrics_addr may be set to "" to disable the feature
	if j.Schedule != nil {
		c.Schedule = *j.Schedule
	}
	if j.MetricsAddr != nil {
		c.MetricsAddr = *j.MetricsAddr
	}
	setString(&c.RedisAddr, j.RedisAddr)
	setString(&c.S3Bucket, j.S3Bucket)
	setString(&c.S3Region, j.S3Region)
	setString(&c.S3BaseEndpoint, j.S3BaseEndpoint)
	setString(&c.GoogleClientID, j.GoogleClientID)
	setString(&c.MicrosoftClientID, j.MicrosoftClientID)
	setString(&c.MicrosoftTenant, j.MicrosoftTenant)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
