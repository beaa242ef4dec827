package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/flagx"
)

var ownFlags = []string{"-d", "-l", "-w", "-i", "-m", "-n", "-s", "-a", "-r", "-b", "-g", "-e"}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN
//	-l string   log level (debug, info, warn, error)
//	-w int      number of job runner workers
//	-i int      fallback poll interval, seconds
//	-m int      max attempts per job
//	-n int      fan-out limit for per-item provider fetches
//	-s string   cron schedule for periodic sync ("" disables)
//	-a string   metrics bind address ("" disables)
//	-r string   Redis address for notifications
//	-b string   S3 archive bucket
//	-g string   S3 region
//	-e string   S3 base endpoint
//
// Only these flags are taken from os.Args, so -c/-config and flags of other
// components do not collide.
func parseFlags(config *Config) {
	if err := config.ApplyFlags(os.Args[1:]); err != nil {
		panic(err)
	}
}

// ApplyFlags overlays the recognised flags found in args.
func (c *Config) ApplyFlags(args []string) error {
	args = flagx.FilterArgs(args, ownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&c.DatabaseDSN, "d", c.DatabaseDSN, "database DSN")
	fs.StringVar(&c.LogLevel, "l", c.LogLevel, "log level")
	fs.IntVar(&c.Workers, "w", c.Workers, "number of workers")
	pollSeconds := fs.Int("i", int(c.PollInterval.Seconds()), "poll interval (in seconds)")
	fs.IntVar(&c.MaxAttempts, "m", c.MaxAttempts, "max attempts per job")
	fs.IntVar(&c.FanOutLimit, "n", c.FanOutLimit, "fan-out limit")
	fs.StringVar(&c.Schedule, "s", c.Schedule, "cron schedule")
	fs.StringVar(&c.MetricsAddr, "a", c.MetricsAddr, "metrics address")
	fs.StringVar(&c.RedisAddr, "r", c.RedisAddr, "redis address")
	fs.StringVar(&c.S3Bucket, "b", c.S3Bucket, "S3 archive bucket")
	fs.StringVar(&c.S3Region, "g", c.S3Region, "S3 region")
	fs.StringVar(&c.S3BaseEndpoint, "e", c.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		return err
	}

	c.PollInterval = time.Duration(*pollSeconds) * time.Second
	return nil
}
