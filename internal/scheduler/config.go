package scheduler

import (
	"time"

	"github.com/smallbiznis/clinicbilling/internal/config"
)

// Config controls the cron trigger, job selection and per-job limits.
type Config struct {
	Schedule    string
	EnabledJobs []string
	JobTimeout  time.Duration
	LeaseTTL    time.Duration
}

func DefaultConfig() Config {
	return Config{
		Schedule:   "@every 1m",
		JobTimeout: 30 * time.Second,
		LeaseTTL:   5 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Schedule:    cfg.SchedulerSchedule,
		EnabledJobs: cfg.SchedulerJobs,
		LeaseTTL:    cfg.SchedulerLeaseTTL,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Schedule == "" {
		c.Schedule = defaults.Schedule
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaults.LeaseTTL
	}
	// The lease must outlive the job it guards.
	if c.LeaseTTL < c.JobTimeout {
		c.LeaseTTL = c.JobTimeout
	}
	return c
}
