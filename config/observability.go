package config

import (
	"slices"
	"strings"
	"time"
)

const serviceName = "dataio"

// ObservabilityConfig groups metrics and failure notification settings.
type ObservabilityConfig struct {
	Metrics       ObservabilityMetricsConfig
	Notifications ObservabilityNotificationsConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
}

// ObservabilityMetricsConfig controls StatsD emission. Stage, transport and harvester
// counters share Prefix.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string `env:"OBSERVABILITY_METRICS_PREFIX"         envDefault:"dataio"`
}

// Sanitize disables metrics when no StatsD address is left after trimming.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), ".")
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// NotificationStages names the pipeline stages that can raise failure notifications.
func NotificationStages() []string {
	return []string{"partitioner", "processor", "sink", "recorder", "harvester"}
}

// ObservabilityNotificationsConfig decides which dead-lettered messages and failed harvester
// runs are sent to Slack or PagerDuty.
type ObservabilityNotificationsConfig struct {
	Enabled    bool          `env:"OBSERVABILITY_NOTIFICATIONS_ENABLED"     envDefault:"false"`
	Timeout    time.Duration `env:"OBSERVABILITY_NOTIFICATIONS_TIMEOUT"     envDefault:"5s"`
	RetryLimit int           `env:"OBSERVABILITY_NOTIFICATIONS_RETRY_LIMIT" envDefault:"3"`

	// Stages limits notifications to the listed stages; empty means all of them.
	Stages []string `env:"OBSERVABILITY_NOTIFICATIONS_STAGES" envSeparator:","`
	// IncludeTestJobs also alerts on failures of TEST jobs.
	IncludeTestJobs bool `env:"OBSERVABILITY_NOTIFICATIONS_INCLUDE_TEST_JOBS" envDefault:"false"`
	// DedupWindow drops repeats for the same job, stage and error class. 0 disables it.
	DedupWindow time.Duration `env:"OBSERVABILITY_NOTIFICATIONS_DEDUP_WINDOW" envDefault:"10m"`

	Slack     SlackNotificationConfig     `envPrefix:"OBSERVABILITY_NOTIFICATIONS_SLACK_"`
	PagerDuty PagerDutyNotificationConfig `envPrefix:"OBSERVABILITY_NOTIFICATIONS_PAGERDUTY_"`
}

// Sanitize normalises notification values. Channels missing their credentials are switched off,
// and unknown stage names are dropped.
func (c *ObservabilityNotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}
	if c.DedupWindow < 0 {
		c.DedupWindow = 0
	}

	known := NotificationStages()
	stages := make([]string, 0, len(c.Stages))
	for _, s := range c.Stages {
		s = strings.ToLower(strings.TrimSpace(s))
		if slices.Contains(known, s) && !slices.Contains(stages, s) {
			stages = append(stages, s)
		}
	}
	c.Stages = stages

	c.Slack.sanitize()
	c.PagerDuty.sanitize()

	if !c.Enabled {
		c.Slack.Enabled = false
		c.PagerDuty.Enabled = false
		return
	}
	if c.Slack.WebhookURL == "" {
		c.Slack.Enabled = false
	}
	if c.PagerDuty.RoutingKey == "" {
		c.PagerDuty.Enabled = false
	}
}

// SlackNotificationConfig controls Slack webhook fan-out.
type SlackNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"  envDefault:"false"`
	WebhookURL string `env:"WEBHOOK_URL"`
	Channel    string `env:"CHANNEL"`
	Username   string `env:"USERNAME" envDefault:"dataio"`
	// JobURLPrefix is joined with the job id to link messages; defaults to the API's job URL.
	JobURLPrefix string `env:"JOB_URL_PREFIX"`
}

func (c *SlackNotificationConfig) sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.Channel = strings.TrimSpace(c.Channel)
	c.JobURLPrefix = strings.TrimSpace(c.JobURLPrefix)
	if c.Username = strings.TrimSpace(c.Username); c.Username == "" {
		c.Username = serviceName
	}
}

// PagerDutyNotificationConfig controls PagerDuty Events API v2 fan-out.
type PagerDutyNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	RoutingKey string `env:"ROUTING_KEY"`
	Source     string `env:"SOURCE"      envDefault:"dataio"`
	Component  string `env:"COMPONENT"   envDefault:"pipeline"`
}

func (c *PagerDutyNotificationConfig) sanitize() {
	c.RoutingKey = strings.TrimSpace(c.RoutingKey)
	if c.Source = strings.TrimSpace(c.Source); c.Source == "" {
		c.Source = serviceName
	}
	if c.Component = strings.TrimSpace(c.Component); c.Component == "" {
		c.Component = "pipeline"
	}
}
