package v1

import "time"

// ServiceConfig is the optional YAML configuration of the service.
type ServiceConfig struct {
	// UIBaseURL is used to build links to launches in responses and e-mails.
	UIBaseURL string `yaml:"uiBaseUrl,omitempty"`

	// ProjectDefaults are the attributes every new project starts with. Keys that are missing
	// fall back to the built-in defaults.
	ProjectDefaults map[string]string `yaml:"projectDefaults,omitempty"`

	Analyzer AnalyzerConfig `yaml:"analyzer"`

	Notifications NotificationConfig `yaml:"notifications"`

	Widgets WidgetConfig `yaml:"widgets"`

	Jobs JobsConfig `yaml:"jobs"`
}

type AnalyzerConfig struct {
	// Exchanges lists the analyzers that may be used. An analyzer advertises itself by
	// declaring an exchange with this name on the broker.
	Exchanges []AnalyzerExchange `yaml:"exchanges,omitempty"`

	// Timeout bounds each request-reply exchange with an analyzer.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

type AnalyzerExchange struct {
	Name     string `yaml:"name"`
	Priority int    `yaml:"priority"`

	// MinVersion is the lowest analyzer version accepted, for example 5.7.0.
	MinVersion string `yaml:"minVersion,omitempty"`

	// Version is the version advertised by the analyzer.
	Version string `yaml:"version,omitempty"`

	// Index is true when the analyzer keeps an index of logs.
	Index bool `yaml:"index,omitempty"`
}

type NotificationConfig struct {
	From string `yaml:"from,omitempty"`
}

type WidgetConfig struct {
	// CacheTTL is how long rendered widget content is kept in the cache.
	CacheTTL time.Duration `yaml:"cacheTTL,omitempty"`
}

type JobsConfig struct {
	InterruptBrokenLaunchesCron string `yaml:"interruptBrokenLaunchesCron,omitempty"`
	CleanLaunchesCron           string `yaml:"cleanLaunchesCron,omitempty"`
	CleanLogsCron               string `yaml:"cleanLogsCron,omitempty"`
	CleanAttachmentsCron        string `yaml:"cleanAttachmentsCron,omitempty"`
	Concurrency                 int    `yaml:"concurrency,omitempty"`
}

// Defaults fills unset values.
func (c *ServiceConfig) Defaults() {
	if c.Analyzer.Timeout == 0 {
		c.Analyzer.Timeout = 5 * time.Minute
	}
	if c.Widgets.CacheTTL == 0 {
		c.Widgets.CacheTTL = 10 * time.Minute
	}
	if c.Notifications.From == "" {
		c.Notifications.From = "reportportal@example.com"
	}
	if c.Jobs.InterruptBrokenLaunchesCron == "" {
		c.Jobs.InterruptBrokenLaunchesCron = "*/10 * * * *"
	}
	if c.Jobs.CleanLaunchesCron == "" {
		c.Jobs.CleanLaunchesCron = "0 0 * * *"
	}
	if c.Jobs.CleanLogsCron == "" {
		c.Jobs.CleanLogsCron = "0 0 * * *"
	}
	if c.Jobs.CleanAttachmentsCron == "" {
		c.Jobs.CleanAttachmentsCron = "0 0 * * *"
	}
	if c.Jobs.Concurrency <= 0 {
		c.Jobs.Concurrency = 5
	}
}
