package config

import "time"

// Config is the root configuration for an alertd instance.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Quote   QuoteConfig   `yaml:"quote"`
	Poller  PollerConfig  `yaml:"poller"`
	Alerts  AlertsConfig  `yaml:"alerts"`
	Storage StorageConfig `yaml:"storage"`
	History HistoryConfig `yaml:"history"`
}

// ServerConfig holds the TCP listener settings.
type ServerConfig struct {
	Listen         string `yaml:"listen"`           // host:port to listen on
	WriteQueueSize int    `yaml:"write_queue_size"` // per-session outbound line queue
}

// QuoteConfig holds the external quote provider settings.
type QuoteConfig struct {
	BaseURL      string        `yaml:"base_url"`
	UserAgent    string        `yaml:"user_agent"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// PollerConfig holds price poller settings.
type PollerConfig struct {
	Interval    time.Duration `yaml:"interval"`     // poll cycle cadence
	Concurrency int           `yaml:"concurrency"`  // max in-flight fetches
	Timeout     time.Duration `yaml:"timeout"`      // per-fetch timeout
	BackoffBase time.Duration `yaml:"backoff_base"` // per-symbol failure backoff
	BackoffMax  time.Duration `yaml:"backoff_max"`
	SymbolsFile string        `yaml:"symbols_file"` // newline-delimited universe
}

// AlertsConfig holds alert engine settings.
type AlertsConfig struct {
	// ConsumeOnFire deletes an alert after it fires. When false (the
	// default) alerts persist and fire again on each fresh crossing.
	ConsumeOnFire bool `yaml:"consume_on_fire"`
}

// StorageConfig selects and configures the durable store.
type StorageConfig struct {
	Driver   string   `yaml:"driver"` // "postgres" or "memory"
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HistoryConfig holds quote history writer settings.
type HistoryConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}
