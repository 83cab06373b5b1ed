package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultListen         = "127.0.0.1:1234"
	DefaultWriteQueueSize = 64

	DefaultQuoteBaseURL   = "https://query1.finance.yahoo.com/v8/finance/chart"
	DefaultQuoteUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)"
	DefaultQuoteTimeout   = 10 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryBackoff   = time.Second

	DefaultPollInterval    = time.Minute
	DefaultPollConcurrency = 8
	DefaultPollTimeout     = 10 * time.Second
	DefaultBackoffBase     = 30 * time.Second
	DefaultBackoffMax      = 15 * time.Minute
	DefaultSymbolsFile     = "stocks.txt"

	DefaultStorageDriver = "postgres"
	DefaultDBPort        = 5432
	DefaultDBSSLMode     = "prefer"
	DefaultMaxConns      = 10
	DefaultMinConns      = 2

	DefaultHistoryBatchSize     = 500
	DefaultHistoryFlushInterval = 5 * time.Second
	DefaultHistoryBufferSize    = 2000
)

func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.WriteQueueSize == 0 {
		c.Server.WriteQueueSize = DefaultWriteQueueSize
	}

	// Quote defaults
	if c.Quote.BaseURL == "" {
		c.Quote.BaseURL = DefaultQuoteBaseURL
	}
	if c.Quote.UserAgent == "" {
		c.Quote.UserAgent = DefaultQuoteUserAgent
	}
	if c.Quote.Timeout == 0 {
		c.Quote.Timeout = DefaultQuoteTimeout
	}
	if c.Quote.MaxRetries == 0 {
		c.Quote.MaxRetries = DefaultMaxRetries
	}
	if c.Quote.RetryBackoff == 0 {
		c.Quote.RetryBackoff = DefaultRetryBackoff
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Concurrency == 0 {
		c.Poller.Concurrency = DefaultPollConcurrency
	}
	if c.Poller.Timeout == 0 {
		c.Poller.Timeout = DefaultPollTimeout
	}
	if c.Poller.BackoffBase == 0 {
		c.Poller.BackoffBase = DefaultBackoffBase
	}
	if c.Poller.BackoffMax == 0 {
		c.Poller.BackoffMax = DefaultBackoffMax
	}
	if c.Poller.SymbolsFile == "" {
		c.Poller.SymbolsFile = DefaultSymbolsFile
	}

	// Storage defaults
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultStorageDriver
	}
	applyDBDefaults(&c.Storage.Postgres)

	// History defaults
	if c.History.BatchSize == 0 {
		c.History.BatchSize = DefaultHistoryBatchSize
	}
	if c.History.FlushInterval == 0 {
		c.History.FlushInterval = DefaultHistoryFlushInterval
	}
	if c.History.BufferSize == 0 {
		c.History.BufferSize = DefaultHistoryBufferSize
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
