package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return errors.New("server.listen is required")
	}
	if c.Server.WriteQueueSize < 1 {
		return errors.New("server.write_queue_size must be >= 1")
	}

	if c.Quote.BaseURL == "" {
		return errors.New("quote.base_url is required")
	}
	if c.Quote.MaxRetries < 0 {
		return errors.New("quote.max_retries must be >= 0")
	}

	if c.Poller.Interval <= 0 {
		return errors.New("poller.interval must be positive")
	}
	if c.Poller.Concurrency < 1 {
		return errors.New("poller.concurrency must be >= 1")
	}
	if c.Poller.BackoffBase <= 0 {
		return errors.New("poller.backoff_base must be positive")
	}
	if c.Poller.BackoffMax < c.Poller.BackoffBase {
		return errors.New("poller.backoff_max must be >= poller.backoff_base")
	}

	switch c.Storage.Driver {
	case "postgres":
		if err := c.Storage.Postgres.validate("storage.postgres"); err != nil {
			return err
		}
	case "memory":
		// No further settings.
	default:
		return fmt.Errorf("storage.driver must be \"postgres\" or \"memory\", got %q", c.Storage.Driver)
	}

	if c.History.Enabled {
		if c.Storage.Driver != "postgres" {
			return errors.New("history.enabled requires storage.driver=postgres")
		}
		if c.History.BatchSize < 1 {
			return errors.New("history.batch_size must be >= 1")
		}
		if c.History.BufferSize < 1 {
			return errors.New("history.buffer_size must be >= 1")
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
