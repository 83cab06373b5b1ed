package store

import (
	"fmt"
	"net/url"

	"github.com/rickgao/stockwatch/internal/config"
)

// BuildConnString builds a PostgreSQL connection string from config.
// The SSL mode comes straight from cfg; config defaults already fill it.
func BuildConnString(cfg config.DBConfig) string {
	// URL-encode credentials to handle special characters
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		cfg.Name,
		cfg.SSLMode,
	)
}
