package client

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultScanCount = 100

type Option func(*Client)

// WithLogger replaces the default JSON logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRegisterer registers the client's collectors on reg. Clients sharing a
// registerer share their counters.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Client) {
		c.registerer = reg
	}
}

// WithScanCount sets the COUNT hint DelPattern sends with each SCAN.
func WithScanCount(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.scanCount = n
		}
	}
}
