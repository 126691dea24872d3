package natsclient

import (
	"fmt"
	"log/slog"
	"time"
)

// Option configures a Client at construction time.
type Option func(*Client) error

// WithName sets the client connection name shown in NATS monitoring.
func WithName(name string) Option {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}

// WithCredentials sets username/password authentication.
func WithCredentials(username, password string) Option {
	return func(c *Client) error {
		if username == "" {
			return fmt.Errorf("username cannot be empty")
		}
		c.username = username
		c.password = password
		return nil
	}
}

// WithCredsFile sets NATS credentials file authentication.
func WithCredsFile(path string) Option {
	return func(c *Client) error {
		if path == "" {
			return fmt.Errorf("credentials file path cannot be empty")
		}
		c.credsFile = path
		return nil
	}
}

// WithToken sets token authentication.
func WithToken(token string) Option {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithTimeout sets the connection timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", timeout)
		}
		c.timeout = timeout
		return nil
	}
}

// WithReconnectWait sets the wait between reconnect attempts.
func WithReconnectWait(wait time.Duration) Option {
	return func(c *Client) error {
		if wait <= 0 {
			return fmt.Errorf("reconnect wait must be positive, got %v", wait)
		}
		c.reconnectWait = wait
		return nil
	}
}

// WithMaxReconnects limits reconnect attempts; negative means unlimited.
func WithMaxReconnects(max int) Option {
	return func(c *Client) error {
		c.maxReconnects = max
		return nil
	}
}

// WithLogger overrides the component logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithCircuitThreshold sets the failure count that opens the circuit.
func WithCircuitThreshold(threshold int32) Option {
	return func(c *Client) error {
		if threshold <= 0 {
			return fmt.Errorf("circuit threshold must be positive, got %d", threshold)
		}
		c.circuitThreshold = threshold
		return nil
	}
}
