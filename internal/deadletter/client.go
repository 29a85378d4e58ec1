// Package deadletter keeps a durable stream of events whose dispatch outcome
// failed, pending retry or manual inspection. Backed by EventStoreDB.
package deadletter

import (
	"context"
	"fmt"
	"time"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"

	"github.com/caresync/platform/internal/shared/config"
)

// Client wraps the EventStore client.
type Client struct {
	db *esdb.Client
}

// connectionString builds the esdb:// connection string.
func connectionString(cfg config.DeadLetterConfig) string {
	var auth string
	if cfg.Username != "" && cfg.Password != "" {
		auth = fmt.Sprintf("%s:%s@", cfg.Username, cfg.Password)
	}

	var tls string
	if cfg.Insecure {
		tls = "?tls=false"
	}

	return fmt.Sprintf("esdb://%s%s:%d%s", auth, cfg.Host, cfg.Port, tls)
}

// NewClient creates a new EventStoreDB client.
func NewClient(cfg config.DeadLetterConfig) (*Client, error) {
	settings, err := esdb.ParseConnectionString(connectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	db, err := esdb.NewClient(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Client{db: db}, nil
}

// DB returns the underlying EventStore client.
func (c *Client) DB() *esdb.Client {
	return c.db
}

// Close closes the client connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// HealthCheck verifies the connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	stream, err := c.db.ReadStream(ctx, "$streams", esdb.ReadStreamOptions{
		From:      esdb.Start{},
		Direction: esdb.Forwards,
	}, 1)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer stream.Close()

	return nil
}
