package natsrelay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Config holds the NATS connection and stream settings.
type Config struct {
	URL  string
	Name string

	// Stream captures every subject under SubjectPrefix.
	Stream        string
	SubjectPrefix string
	MaxAge        time.Duration

	// DuplicateWindow is how long JetStream remembers message ids.
	DuplicateWindow time.Duration

	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns the default NATS configuration.
func DefaultConfig() Config {
	return Config{
		URL:             nats.DefaultURL,
		Name:            "planner-core",
		Stream:          "PLANNER_EVENTS",
		SubjectPrefix:   "planner",
		MaxAge:          7 * 24 * time.Hour,
		DuplicateWindow: 2 * time.Minute,
		MaxReconnects:   10,
		ReconnectWait:   time.Second,
	}
}

// Client is a JetStream Publisher.
type Client struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

var _ Publisher = (*Client)(nil)

// Connect connects to NATS and creates or updates the event stream.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "nats")

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.Stream,
		Description: "Task lifecycle events",
		Subjects:    []string{cfg.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		Storage:     jetstream.FileStorage,
		Duplicates:  cfg.DuplicateWindow,
		Replicas:    1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create stream %s: %w", cfg.Stream, err)
	}

	logger.Info("connected", "url", cfg.URL, "stream", cfg.Stream)
	return &Client{nc: nc, js: js, logger: logger}, nil
}

// Publish publishes data and waits for the stream acknowledgement.
func (c *Client) Publish(ctx context.Context, subject string, data []byte, msgID string) error {
	ack, err := c.js.Publish(ctx, subject, data, jetstream.WithMsgID(msgID))
	if err != nil {
		return err
	}
	if ack.Duplicate {
		c.logger.Debug("duplicate suppressed", "subject", subject, "msg_id", msgID)
	}
	return nil
}

// Ping reports whether the connection is up.
func (c *Client) Ping(ctx context.Context) error {
	if !c.nc.IsConnected() {
		return fmt.Errorf("nats: %s", c.nc.Status())
	}
	return nil
}

// Close drains the connection.
func (c *Client) Close() error {
	return c.nc.Drain()
}
