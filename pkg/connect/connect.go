// Package connect opens the configured backend for the binaries.
package connect

import (
	"context"
	"fmt"

	"github.com/guido-cesarano/taskhub/pkg/backend"
	"github.com/guido-cesarano/taskhub/pkg/cloud"
	"github.com/guido-cesarano/taskhub/pkg/config"
	"github.com/guido-cesarano/taskhub/pkg/emulator"
)

// DepthReader reports pending and in-flight message counts per queue.
type DepthReader interface {
	Depths(ctx context.Context) (map[string]int64, error)
}

// Conn is an open backend.
type Conn struct {
	backend.Backend
	Consumer backend.QueueConsumer
	// Depths is nil when the backend cannot report queue depths.
	Depths DepthReader

	close func() error
}

// Open connects to the backend selected by cfg.Backend.Driver.
func Open(ctx context.Context, cfg *config.Config) (*Conn, error) {
	switch cfg.Backend.Driver {
	case config.DriverRedis:
		client := emulator.NewClient(cfg.Backend.RedisAddr, emulator.Options{
			Region:    cfg.Backend.Region,
			AccountID: cfg.Resources.AccountID,
			Endpoint:  cfg.Backend.Endpoint,
		})
		if err := client.Ping(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Backend.RedisAddr, err)
		}
		return &Conn{
			Backend:  client.Services(),
			Consumer: client.Queues(),
			Depths:   client.Queues(),
			close:    client.Close,
		}, nil

	case config.DriverAWS:
		client, err := cloud.New(ctx, cfg.Backend)
		if err != nil {
			return nil, err
		}
		return &Conn{
			Backend:  client.Services(),
			Consumer: client.Queues(),
			close:    func() error { return nil },
		}, nil
	}
	return nil, fmt.Errorf("unknown backend driver %q", cfg.Backend.Driver)
}

// Close releases the backend connection.
func (c *Conn) Close() error {
	return c.close()
}
