package redis_client

import (
	"context"

	"github.com/adjust/rmq/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Connection struct {
	Client          *redis.Client
	QueueConnection rmq.Connection
}

func Connect(ctx context.Context, address string, password string, database int) (*Connection, error) {
	options := &redis.Options{
		Addr: address,
		DB:   database,
	}
	if password != "" {
		options.Password = password
	}

	client := redis.NewClient(options)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	queueConnection, err := rmq.OpenConnectionWithRedisClient("smartrail", client, nil)
	if err != nil {
		return nil, err
	}

	log.Info().Str("address", address).Msg("Connected to Redis")

	return &Connection{
		Client:          client,
		QueueConnection: queueConnection,
	}, nil
}

func (c *Connection) Close() error {
	<-c.QueueConnection.StopAllConsuming()
	return c.Client.Close()
}
