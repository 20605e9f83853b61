package persistence

import (
	"context"
	"fmt"
	"time"

	"content-distributor/infrastructure/configuration"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// NewMongoDb connects to the content read model and returns the configured database.
func NewMongoDb(ctx context.Context, cfg configuration.Db) (*mongo.Database, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("mongo host not configured")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(mongoURI(cfg)).SetConnectTimeout(10 * time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client.Database(cfg.Name), nil
}

func mongoURI(cfg configuration.Db) string {
	port := cfg.Port
	if port == "" {
		port = "27017"
	}
	if cfg.User != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%s", cfg.User, cfg.Password, cfg.Host, port)
	}
	return fmt.Sprintf("mongodb://%s:%s", cfg.Host, port)
}
