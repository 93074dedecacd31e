package database

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	TrainsCollection      = "trains"
	StationsCollection    = "stations"
	RoutesCollection      = "route_stations"
	BookingsCollection    = "bookings"
	TrackingCollection    = "tracking_data"
	PredictionsCollection = "train_predictions"
)

type Instance struct {
	Client   *mongo.Client
	Database *mongo.Database
}

func Connect(ctx context.Context, connectionString string, databaseName string) (*Instance, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, err
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, err
	}

	instance := &Instance{
		Client:   client,
		Database: client.Database(databaseName),
	}

	instance.createIndexes(ctx)

	log.Info().Str("database", databaseName).Msg("Connected to MongoDB")

	return instance, nil
}

func (i *Instance) GetCollection(collectionName string) *mongo.Collection {
	return i.Database.Collection(collectionName)
}

func (i *Instance) Disconnect(ctx context.Context) error {
	return i.Client.Disconnect(ctx)
}
