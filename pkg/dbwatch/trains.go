package dbwatch

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/travigo/smartrail/pkg/database"
	"github.com/travigo/smartrail/pkg/railway"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var errStreamClosed = errors.New("change stream closed")

type EventPublisher interface {
	Publish(event *railway.Event) error
}

type trainUpdate struct {
	OperationType     string `bson:"operationType"`
	UpdateDescription struct {
		UpdatedFields bson.M `bson:"updatedFields"`
	} `bson:"updateDescription"`
	FullDocument railway.Train `bson:"fullDocument"`
}

// TrainsWatch raises TrainStatusChanged events for status changes made outside the pipeline,
// such as an operator cancelling a train
type TrainsWatch struct {
	Collection *mongo.Collection
	Events     EventPublisher
	Now        func() time.Time
}

func NewTrainsWatch(db *database.Instance, events EventPublisher) *TrainsWatch {
	return &TrainsWatch{
		Collection: db.GetCollection(database.TrainsCollection),
		Events:     events,
		Now:        time.Now,
	}
}

// Run reopens the change stream until ctx is done
func (w *TrainsWatch) Run(ctx context.Context) error {
	retryBackoff := backoff.NewExponentialBackOff()
	retryBackoff.MaxElapsedTime = 0

	return backoff.RetryNotify(func() error {
		return w.watch(ctx)
	}, backoff.WithContext(retryBackoff, ctx), func(err error, wait time.Duration) {
		log.Error().Err(err).Dur("retry", wait).Msg("Trains watch fell over")
	})
}

func (w *TrainsWatch) watch(ctx context.Context) error {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "operationType", Value: "update"},
			{Key: "updateDescription.updatedFields.status", Value: bson.D{{Key: "$exists", Value: true}}},
		}}},
	}

	stream, err := w.Collection.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return err
	}
	defer stream.Close(context.Background())

	log.Info().Str("collection", database.TrainsCollection).Msg("Starting dbwatch")

	for stream.Next(ctx) {
		var update trainUpdate
		if err := stream.Decode(&update); err != nil {
			log.Error().Err(err).Msg("Failed to decode train update")
			continue
		}

		w.handle(&update)
	}

	if ctx.Err() != nil {
		return backoff.Permanent(ctx.Err())
	}
	if err := stream.Err(); err != nil {
		return err
	}

	return errStreamClosed
}

func (w *TrainsWatch) handle(update *trainUpdate) {
	change, ok := statusChange(update)
	if !ok {
		return
	}

	event, err := railway.NewEvent(railway.EventTypeTrainStatusChanged, change, w.Now())
	if err != nil {
		log.Error().Err(err).Int64("train", change.TrainID).Msg("Failed to build event")
		return
	}

	if err := w.Events.Publish(event); err != nil {
		log.Error().Err(err).Int64("train", change.TrainID).Msg("Failed to publish event")
		return
	}

	log.Info().Int64("train", change.TrainID).Str("status", string(change.Status)).Msg("Train status changed")
}

// statusChange ignores delayed, the delay detector raises its own event when it escalates
func statusChange(update *trainUpdate) (*railway.TrainStatusChange, bool) {
	if update.OperationType != "update" || update.FullDocument.ID == 0 {
		return nil, false
	}

	rawStatus, ok := update.UpdateDescription.UpdatedFields["status"].(string)
	if !ok {
		return nil, false
	}

	status := railway.TrainStatus(rawStatus)
	if !status.Valid() || status == railway.TrainStatusDelayed {
		return nil, false
	}

	return &railway.TrainStatusChange{
		TrainID:     update.FullDocument.ID,
		TrainNumber: update.FullDocument.Number,
		Status:      status,
	}, true
}
