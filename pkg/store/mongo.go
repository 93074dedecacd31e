package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/travigo/smartrail/pkg/database"
	"github.com/travigo/smartrail/pkg/railway"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is the EntityStore backed by MongoDB
type MongoStore struct {
	db  *database.Instance
	now func() time.Time
}

func NewMongoStore(db *database.Instance) *MongoStore {
	return &MongoStore{
		db:  db,
		now: time.Now,
	}
}

func decodeAll[T any](ctx context.Context, cursor *mongo.Cursor) ([]*T, error) {
	defer cursor.Close(ctx)

	var results []*T
	for cursor.Next(ctx) {
		var item T
		if err := cursor.Decode(&item); err != nil {
			return nil, err
		}
		results = append(results, &item)
	}

	return results, cursor.Err()
}

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf(format+": %w", append(args, railway.ErrNotFound)...)
	}
	return err
}

func (m *MongoStore) FindActiveTrains(ctx context.Context) ([]*railway.Train, error) {
	cursor, err := m.db.GetCollection(database.TrainsCollection).Find(ctx, bson.M{
		"status": bson.M{"$in": railway.ActiveTrainStatuses},
	}, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, err
	}

	return decodeAll[railway.Train](ctx, cursor)
}

func (m *MongoStore) FindTrainsByRoute(ctx context.Context, routeID int64) ([]*railway.Train, error) {
	cursor, err := m.db.GetCollection(database.TrainsCollection).Find(ctx, bson.M{
		"routeid": routeID,
	}, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, err
	}

	return decodeAll[railway.Train](ctx, cursor)
}

func (m *MongoStore) GetTrain(ctx context.Context, trainID int64) (*railway.Train, error) {
	var train railway.Train
	err := m.db.GetCollection(database.TrainsCollection).FindOne(ctx, bson.M{"id": trainID}).Decode(&train)
	if err != nil {
		return nil, notFound(err, "train %d", trainID)
	}

	return &train, nil
}

func (m *MongoStore) GetTrainByNumber(ctx context.Context, number string) (*railway.Train, error) {
	var train railway.Train
	err := m.db.GetCollection(database.TrainsCollection).FindOne(ctx, bson.M{"number": number}).Decode(&train)
	if err != nil {
		return nil, notFound(err, "train number %s", number)
	}

	return &train, nil
}

func (m *MongoStore) GetSchedule(ctx context.Context, trainID int64) ([]railway.ScheduleEntry, error) {
	train, err := m.GetTrain(ctx, trainID)
	if err != nil {
		return nil, err
	}

	cursor, err := m.db.GetCollection(database.RoutesCollection).Find(ctx, bson.M{
		"routeid": train.RouteID,
	}, options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}}))
	if err != nil {
		return nil, err
	}

	var schedule []railway.ScheduleEntry
	if err := cursor.All(ctx, &schedule); err != nil {
		return nil, err
	}

	return schedule, nil
}

func (m *MongoStore) GetScheduleStop(ctx context.Context, trainID int64, stationID int64) (*railway.ScheduleEntry, error) {
	train, err := m.GetTrain(ctx, trainID)
	if err != nil {
		return nil, err
	}

	var entry railway.ScheduleEntry
	err = m.db.GetCollection(database.RoutesCollection).FindOne(ctx, bson.M{
		"routeid":   train.RouteID,
		"stationid": stationID,
	}).Decode(&entry)
	if err != nil {
		return nil, notFound(err, "train %d has no stop at station %d", trainID, stationID)
	}

	return &entry, nil
}

func (m *MongoStore) UpdateStatus(ctx context.Context, trainID int64, status railway.TrainStatus) error {
	result, err := m.db.GetCollection(database.TrainsCollection).UpdateOne(ctx,
		bson.M{"id": trainID},
		bson.M{"$set": bson.M{"status": status}},
	)
	if err != nil {
		return err
	}

	if result.MatchedCount == 0 {
		return fmt.Errorf("train %d: %w", trainID, railway.ErrNotFound)
	}

	return nil
}

func (m *MongoStore) CountTrainsByStatus(ctx context.Context) (map[string]int64, error) {
	cursor, err := m.db.GetCollection(database.TrainsCollection).Aggregate(ctx, mongo.Pipeline{
		bson.D{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Status string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	counts := map[string]int64{}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}

	return counts, nil
}

func (m *MongoStore) GetStation(ctx context.Context, stationID int64) (*railway.Station, error) {
	var station railway.Station
	err := m.db.GetCollection(database.StationsCollection).FindOne(ctx, bson.M{"id": stationID}).Decode(&station)
	if err != nil {
		return nil, notFound(err, "station %d", stationID)
	}

	return &station, nil
}

func (m *MongoStore) FindBookingsForTrain(ctx context.Context, trainID int64, status railway.BookingStatus) ([]*railway.Booking, error) {
	filter := bson.M{"trainid": trainID}
	if status != "" {
		filter["status"] = status
	}

	cursor, err := m.db.GetCollection(database.BookingsCollection).Find(ctx, filter)
	if err != nil {
		return nil, err
	}

	return decodeAll[railway.Booking](ctx, cursor)
}

func (m *MongoStore) InsertSample(ctx context.Context, sample *railway.TrackingSample) error {
	_, err := m.db.GetCollection(database.TrackingCollection).InsertOne(ctx, sample)
	return err
}

func (m *MongoStore) GetCurrentLocation(ctx context.Context, trainID int64) (*railway.TrackingSample, error) {
	var sample railway.TrackingSample
	err := m.db.GetCollection(database.TrackingCollection).FindOne(ctx,
		bson.M{"trainid": trainID},
		options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}}),
	).Decode(&sample)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return &sample, nil
}

func (m *MongoStore) findSamples(ctx context.Context, filter bson.M, limit int) ([]*railway.TrackingSample, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := m.db.GetCollection(database.TrackingCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	return decodeAll[railway.TrackingSample](ctx, cursor)
}

func (m *MongoStore) SamplesSince(ctx context.Context, trainID int64, since time.Time, limit int) ([]*railway.TrackingSample, error) {
	return m.findSamples(ctx, bson.M{
		"trainid":   trainID,
		"timestamp": bson.M{"$gte": since},
	}, limit)
}

func (m *MongoStore) SamplesAtStation(ctx context.Context, trainID int64, stationID int64, since time.Time) ([]*railway.TrackingSample, error) {
	return m.findSamples(ctx, bson.M{
		"trainid":   trainID,
		"stationid": stationID,
		"timestamp": bson.M{"$gte": since},
	}, 0)
}

func (m *MongoStore) StationSamplesSince(ctx context.Context, stationID int64, since time.Time) ([]*railway.TrackingSample, error) {
	return m.findSamples(ctx, bson.M{
		"stationid": stationID,
		"timestamp": bson.M{"$gte": since},
	}, 0)
}

func (m *MongoStore) AllSamplesSince(ctx context.Context, since time.Time) ([]*railway.TrackingSample, error) {
	return m.findSamples(ctx, bson.M{
		"timestamp": bson.M{"$gte": since},
	}, 0)
}

func (m *MongoStore) LatestSamplesSince(ctx context.Context, since time.Time) ([]*railway.TrackingSample, error) {
	cursor, err := m.db.GetCollection(database.TrackingCollection).Aggregate(ctx, mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"timestamp": bson.M{"$gte": since}}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "trainid", Value: 1}, {Key: "timestamp", Value: -1}}}},
		bson.D{{Key: "$group", Value: bson.M{"_id": "$trainid", "sample": bson.M{"$first": "$$ROOT"}}}},
		bson.D{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$sample"}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "timestamp", Value: -1}}}},
	})
	if err != nil {
		return nil, err
	}

	return decodeAll[railway.TrackingSample](ctx, cursor)
}

func (m *MongoStore) DeleteSamplesBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := m.db.GetCollection(database.TrackingCollection).DeleteMany(ctx, bson.M{
		"timestamp": bson.M{"$lt": before},
	})
	if err != nil {
		return 0, err
	}

	return result.DeletedCount, nil
}

func (m *MongoStore) UpsertPrediction(ctx context.Context, prediction *railway.Prediction) (*railway.Prediction, error) {
	collection := m.db.GetCollection(database.PredictionsCollection)
	now := m.now()

	id := prediction.ID
	if id == "" {
		id = uuid.NewString()
	}

	filter := bson.M{
		"trainid":        prediction.TrainID,
		"stationid":      prediction.StationID,
		"predictiondate": prediction.PredictionDate,
	}
	update := bson.M{
		"$set": bson.M{
			"predictedtime":   prediction.PredictedTime,
			"confidencescore": prediction.ConfidenceScore,
			"delayminutes":    prediction.DelayMinutes,
			"method":          prediction.Method,
			"factors":         prediction.Factors,
			"updatedat":       now,
		},
		"$setOnInsert": bson.M{
			"id":        id,
			"createdat": now,
		},
	}

	var stored railway.Prediction
	err := collection.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&stored)
	if err != nil {
		return nil, err
	}

	return &stored, nil
}

func (m *MongoStore) findPredictions(ctx context.Context, filter bson.M) ([]*railway.Prediction, error) {
	cursor, err := m.db.GetCollection(database.PredictionsCollection).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "predictedtime", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}

	return decodeAll[railway.Prediction](ctx, cursor)
}

func (m *MongoStore) GetPrediction(ctx context.Context, id string) (*railway.Prediction, error) {
	var prediction railway.Prediction
	err := m.db.GetCollection(database.PredictionsCollection).FindOne(ctx, bson.M{"id": id}).Decode(&prediction)
	if err != nil {
		return nil, notFound(err, "prediction %s", id)
	}

	return &prediction, nil
}

func (m *MongoStore) GetPredictionFor(ctx context.Context, trainID int64, stationID int64, predictionDate string) (*railway.Prediction, error) {
	var prediction railway.Prediction
	err := m.db.GetCollection(database.PredictionsCollection).FindOne(ctx, bson.M{
		"trainid":        trainID,
		"stationid":      stationID,
		"predictiondate": predictionDate,
	}).Decode(&prediction)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return &prediction, nil
}

func (m *MongoStore) FindTrainPredictions(ctx context.Context, trainID int64, predictionDate string) ([]*railway.Prediction, error) {
	return m.findPredictions(ctx, bson.M{
		"trainid":        trainID,
		"predictiondate": predictionDate,
	})
}

func (m *MongoStore) FindStationPredictions(ctx context.Context, stationID int64, from time.Time, to time.Time) ([]*railway.Prediction, error) {
	return m.findPredictions(ctx, bson.M{
		"stationid":     stationID,
		"predictedtime": bson.M{"$gte": from, "$lte": to},
	})
}

func (m *MongoStore) FindPredictionsCreatedSince(ctx context.Context, since time.Time) ([]*railway.Prediction, error) {
	return m.findPredictions(ctx, bson.M{
		"createdat": bson.M{"$gte": since},
	})
}

func (m *MongoStore) SetActualArrival(ctx context.Context, id string, actual time.Time) (*railway.Prediction, error) {
	var prediction railway.Prediction
	err := m.db.GetCollection(database.PredictionsCollection).FindOneAndUpdate(ctx,
		bson.M{"id": id},
		bson.M{"$set": bson.M{"actualarrivaltime": actual, "updatedat": m.now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&prediction)
	if err != nil {
		return nil, notFound(err, "prediction %s", id)
	}

	return &prediction, nil
}

func (m *MongoStore) DeletePredictionsBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := m.db.GetCollection(database.PredictionsCollection).DeleteMany(ctx, bson.M{
		"predictedtime": bson.M{"$lt": before},
	})
	if err != nil {
		return 0, err
	}

	return result.DeletedCount, nil
}
