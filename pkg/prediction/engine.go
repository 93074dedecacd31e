package prediction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jinzhu/copier"
	"github.com/rs/zerolog/log"
	"github.com/travigo/smartrail/pkg/railway"
	"github.com/travigo/smartrail/pkg/store"
	"github.com/travigo/smartrail/pkg/tracking"
	"github.com/travigo/smartrail/pkg/util"
)

const (
	recentTrackingWindow = 2 * time.Hour
	recentTrackingLimit  = 50
	historicalWindow     = 30 * 24 * time.Hour

	accurateWithinMinutes = 5
	minorDelayMinutes     = 5
	majorDelayMinutes     = 15

	DefaultStationHours = 12
	maxStationHours     = 24
	DefaultMetricDays   = 7
)

var fallbackFactors = []string{"schedule_data"}

type EngineStore interface {
	store.TrainStore
	store.TrackingStore
	store.PredictionStore
}

type FallbackConfig struct {
	PadMaxMinutes int
	Confidence    float64
}

// Engine produces arrival predictions, preferring the ML service and falling back to the schedule
type Engine struct {
	Store   EngineStore
	ML      MLClient
	Weather WeatherProvider
	Indexer EventIndexer

	Fallback FallbackConfig
	Random   *util.Random
	Now      func() time.Time
	Location *time.Location
}

func (e *Engine) today() time.Time {
	return e.Now().In(e.Location)
}

// Predict makes at most one ML call and at most one fallback for the pair.
// A station that is not on the train's route is ErrNotFound.
func (e *Engine) Predict(ctx context.Context, trainID int64, stationID int64) (*railway.Prediction, error) {
	stop, err := e.Store.GetScheduleStop(ctx, trainID, stationID)
	if err != nil {
		return nil, err
	}

	prediction, mlErr := e.predictWithML(ctx, trainID, stop)
	if mlErr != nil {
		log.Warn().Err(mlErr).Int64("train", trainID).Int64("station", stationID).Msg("Using schedule based prediction")

		prediction, err = e.fallbackPrediction(trainID, stop)
		if err != nil {
			return nil, err
		}
	}

	stored, err := e.Store.UpsertPrediction(ctx, prediction)
	if err != nil {
		return nil, fmt.Errorf("saving prediction for train %d station %d: %w: %w", trainID, stationID, railway.ErrPersistence, err)
	}

	e.indexPredictionEvent(stored, mlErr)

	return stored, nil
}

func (e *Engine) predictWithML(ctx context.Context, trainID int64, stop *railway.ScheduleEntry) (*railway.Prediction, error) {
	request, err := e.buildRequest(ctx, trainID, stop)
	if err != nil {
		return nil, fmt.Errorf("%w: gathering inputs: %w", railway.ErrExternalServiceUnavailable, err)
	}

	response, err := e.ML.Predict(ctx, request)
	if err != nil {
		return nil, err
	}

	today := e.today()
	predictedTime, err := parsePredictedTime(today, response.PredictedTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", railway.ErrExternalServiceUnavailable, err)
	}

	prediction := &railway.Prediction{}
	if err := copier.Copy(prediction, response); err != nil {
		return nil, fmt.Errorf("%w: mapping ml response: %w", railway.ErrExternalServiceUnavailable, err)
	}

	prediction.TrainID = trainID
	prediction.StationID = stop.StationID
	prediction.PredictionDate = today.Format(railway.PredictionDateLayout)
	prediction.PredictedTime = predictedTime
	prediction.ConfidenceScore = util.Clamp(prediction.ConfidenceScore, 0, 1)
	prediction.DelayMinutes = int(math.Round(response.DelayMinutes))
	prediction.Method = response.ResolvedMethod()

	return prediction, nil
}

func parsePredictedTime(today time.Time, value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.In(today.Location()), nil
	}

	return util.AddClockToDate(today, value)
}

func (e *Engine) buildRequest(ctx context.Context, trainID int64, stop *railway.ScheduleEntry) (*MLRequest, error) {
	now := e.Now()

	recent, err := e.Store.SamplesSince(ctx, trainID, now.Add(-recentTrackingWindow), recentTrackingLimit)
	if err != nil {
		return nil, err
	}

	historical, err := e.historicalData(ctx, trainID, stop.StationID, now)
	if err != nil {
		return nil, err
	}

	weather, err := e.Weather.Current(ctx)
	if err != nil {
		return nil, err
	}

	request := &MLRequest{
		TrainID:        trainID,
		StationID:      stop.StationID,
		ScheduledTime:  stop.ScheduledArrival(),
		RecentTracking: recent,
		HistoricalData: historical,
		WeatherData:    weather,
		TimeFeatures:   ExtractTimeFeatures(now.In(e.Location)),
	}
	if len(recent) > 0 {
		request.CurrentLocation = recent[0]
	}

	return request, nil
}

func (e *Engine) historicalData(ctx context.Context, trainID int64, stationID int64, now time.Time) ([]HistoricalRecord, error) {
	samples, err := e.Store.SamplesAtStation(ctx, trainID, stationID, now.Add(-historicalWindow))
	if err != nil {
		return nil, err
	}

	predictionsByDate := map[string]*railway.Prediction{}
	records := make([]HistoricalRecord, 0, len(samples))

	for _, sample := range samples {
		date := sample.Timestamp.In(e.Location).Format(railway.PredictionDateLayout)

		prediction, cached := predictionsByDate[date]
		if !cached {
			prediction, err = e.Store.GetPredictionFor(ctx, trainID, stationID, date)
			if err != nil {
				return nil, err
			}
			predictionsByDate[date] = prediction
		}

		record := HistoricalRecord{TrackingSample: sample}
		if prediction != nil {
			predictedTime := prediction.PredictedTime
			record.PredictedTime = &predictedTime
			record.ActualArrivalTime = prediction.ActualArrivalTime
		}
		records = append(records, record)
	}

	return records, nil
}

func (e *Engine) fallbackPrediction(trainID int64, stop *railway.ScheduleEntry) (*railway.Prediction, error) {
	today := e.today()

	scheduledArrival, err := util.AddClockToDate(today, stop.ScheduledArrival())
	if err != nil {
		return nil, err
	}

	padMinutes := e.Random.IntN(e.Fallback.PadMaxMinutes + 1)

	return &railway.Prediction{
		TrainID:         trainID,
		StationID:       stop.StationID,
		PredictionDate:  today.Format(railway.PredictionDateLayout),
		PredictedTime:   scheduledArrival.Add(time.Duration(padMinutes) * time.Minute),
		ConfidenceScore: e.Fallback.Confidence,
		DelayMinutes:    padMinutes,
		Method:          railway.PredictionMethodSchedule,
		Factors:         append([]string(nil), fallbackFactors...),
	}, nil
}

// RefreshTrain predicts every stop still ahead of the train today
func (e *Engine) RefreshTrain(ctx context.Context, trainID int64) ([]*railway.Prediction, error) {
	schedule, err := e.Store.GetSchedule(ctx, trainID)
	if err != nil {
		return nil, err
	}

	var predictions []*railway.Prediction
	for _, stop := range tracking.FutureStops(schedule, e.today()) {
		prediction, err := e.Predict(ctx, trainID, stop.StationID)
		if err != nil {
			if errors.Is(err, railway.ErrNotFound) {
				return predictions, err
			}

			log.Error().Err(err).Int64("train", trainID).Int64("station", stop.StationID).Msg("Failed to refresh prediction")
			continue
		}

		predictions = append(predictions, prediction)
	}

	return predictions, nil
}

func (e *Engine) TrainPredictions(ctx context.Context, trainID int64) ([]*railway.Prediction, error) {
	if _, err := e.Store.GetTrain(ctx, trainID); err != nil {
		return nil, err
	}

	return e.Store.FindTrainPredictions(ctx, trainID, e.today().Format(railway.PredictionDateLayout))
}

// StationUpcoming returns predictions arriving within the next hours, capped at a day
func (e *Engine) StationUpcoming(ctx context.Context, stationID int64, hours int) ([]*railway.Prediction, error) {
	hours = util.Clamp(hours, 1, maxStationHours)
	now := e.Now()

	return e.Store.FindStationPredictions(ctx, stationID, now, now.Add(time.Duration(hours)*time.Hour))
}

func (e *Engine) RecordActualArrival(ctx context.Context, predictionID string, actual time.Time) (*railway.Prediction, error) {
	return e.Store.SetActualArrival(ctx, predictionID, actual)
}

func (e *Engine) predictionsSince(ctx context.Context, days int) ([]*railway.Prediction, error) {
	if days < 1 {
		days = DefaultMetricDays
	}

	return e.Store.FindPredictionsCreatedSince(ctx, e.Now().AddDate(0, 0, -days))
}

// Accuracy scores closed predictions created in the last days, accurate means within 5 minutes
func (e *Engine) Accuracy(ctx context.Context, days int) (*railway.PredictionAccuracy, error) {
	predictions, err := e.predictionsSince(ctx, days)
	if err != nil {
		return nil, err
	}

	accuracy := &railway.PredictionAccuracy{}
	var totalError float64

	for _, prediction := range predictions {
		if !prediction.IsClosed() {
			continue
		}

		errorMinutes := prediction.ErrorMinutes()
		totalError += errorMinutes
		accuracy.TotalPredictions++

		if errorMinutes <= accurateWithinMinutes {
			accuracy.AccuratePredictions++
		}
	}

	if accuracy.TotalPredictions > 0 {
		accuracy.AccuracyPercentage = round2(float64(accuracy.AccuratePredictions) / float64(accuracy.TotalPredictions) * 100)
		accuracy.AverageErrorMinutes = round2(totalError / float64(accuracy.TotalPredictions))
	}

	return accuracy, nil
}

func (e *Engine) DelayStats(ctx context.Context, days int) (*railway.DelayStats, error) {
	predictions, err := e.predictionsSince(ctx, days)
	if err != nil {
		return nil, err
	}

	stats := &railway.DelayStats{TotalPredictions: len(predictions)}
	if len(predictions) == 0 {
		return stats, nil
	}

	var totalDelay, totalConfidence float64
	for _, prediction := range predictions {
		switch {
		case prediction.DelayMinutes <= minorDelayMinutes:
			stats.OnTime++
		case prediction.DelayMinutes <= majorDelayMinutes:
			stats.MinorDelays++
		default:
			stats.MajorDelays++
		}

		totalDelay += float64(prediction.DelayMinutes)
		totalConfidence += prediction.ConfidenceScore
		stats.MaxDelay = max(stats.MaxDelay, prediction.DelayMinutes)
	}

	total := float64(len(predictions))
	stats.AverageDelay = round2(totalDelay / total)
	stats.AverageConfidence = round2(totalConfidence / total)
	stats.OnTimePercentage = round2(float64(stats.OnTime) / total * 100)
	stats.MinorDelayPercentage = round2(float64(stats.MinorDelays) / total * 100)
	stats.MajorDelayPercentage = round2(float64(stats.MajorDelays) / total * 100)

	return stats, nil
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
