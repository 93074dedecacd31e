package prediction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/travigo/smartrail/pkg/railway"
)

type EventIndexer interface {
	IndexRequest(indexName string, document io.ReadSeeker)
}

type PredictionElasticEvent struct {
	Timestamp time.Time

	TrainID   int64
	StationID int64

	Method          railway.PredictionMethod
	ConfidenceScore float64
	DelayMinutes    int

	Fallback   bool
	FailReason string
}

func predictionIndexName(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("smartrail-prediction-events-%d-%d", year, week)
}

func (e *Engine) indexPredictionEvent(prediction *railway.Prediction, mlErr error) {
	if e.Indexer == nil {
		return
	}

	event := PredictionElasticEvent{
		Timestamp:       e.Now(),
		TrainID:         prediction.TrainID,
		StationID:       prediction.StationID,
		Method:          prediction.Method,
		ConfidenceScore: prediction.ConfidenceScore,
		DelayMinutes:    prediction.DelayMinutes,
		Fallback:        mlErr != nil,
	}
	if mlErr != nil {
		event.FailReason = mlErr.Error()
	}

	eventBytes, _ := json.Marshal(event)

	e.Indexer.IndexRequest(predictionIndexName(event.Timestamp), bytes.NewReader(eventBytes))
}
