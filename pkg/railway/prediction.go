package railway

import "time"

type PredictionMethod string

const (
	PredictionMethodML       PredictionMethod = "ml_model"
	PredictionMethodSchedule PredictionMethod = "schedule_based"
	PredictionMethodHybrid   PredictionMethod = "hybrid"
)

const PredictionDateLayout = "2006-01-02"

// Prediction is keyed by (TrainID, StationID, PredictionDate)
type Prediction struct {
	ID string `json:"id" groups:"basic"`

	TrainID        int64  `json:"trainId" groups:"basic"`
	StationID      int64  `json:"stationId" groups:"basic"`
	PredictionDate string `json:"predictionDate" groups:"basic"`

	PredictedTime   time.Time        `json:"predictedTime" groups:"basic"`
	ConfidenceScore float64          `json:"confidenceScore" groups:"basic"`
	DelayMinutes    int              `json:"delayMinutes" groups:"basic"`
	Method          PredictionMethod `json:"predictionMethod" groups:"basic"`
	Factors         []string         `json:"factors" groups:"detailed"`

	ActualArrivalTime *time.Time `json:"actualArrivalTime,omitempty" groups:"detailed"`

	CreatedAt time.Time `json:"createdAt" groups:"detailed"`
	UpdatedAt time.Time `json:"updatedAt" groups:"detailed"`
}

func (p *Prediction) IsClosed() bool {
	return p.ActualArrivalTime != nil
}

// ErrorMinutes is the absolute difference between actual and predicted arrival
func (p *Prediction) ErrorMinutes() float64 {
	if p.ActualArrivalTime == nil {
		return 0
	}

	diff := p.ActualArrivalTime.Sub(p.PredictedTime).Minutes()
	if diff < 0 {
		return -diff
	}
	return diff
}

type PredictionAccuracy struct {
	AccuracyPercentage  float64 `json:"accuracyPercentage"`
	AverageErrorMinutes float64 `json:"averageErrorMinutes"`
	TotalPredictions    int     `json:"totalPredictions"`
	AccuratePredictions int     `json:"accuratePredictions"`
}

type DelayStats struct {
	TotalPredictions  int     `json:"totalPredictions"`
	OnTime            int     `json:"onTime"`
	MinorDelays       int     `json:"minorDelays"`
	MajorDelays       int     `json:"majorDelays"`
	AverageDelay      float64 `json:"averageDelay"`
	MaxDelay          int     `json:"maxDelay"`
	AverageConfidence float64 `json:"averageConfidence"`

	OnTimePercentage     float64 `json:"onTimePercentage"`
	MinorDelayPercentage float64 `json:"minorDelayPercentage"`
	MajorDelayPercentage float64 `json:"majorDelayPercentage"`
}
