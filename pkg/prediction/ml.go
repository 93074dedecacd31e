package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/travigo/smartrail/pkg/railway"
)

type MLRequest struct {
	TrainID       int64  `json:"train_id"`
	StationID     int64  `json:"station_id"`
	ScheduledTime string `json:"scheduled_time,omitempty"`

	CurrentLocation *railway.TrackingSample   `json:"current_location"`
	RecentTracking  []*railway.TrackingSample `json:"recent_tracking"`
	HistoricalData  []HistoricalRecord        `json:"historical_data"`
	WeatherData     *Weather                  `json:"weather_data"`
	TimeFeatures    TimeFeatures              `json:"time_features"`
}

// HistoricalRecord is a past sample at the station alongside the prediction made for that day
type HistoricalRecord struct {
	*railway.TrackingSample

	PredictedTime     *time.Time `json:"predicted_time,omitempty"`
	ActualArrivalTime *time.Time `json:"actual_arrival_time,omitempty"`
}

type MLResponse struct {
	PredictedTime    string   `json:"predicted_time" copier:"-"`
	ConfidenceScore  float64  `json:"confidence_score"`
	DelayMinutes     float64  `json:"delay_minutes" copier:"-"`
	Method           string   `json:"method" copier:"-"`
	PredictionMethod string   `json:"prediction_method" copier:"-"`
	Factors          []string `json:"factors"`
	ModelVersion     string   `json:"model_version" copier:"-"`
}

func (r *MLResponse) ResolvedMethod() railway.PredictionMethod {
	for _, method := range []string{r.Method, r.PredictionMethod} {
		switch railway.PredictionMethod(method) {
		case railway.PredictionMethodML, railway.PredictionMethodHybrid:
			return railway.PredictionMethod(method)
		}
	}

	return railway.PredictionMethodML
}

type MLClient interface {
	Predict(ctx context.Context, request *MLRequest) (*MLResponse, error)
}

// HTTPMLClient calls POST {URL}/predict. Every failure is reported as ErrExternalServiceUnavailable.
type HTTPMLClient struct {
	URL     string
	APIKey  string
	Timeout time.Duration

	HTTPClient *http.Client
}

func NewHTTPMLClient(url string, apiKey string, timeout time.Duration) *HTTPMLClient {
	return &HTTPMLClient{
		URL:        strings.TrimRight(url, "/"),
		APIKey:     apiKey,
		Timeout:    timeout,
		HTTPClient: &http.Client{},
	}
}

func (c *HTTPMLClient) Predict(ctx context.Context, request *MLRequest) (*MLResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encoding ml request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", railway.ErrExternalServiceUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", railway.ErrExternalServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: ml service returned %s", railway.ErrExternalServiceUnavailable, resp.Status)
	}

	var response MLResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("%w: decoding ml response: %w", railway.ErrExternalServiceUnavailable, err)
	}

	if response.PredictedTime == "" {
		return nil, fmt.Errorf("%w: ml response has no predicted_time", railway.ErrExternalServiceUnavailable)
	}

	return &response, nil
}

// DisabledMLClient is used when no ML service is configured
type DisabledMLClient struct{}

func (DisabledMLClient) Predict(ctx context.Context, request *MLRequest) (*MLResponse, error) {
	return nil, fmt.Errorf("%w: ml service not configured", railway.ErrExternalServiceUnavailable)
}
