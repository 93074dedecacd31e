package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const envPrefix = "SMARTRAIL_"

// Load builds the configuration from defaults, then the optional YAML file at path,
// then the SMARTRAIL_ prefixed values in env
func Load(path string, env map[string]string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := applyEnvironment(cfg, env); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnvironment(cfg *Config, env map[string]string) error {
	stringValues := map[string]*string{
		"LISTEN":                 &cfg.Listen,
		"MONGODB_CONNECTION":     &cfg.MongoDB.Connection,
		"MONGODB_DATABASE":       &cfg.MongoDB.Database,
		"REDIS_ADDRESS":          &cfg.Redis.Address,
		"REDIS_PASSWORD":         &cfg.Redis.Password,
		"ELASTICSEARCH_ADDRESS":  &cfg.Elasticsearch.Address,
		"ELASTICSEARCH_USERNAME": &cfg.Elasticsearch.Username,
		"ELASTICSEARCH_PASSWORD": &cfg.Elasticsearch.Password,
		"JWT_SECRET":             &cfg.Auth.JWTSecret,
		"JWT_ISSUER":             &cfg.Auth.Issuer,
		"JWT_AUDIENCE":           &cfg.Auth.Audience,
		"ML_SERVICE_URL":         &cfg.ML.URL,
		"ML_SERVICE_API_KEY":     &cfg.ML.APIKey,
		"DATASET_PATH":           &cfg.Tracking.DatasetPath,
		"TIMEZONE":               &cfg.Prediction.Timezone,
		"EVENTS_QUEUE":           &cfg.Events.QueueName,
	}
	for name, target := range stringValues {
		if value, ok := env[envPrefix+name]; ok && value != "" {
			*target = value
		}
	}

	ints := map[string]*int{
		"REDIS_DATABASE":                     &cfg.Redis.Database,
		"DELAY_EVENT_THRESHOLD_MINUTES":      &cfg.Delay.EventThresholdMinutes,
		"DELAY_ESCALATION_THRESHOLD_MINUTES": &cfg.Delay.EscalationThresholdMinutes,
		"ARRIVAL_PAD_MAX_MINUTES":            &cfg.Tracking.ArrivalPadMaxMinutes,
		"FALLBACK_PAD_MAX_MINUTES":           &cfg.Prediction.FallbackPadMaxMinutes,
		"TRACKING_WORKERS":                   &cfg.Tracking.Workers,
	}
	for name, target := range ints {
		if value, ok := env[envPrefix+name]; ok && value != "" {
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*target = n
		}
	}

	durations := map[string]*time.Duration{
		"ML_TIMEOUT":          &cfg.ML.Timeout,
		"POSITION_INTERVAL":   &cfg.Tracking.PositionInterval,
		"PREDICTION_INTERVAL": &cfg.Prediction.RefreshInterval,
		"CLEANUP_INTERVAL":    &cfg.Cleanup.Interval,
		"LIVE_WINDOW":         &cfg.Tracking.LiveWindow,
	}
	for name, target := range durations {
		if value, ok := env[envPrefix+name]; ok && value != "" {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*target = d
		}
	}

	if value, ok := env[envPrefix+"FALLBACK_CONFIDENCE"]; ok && value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%sFALLBACK_CONFIDENCE: %w", envPrefix, err)
		}
		cfg.Prediction.FallbackConfidence = f
	}

	return nil
}
