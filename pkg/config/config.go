package config

import (
	"time"
)

type Config struct {
	Listen string `yaml:"listen" validate:"required"`

	MongoDB       MongoDBConfig       `yaml:"mongodb"`
	Redis         RedisConfig         `yaml:"redis"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`

	Auth AuthConfig `yaml:"auth"`
	ML   MLConfig   `yaml:"ml"`

	Tracking   TrackingConfig   `yaml:"tracking"`
	Prediction PredictionConfig `yaml:"prediction"`
	Delay      DelayConfig      `yaml:"delay"`
	Cleanup    CleanupConfig    `yaml:"cleanup"`
	Broadcast  BroadcastConfig  `yaml:"broadcast"`
	Events     EventsConfig     `yaml:"events"`
}

type MongoDBConfig struct {
	Connection string `yaml:"connection" validate:"required"`
	Database   string `yaml:"database" validate:"required"`
}

// RedisConfig is optional, an empty address disables the relay, queue and cache
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	Database int    `yaml:"database" validate:"gte=0"`
}

func (r RedisConfig) Enabled() bool {
	return r.Address != ""
}

type ElasticsearchConfig struct {
	Address  string `yaml:"address" validate:"omitempty,url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" validate:"required"`
	Issuer    string `yaml:"issuer" validate:"required"`
	Audience  string `yaml:"audience" validate:"required"`
}

type MLConfig struct {
	URL     string        `yaml:"url" validate:"omitempty,url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

func (m MLConfig) Enabled() bool {
	return m.URL != ""
}

type TrackingConfig struct {
	DatasetPath string `yaml:"dataset_path"`

	PositionInterval time.Duration `yaml:"position_interval" validate:"gt=0"`
	LiveWindow       time.Duration `yaml:"live_window" validate:"gt=0"`
	SampleRetention  time.Duration `yaml:"sample_retention" validate:"gt=0"`

	CentroidLatitude  float64 `yaml:"centroid_latitude" validate:"gte=-90,lte=90"`
	CentroidLongitude float64 `yaml:"centroid_longitude" validate:"gte=-180,lte=180"`
	JitterDegrees     float64 `yaml:"jitter_degrees" validate:"gte=0"`

	ArrivalPadMaxMinutes int `yaml:"arrival_pad_max_minutes" validate:"gte=0"`

	Workers int `yaml:"workers" validate:"gt=0"`
}

type PredictionConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval" validate:"gt=0"`
	Retention       time.Duration `yaml:"retention" validate:"gt=0"`

	FallbackPadMaxMinutes int     `yaml:"fallback_pad_max_minutes" validate:"gte=0"`
	FallbackConfidence    float64 `yaml:"fallback_confidence" validate:"gte=0,lte=1"`

	Timezone        string        `yaml:"timezone" validate:"required,timezone"`
	WeatherCacheTTL time.Duration `yaml:"weather_cache_ttl" validate:"gt=0"`
}

type DelayConfig struct {
	EventThresholdMinutes      int `yaml:"event_threshold_minutes" validate:"gte=0"`
	EscalationThresholdMinutes int `yaml:"escalation_threshold_minutes" validate:"gtefield=EventThresholdMinutes"`
}

type CleanupConfig struct {
	Interval time.Duration `yaml:"interval" validate:"gt=0"`
}

type BroadcastConfig struct {
	SendBuffer   int    `yaml:"send_buffer" validate:"gt=0"`
	RelayChannel string `yaml:"relay_channel" validate:"required"`
}

type EventsConfig struct {
	QueueName    string        `yaml:"queue_name" validate:"required"`
	Consumers    int           `yaml:"consumers" validate:"gt=0"`
	BatchSize    int           `yaml:"batch_size" validate:"gt=0"`
	BatchTimeout time.Duration `yaml:"batch_timeout" validate:"gt=0"`
}

func Default() *Config {
	return &Config{
		Listen: ":8080",
		MongoDB: MongoDBConfig{
			Connection: "mongodb://localhost:27017/",
			Database:   "smartrail",
		},
		Auth: AuthConfig{
			Issuer:   "smartrail",
			Audience: "smartrail-clients",
		},
		ML: MLConfig{
			Timeout: 10 * time.Second,
		},
		Tracking: TrackingConfig{
			PositionInterval:     30 * time.Second,
			LiveWindow:           5 * time.Minute,
			SampleRetention:      7 * 24 * time.Hour,
			CentroidLatitude:     7.8731,
			CentroidLongitude:    80.7718,
			JitterDegrees:        0.005,
			ArrivalPadMaxMinutes: 15,
			Workers:              10,
		},
		Prediction: PredictionConfig{
			RefreshInterval:       5 * time.Minute,
			Retention:             24 * time.Hour,
			FallbackPadMaxMinutes: 10,
			FallbackConfidence:    0.6,
			Timezone:              "Asia/Colombo",
			WeatherCacheTTL:       10 * time.Minute,
		},
		Delay: DelayConfig{
			EventThresholdMinutes:      5,
			EscalationThresholdMinutes: 15,
		},
		Cleanup: CleanupConfig{
			Interval: 24 * time.Hour,
		},
		Broadcast: BroadcastConfig{
			SendBuffer:   64,
			RelayChannel: "smartrail:broadcast",
		},
		Events: EventsConfig{
			QueueName:    "smartrail-events",
			Consumers:    2,
			BatchSize:    20,
			BatchTimeout: 2 * time.Second,
		},
	}
}
