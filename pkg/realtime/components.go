package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
	"github.com/travigo/smartrail/pkg/api"
	"github.com/travigo/smartrail/pkg/api/routes"
	"github.com/travigo/smartrail/pkg/broadcast"
	"github.com/travigo/smartrail/pkg/config"
	"github.com/travigo/smartrail/pkg/consumer"
	"github.com/travigo/smartrail/pkg/database"
	"github.com/travigo/smartrail/pkg/dbwatch"
	"github.com/travigo/smartrail/pkg/elastic_client"
	"github.com/travigo/smartrail/pkg/events"
	"github.com/travigo/smartrail/pkg/prediction"
	"github.com/travigo/smartrail/pkg/redis_client"
	"github.com/travigo/smartrail/pkg/scheduler"
	"github.com/travigo/smartrail/pkg/store"
	"github.com/travigo/smartrail/pkg/tracking"
	"github.com/travigo/smartrail/pkg/util"
)

type Options struct {
	ConfigPath string

	// Memory swaps MongoDB for the in-memory store seeded from SeedPath
	Memory   bool
	SeedPath string
}

// Components is the wired pipeline shared by every subcommand
type Components struct {
	Config   *config.Config
	Location *time.Location

	Store    store.EntityStore
	Database *database.Instance
	Redis    *redis_client.Connection
	Indexer  *elastic_client.Indexer

	Authenticator *broadcast.JWTAuthenticator
	Hub           *broadcast.Hub
	Relay         *broadcast.Relay

	Recorder  *tracking.Recorder
	Tracker   *tracking.Tracker
	Engine    *prediction.Engine
	Scheduler *scheduler.Scheduler

	Consumer *consumer.RedisConsumer
	Watch    *dbwatch.TrainsWatch

	stopWatch context.CancelFunc
}

func Build(ctx context.Context, options Options) (*Components, error) {
	cfg, err := config.Load(options.ConfigPath, util.GetEnvironmentVariables())
	if err != nil {
		return nil, err
	}

	location, err := time.LoadLocation(cfg.Prediction.Timezone)
	if err != nil {
		return nil, err
	}

	components := &Components{
		Config:   cfg,
		Location: location,
	}

	if err := components.connectStore(ctx, options); err != nil {
		return nil, err
	}

	if cfg.Redis.Enabled() {
		components.Redis, err = redis_client.Connect(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.Database)
		if err != nil {
			return nil, err
		}
	} else {
		log.Info().Msg("Skipping Redis setup")
	}

	components.Indexer, err = elastic_client.Connect(cfg.Elasticsearch.Address, cfg.Elasticsearch.Username, cfg.Elasticsearch.Password)
	if err != nil {
		return nil, err
	}

	components.Authenticator, err = broadcast.NewJWTAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, []string{cfg.Auth.Audience})
	if err != nil {
		return nil, err
	}
	components.Hub = broadcast.NewHub(components.Authenticator, cfg.Broadcast.SendBuffer)

	var eventPublisher tracking.EventPublisher = events.DiscardPublisher{}
	if components.Redis != nil {
		eventPublisher, err = events.NewPublisher(components.Redis.QueueConnection, cfg.Events.QueueName)
		if err != nil {
			return nil, err
		}
	}

	random := util.NewUnseededRandom()

	components.Recorder = tracking.NewRecorder(components.Store, cfg.Tracking.LiveWindow)

	components.Tracker = &tracking.Tracker{
		Source:      components.positionSource(random),
		Recorder:    components.Recorder,
		Broadcaster: components.Hub,
		Trains:      components.Store,
		Detector: &tracking.DelayDetector{
			Trains:      components.Store,
			Broadcaster: components.Hub,
			Events:      eventPublisher,
			Thresholds: tracking.DelayThresholds{
				EventMinutes:      cfg.Delay.EventThresholdMinutes,
				EscalationMinutes: cfg.Delay.EscalationThresholdMinutes,
			},
			Random:   random,
			Location: location,
			Now:      time.Now,
		},
	}

	components.Engine = &prediction.Engine{
		Store:   components.Store,
		ML:      components.mlClient(),
		Weather: components.weatherProvider(random),
		Fallback: prediction.FallbackConfig{
			PadMaxMinutes: cfg.Prediction.FallbackPadMaxMinutes,
			Confidence:    cfg.Prediction.FallbackConfidence,
		},
		Random:   random,
		Now:      time.Now,
		Location: location,
	}
	if components.Indexer.Enabled() {
		components.Engine.Indexer = components.Indexer
	}

	components.Scheduler = &scheduler.Scheduler{
		Trains:      components.Store,
		Tracker:     components.Tracker,
		Engine:      components.Engine,
		Broadcaster: components.Hub,
		Retention:   components.Store,
		Config: scheduler.Config{
			PositionInterval:    cfg.Tracking.PositionInterval,
			RefreshInterval:     cfg.Prediction.RefreshInterval,
			CleanupInterval:     cfg.Cleanup.Interval,
			SampleRetention:     cfg.Tracking.SampleRetention,
			PredictionRetention: cfg.Prediction.Retention,
			Workers:             cfg.Tracking.Workers,
		},
		Now: time.Now,
	}

	// replayed positions jump between stations, so predictions follow every tick
	if _, replaying := components.Tracker.Source.(*tracking.DatasetSource); replaying {
		components.Tracker.PostAdvance = components.Scheduler
	}

	if components.Redis != nil {
		components.Relay = broadcast.NewRelay(components.Redis.Client, cfg.Broadcast.RelayChannel, components.Hub)
		components.Scheduler.Queue = rmq.NewCleaner(components.Redis.QueueConnection)
		components.Consumer = &consumer.RedisConsumer{
			Connection:      components.Redis.QueueConnection,
			QueueName:       cfg.Events.QueueName,
			NumberConsumers: cfg.Events.Consumers,
			BatchSize:       cfg.Events.BatchSize,
			Timeout:         cfg.Events.BatchTimeout,
			Consumer:        events.NewNotifyBatchConsumer(components.Store, components.Hub),
		}

		if components.Database != nil {
			components.Watch = dbwatch.NewTrainsWatch(components.Database, eventPublisher)
		}
	}

	return components, nil
}

func (c *Components) connectStore(ctx context.Context, options Options) error {
	if !options.Memory {
		instance, err := database.Connect(ctx, c.Config.MongoDB.Connection, c.Config.MongoDB.Database)
		if err != nil {
			return err
		}

		c.Database = instance
		c.Store = store.NewMongoStore(instance)

		return nil
	}

	memoryStore := store.NewMemoryStore()

	if options.SeedPath != "" {
		seed, err := store.LoadSeedFile(options.SeedPath)
		if err != nil {
			return err
		}
		memoryStore.Seed(seed)

		log.Info().
			Str("seed", options.SeedPath).
			Int("trains", len(seed.Trains)).
			Int("stations", len(seed.Stations)).
			Msg("Loaded in-memory store")
	} else {
		log.Warn().Msg("In-memory store started without a seed file")
	}

	c.Store = memoryStore

	return nil
}

func (c *Components) positionSource(random *util.Random) tracking.PositionSource {
	if path := c.Config.Tracking.DatasetPath; path != "" {
		dataset, err := tracking.LoadDataset(path)
		if err == nil {
			log.Info().Str("path", path).Int("trains", len(dataset)).Msg("Replaying tracking dataset")
			return tracking.NewDatasetSource(dataset, c.Location)
		}

		log.Warn().Err(err).Str("path", path).Msg("Could not load tracking dataset, simulating positions")
	}

	return &tracking.Simulator{
		Trains: c.Store,
		Config: tracking.SimulatorConfig{
			CentroidLatitude:     c.Config.Tracking.CentroidLatitude,
			CentroidLongitude:    c.Config.Tracking.CentroidLongitude,
			JitterDegrees:        c.Config.Tracking.JitterDegrees,
			ArrivalPadMaxMinutes: c.Config.Tracking.ArrivalPadMaxMinutes,
		},
		Random:   random,
		Now:      time.Now,
		Location: c.Location,
	}
}

func (c *Components) mlClient() prediction.MLClient {
	if !c.Config.ML.Enabled() {
		log.Info().Msg("No ML service configured, predictions are schedule based")
		return prediction.DisabledMLClient{}
	}

	return prediction.NewHTTPMLClient(c.Config.ML.URL, c.Config.ML.APIKey, c.Config.ML.Timeout)
}

func (c *Components) weatherProvider(random *util.Random) prediction.WeatherProvider {
	provider := prediction.RandomWeather{Random: random}

	if c.Redis == nil {
		return provider
	}

	return prediction.NewCachedWeather(provider, c.Redis.Client, c.Config.Prediction.WeatherCacheTTL)
}

// Start runs the background parts of the pipeline: relay, events consumers and the scheduler
func (c *Components) Start(ctx context.Context) error {
	if c.Relay != nil {
		if err := c.Relay.Start(ctx); err != nil {
			return err
		}
		c.Hub.Forwarder = c.Relay
	}

	if c.Consumer != nil {
		if err := c.Consumer.Setup(); err != nil {
			return err
		}
	}

	if c.Watch != nil {
		watchCtx, cancel := context.WithCancel(ctx)
		c.stopWatch = cancel

		go func() {
			if err := c.Watch.Run(watchCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Trains watch stopped")
			}
		}()
	}

	c.Scheduler.Start(ctx)

	return nil
}

func (c *Components) Server() *api.Server {
	server := &api.Server{
		Services: &routes.Services{
			Trains:    c.Store,
			Stations:  c.Store,
			Recorder:  c.Recorder,
			Engine:    c.Engine,
			Scheduler: c.Scheduler,
		},
		Hub:           c.Hub,
		Authenticator: c.Authenticator,
		HealthChecks:  map[string]api.HealthCheck{},
	}

	if c.Database != nil {
		server.HealthChecks["mongodb"] = func(ctx context.Context) error {
			return c.Database.Client.Ping(ctx, nil)
		}
	}
	if c.Redis != nil {
		server.QueueConnection = c.Redis.QueueConnection
		server.HealthChecks["redis"] = func(ctx context.Context) error {
			return c.Redis.Client.Ping(ctx).Err()
		}
	}

	return server
}

// Shutdown stops the scheduler first so no new work starts, then releases connections
func (c *Components) Shutdown(ctx context.Context) error {
	var errs []error

	c.Scheduler.Stop()

	if c.stopWatch != nil {
		c.stopWatch()
	}

	if c.Relay != nil {
		if err := c.Relay.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	c.Hub.Close()

	if err := c.Indexer.WaitUntilQueueEmpty(ctx); err != nil {
		errs = append(errs, err)
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.Database != nil {
		if err := c.Database.Disconnect(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
