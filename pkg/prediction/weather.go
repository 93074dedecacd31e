package prediction

import (
	"context"
	"encoding/json"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/travigo/smartrail/pkg/util"
)

const weatherCacheKey = "smartrail:weather:current"

var weatherConditions = []string{"clear", "cloudy", "rainy", "stormy"}

type Weather struct {
	Temperature int     `json:"temperature"`
	Humidity    int     `json:"humidity"`
	Rainfall    float64 `json:"rainfall"`
	WindSpeed   int     `json:"windSpeed"`
	Conditions  string  `json:"conditions"`
}

type WeatherProvider interface {
	Current(ctx context.Context) (*Weather, error)
}

// RandomWeather produces plausible tropical weather until a real provider is wired in
type RandomWeather struct {
	Random *util.Random
}

func (r RandomWeather) Current(ctx context.Context) (*Weather, error) {
	return &Weather{
		Temperature: 20 + r.Random.IntN(15),
		Humidity:    60 + r.Random.IntN(40),
		Rainfall:    r.Random.Between(0, 10),
		WindSpeed:   5 + r.Random.IntN(20),
		Conditions:  util.Pick(r.Random, weatherConditions),
	}, nil
}

// CachedWeather keeps one snapshot in redis so every prediction in a refresh sees the same weather
type CachedWeather struct {
	Provider WeatherProvider
	Cache    cache.CacheInterface[string]
}

func NewCachedWeather(provider WeatherProvider, client *redis.Client, ttl time.Duration) *CachedWeather {
	redisStore := redisstore.NewRedis(client, store.WithExpiration(ttl))

	return &CachedWeather{
		Provider: provider,
		Cache:    cache.New[string](redisStore),
	}
}

func (c *CachedWeather) Current(ctx context.Context) (*Weather, error) {
	cachedValue, err := c.Cache.Get(ctx, weatherCacheKey)
	if err == nil {
		var weather Weather
		if err := json.Unmarshal([]byte(cachedValue), &weather); err == nil {
			return &weather, nil
		}
	}

	weather, err := c.Provider.Current(ctx)
	if err != nil {
		return nil, err
	}

	weatherJSON, _ := json.Marshal(weather)
	if err := c.Cache.Set(ctx, weatherCacheKey, string(weatherJSON)); err != nil {
		log.Warn().Err(err).Msg("Failed to cache weather snapshot")
	}

	return weather, nil
}
