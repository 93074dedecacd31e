package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/smartrail/pkg/railway"
)

func memoryOptions() Options {
	return Options{
		Memory:   true,
		SeedPath: "testdata/seed.yaml",
	}
}

func TestBuildInMemory(t *testing.T) {
	t.Setenv("SMARTRAIL_JWT_SECRET", "components-test")
	t.Setenv("SMARTRAIL_REDIS_ADDRESS", "")
	t.Setenv("SMARTRAIL_ML_SERVICE_URL", "")
	t.Setenv("SMARTRAIL_ELASTICSEARCH_ADDRESS", "")

	ctx := context.Background()

	components, err := Build(ctx, memoryOptions())
	require.NoError(t, err)

	assert.Nil(t, components.Database)
	assert.Nil(t, components.Redis)
	assert.Nil(t, components.Relay)
	assert.Nil(t, components.Consumer)
	assert.Nil(t, components.Watch)
	assert.Nil(t, components.Engine.Indexer)
	assert.Equal(t, "Asia/Colombo", components.Location.String())

	train, err := components.Store.GetTrain(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, "Udarata Menike", train.Name)

	prediction, err := components.Engine.Predict(ctx, 1001, 12)
	require.NoError(t, err)
	assert.Equal(t, railway.PredictionMethodSchedule, prediction.Method)
	assert.Equal(t, 0.6, prediction.ConfidenceScore)

	_, err = components.Engine.Predict(ctx, 1002, 99)
	assert.ErrorIs(t, err, railway.ErrNotFound)

	response, err := components.Server().App().Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, response.StatusCode)

	require.NoError(t, components.Start(ctx))
	assert.NoError(t, components.Shutdown(ctx))
}

func TestBuildRequiresJWTSecret(t *testing.T) {
	t.Setenv("SMARTRAIL_JWT_SECRET", "")

	_, err := Build(context.Background(), memoryOptions())
	assert.Error(t, err)
}

func TestBuildMissingSeed(t *testing.T) {
	t.Setenv("SMARTRAIL_JWT_SECRET", "components-test")
	t.Setenv("SMARTRAIL_REDIS_ADDRESS", "")

	_, err := Build(context.Background(), Options{Memory: true, SeedPath: "testdata/missing.yaml"})
	assert.Error(t, err)
}
