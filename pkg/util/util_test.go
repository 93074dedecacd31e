package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddClockToDate(t *testing.T) {
	colombo, err := time.LoadLocation("Asia/Colombo")
	require.NoError(t, err)

	date := time.Date(2024, time.March, 4, 22, 15, 0, 0, colombo)

	anchored, err := AddClockToDate(date, "08:30:15")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, time.March, 4, 8, 30, 15, 0, colombo), anchored)
	assert.Equal(t, "08:30:15", FormatClock(anchored))

	_, err = AddClockToDate(date, "8.30")
	assert.Error(t, err)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1, Clamp(0, 1, 168))
	assert.Equal(t, 168, Clamp(500, 1, 168))
	assert.Equal(t, 24, Clamp(24, 1, 168))
}

func TestInPlaceFilter(t *testing.T) {
	values := []int{1, 2, 3, 4, 5}
	InPlaceFilter(&values, func(v int) bool { return v%2 == 1 })

	assert.Equal(t, []int{1, 3, 5}, values)
}

func TestRandomIsDeterministicPerSeed(t *testing.T) {
	a := NewRandom(42)
	b := NewRandom(42)

	for i := 0; i < 20; i++ {
		value := a.IntN(16)
		assert.Equal(t, value, b.IntN(16))
		assert.GreaterOrEqual(t, value, 0)
		assert.Less(t, value, 16)
	}

	assert.Zero(t, a.IntN(0))

	between := a.Between(20, 35)
	assert.GreaterOrEqual(t, between, 20.0)
	assert.Less(t, between, 35.0)

	assert.Contains(t, []string{"clear", "cloudy"}, Pick(a, []string{"clear", "cloudy"}))
}
