package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/travigo/smartrail/pkg/railway"
	"github.com/travigo/smartrail/pkg/util"
)

const defaultDatasetAccuracy = 10

type DatasetPoint struct {
	TrainID int64 `json:"-" csv:"train_id"`

	Latitude  float64 `json:"latitude" csv:"latitude"`
	Longitude float64 `json:"longitude" csv:"longitude"`
	Speed     float64 `json:"speed" csv:"speed"`
	Heading   float64 `json:"heading" csv:"heading"`

	StationID        int64  `json:"stationId" csv:"station_id"`
	EstimatedArrival string `json:"estimatedArrival" csv:"estimated_arrival"`

	Accuracy float64 `json:"accuracy" csv:"accuracy"`
}

type Dataset map[int64][]DatasetPoint

// LoadDataset reads a JSON ({"<trainId>": [points]}) or CSV dataset
func LoadDataset(path string) (Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	dataset := Dataset{}

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		var points []*DatasetPoint
		if err := gocsv.Unmarshal(file, &points); err != nil {
			return nil, fmt.Errorf("parsing dataset %s: %w", path, err)
		}

		for _, point := range points {
			dataset[point.TrainID] = append(dataset[point.TrainID], *point)
		}

		return dataset, nil
	}

	var raw map[string][]DatasetPoint
	if err := json.NewDecoder(file).Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing dataset %s: %w", path, err)
	}

	for key, points := range raw {
		trainID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("dataset train id %q: %w", key, err)
		}

		for i := range points {
			points[i].TrainID = trainID
		}
		dataset[trainID] = points
	}

	return dataset, nil
}

// DatasetSource replays recorded points per train, wrapping around at the end
type DatasetSource struct {
	Dataset Dataset

	Now      func() time.Time
	Location *time.Location

	cursorsMutex sync.Mutex
	cursors      map[int64]int
}

func NewDatasetSource(dataset Dataset, location *time.Location) *DatasetSource {
	return &DatasetSource{
		Dataset:  dataset,
		Now:      time.Now,
		Location: location,
		cursors:  map[int64]int{},
	}
}

func (d *DatasetSource) NextSample(ctx context.Context, train *railway.Train) (*railway.TrackingSample, error) {
	points := d.Dataset[train.ID]
	if len(points) == 0 {
		return nil, nil
	}

	d.cursorsMutex.Lock()
	index := d.cursors[train.ID] % len(points)
	d.cursors[train.ID] = (index + 1) % len(points)
	d.cursorsMutex.Unlock()

	point := points[index]

	sample := &railway.TrackingSample{
		TrainID:   train.ID,
		Latitude:  point.Latitude,
		Longitude: point.Longitude,
		Speed:     point.Speed,
		Heading:   point.Heading,
		StationID: point.StationID,
		Accuracy:  point.Accuracy,
	}
	if sample.Accuracy == 0 {
		sample.Accuracy = defaultDatasetAccuracy
	}

	if point.EstimatedArrival != "" {
		estimatedArrival, err := d.parseArrival(point.EstimatedArrival)
		if err != nil {
			return nil, err
		}
		sample.EstimatedArrival = &estimatedArrival
	}

	return sample, nil
}

// Cursor is the index of the point the next call will return
func (d *DatasetSource) Cursor(trainID int64) int {
	d.cursorsMutex.Lock()
	defer d.cursorsMutex.Unlock()

	return d.cursors[trainID]
}

func (d *DatasetSource) parseArrival(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}

	return util.AddClockToDate(d.Now().In(d.Location), value)
}
