package railway

type TrainStatus string

const (
	TrainStatusScheduled TrainStatus = "scheduled"
	TrainStatusRunning   TrainStatus = "running"
	TrainStatusDelayed   TrainStatus = "delayed"
	TrainStatusCancelled TrainStatus = "cancelled"
	TrainStatusCompleted TrainStatus = "completed"

	// TrainStatusActive is only ever set by an operator resetting a delayed train
	TrainStatusActive TrainStatus = "active"
)

// ActiveTrainStatuses are the statuses advanced by the scheduler
var ActiveTrainStatuses = []TrainStatus{TrainStatusRunning, TrainStatusDelayed}

func (s TrainStatus) IsActive() bool {
	return s == TrainStatusRunning || s == TrainStatusDelayed
}

func (s TrainStatus) Valid() bool {
	switch s {
	case TrainStatusScheduled, TrainStatusRunning, TrainStatusDelayed, TrainStatusCancelled, TrainStatusCompleted, TrainStatusActive:
		return true
	}
	return false
}

type Train struct {
	ID int64 `json:"id" yaml:"id" groups:"basic"`

	Number string `json:"trainNumber" yaml:"number" groups:"basic"`
	Name   string `json:"trainName" yaml:"name" groups:"basic"`
	Type   string `json:"trainType" yaml:"type" groups:"detailed"`

	Capacity int `json:"capacity" yaml:"capacity" groups:"detailed"`

	Status TrainStatus `json:"status" yaml:"status" groups:"basic"`

	CurrentStationID int64 `json:"currentStationId,omitempty" yaml:"current_station_id" groups:"detailed"`
	RouteID          int64 `json:"routeId" yaml:"route_id" groups:"detailed"`
}

type Station struct {
	ID   int64  `json:"id" yaml:"id" groups:"basic"`
	Name string `json:"name" yaml:"name" groups:"basic"`
	Code string `json:"code" yaml:"code" groups:"basic"`

	Location Location `json:"location" yaml:"location" groups:"detailed"`
}

// ScheduleEntry is one stop of a route. Times are HH:MM:SS clock strings,
// an origin has no arrival and a terminus has no departure
type ScheduleEntry struct {
	RouteID     int64  `json:"routeId" yaml:"route_id"`
	StationID   int64  `json:"stationId" yaml:"station_id"`
	StationName string `json:"stationName" yaml:"station_name"`
	Sequence    int    `json:"sequence" yaml:"sequence"`

	ArrivalTime   string `json:"arrivalTime" yaml:"arrival_time"`
	DepartureTime string `json:"departureTime" yaml:"departure_time"`
}

// ScheduledArrival is the arrival clock, or the departure clock at an origin
func (e ScheduleEntry) ScheduledArrival() string {
	if e.ArrivalTime == "" {
		return e.DepartureTime
	}
	return e.ArrivalTime
}

// ScheduledDeparture is the departure clock, or the arrival clock at a terminus
func (e ScheduleEntry) ScheduledDeparture() string {
	if e.DepartureTime == "" {
		return e.ArrivalTime
	}
	return e.DepartureTime
}

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

type Booking struct {
	ID      int64         `json:"id" yaml:"id"`
	UserID  int64         `json:"userId" yaml:"user_id"`
	TrainID int64         `json:"trainId" yaml:"train_id"`
	Status  BookingStatus `json:"status" yaml:"status"`
}
