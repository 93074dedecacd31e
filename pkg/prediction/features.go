package prediction

import "time"

type TimeFeatures struct {
	Hour       int  `json:"hour"`
	DayOfWeek  int  `json:"day_of_week"`
	DayOfMonth int  `json:"day_of_month"`
	Month      int  `json:"month"`
	IsWeekend  bool `json:"is_weekend"`
	IsPeakHour bool `json:"is_peak_hour"`
}

// ExtractTimeFeatures treats 07-09 and 17-19 as peak, both ends inclusive
func ExtractTimeFeatures(now time.Time) TimeFeatures {
	hour := now.Hour()
	weekday := now.Weekday()

	return TimeFeatures{
		Hour:       hour,
		DayOfWeek:  int(weekday),
		DayOfMonth: now.Day(),
		Month:      int(now.Month()),
		IsWeekend:  weekday == time.Saturday || weekday == time.Sunday,
		IsPeakHour: (hour >= 7 && hour <= 9) || (hour >= 17 && hour <= 19),
	}
}
