package domain

import (
	"context"
	"time"
)

// WITA is Central Indonesia Time, used to bucket forecasts by local day.
var WITA = time.FixedZone("WITA", 8*60*60)

// Fallback values shown when the weather provider is unavailable.
const (
	DefaultTemperature = 28.5
	DefaultHumidity    = 75.0
	DefaultDescription = "berawan"
)

// CurrentWeather is the latest observation for a regency.
type CurrentWeather struct {
	Regency     string    `json:"regency"`
	ObservedAt  time.Time `json:"observed_at"`
	Rainfall    float64   `json:"rainfall"` // mm over the last hour
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Description string    `json:"description"`
	Icon        string    `json:"icon,omitempty"`
	Fallback    bool      `json:"fallback,omitempty"`
}

// ForecastSlot is one three-hour forecast entry as returned by the provider.
type ForecastSlot struct {
	Time        time.Time
	Rainfall    float64 // mm over the three-hour slot
	Temperature float64
	Humidity    float64
	Description string
}

// DailyWeather aggregates the forecast slots of one local day.
type DailyWeather struct {
	Regency     string  `json:"regency"`
	Date        string  `json:"date"` // YYYY-MM-DD in WITA
	Rainfall    float64 `json:"rainfall"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Description string  `json:"description"`
}

// WeatherStatistics summarises a daily forecast.
type WeatherStatistics struct {
	TotalRainfall    float64 `json:"total_rainfall"`
	AvgTemperature   float64 `json:"avg_temperature"`
	AvgHumidity      float64 `json:"avg_humidity"`
	MaxDailyRainfall float64 `json:"max_daily_rainfall"`
	RainyDays        int     `json:"rainy_days"`
}

// WeatherProvider fetches observations and forecasts for a coordinate.
type WeatherProvider interface {
	// Current returns the latest observation.
	Current(ctx context.Context, lat, lon float64) (CurrentWeather, error)

	// Forecast returns the three-hourly forecast slots, oldest first.
	Forecast(ctx context.Context, lat, lon float64) ([]ForecastSlot, error)
}
