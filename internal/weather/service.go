// Package weather assembles the regency weather panel: current conditions,
// a per-day forecast and summary statistics.
package weather

import (
	"context"
	"log/slog"
	"sort"

	"github.com/couchcryptid/floodsense-service/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/montanaflynn/stats"
)

// Forecast slots whose local hour falls in this range describe the day.
const (
	middayStart = 10
	middayEnd   = 14
)

// Report is everything the weather panel shows for one regency.
type Report struct {
	Regency    domain.Regency           `json:"regency"`
	Current    domain.CurrentWeather    `json:"current"`
	Daily      []domain.DailyWeather    `json:"daily"`
	Statistics domain.WeatherStatistics `json:"statistics"`
}

// Service looks up weather for regencies. A nil provider serves defaults.
type Service struct {
	provider domain.WeatherProvider
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewService creates a weather service.
func NewService(provider domain.WeatherProvider, clock clockwork.Clock, logger *slog.Logger) *Service {
	return &Service{provider: provider, clock: clock, logger: logger}
}

// Enabled reports whether a provider is configured.
func (s *Service) Enabled() bool {
	return s.provider != nil
}

// Current returns current conditions for the named regency. Provider failures
// yield the default observation with Fallback set; only an unknown regency
// is an error.
func (s *Service) Current(ctx context.Context, name string) (domain.CurrentWeather, error) {
	r, err := domain.LookupRegency(name)
	if err != nil {
		return domain.CurrentWeather{}, err
	}
	return s.current(ctx, r), nil
}

func (s *Service) current(ctx context.Context, r domain.Regency) domain.CurrentWeather {
	if s.provider == nil {
		return s.defaultCurrent(r)
	}
	w, err := s.provider.Current(ctx, r.Lat, r.Lon)
	if err != nil {
		s.logger.Warn("current weather unavailable, using defaults", "regency", r.Name, "error", err)
		return s.defaultCurrent(r)
	}
	w.Regency = r.Name
	w.Temperature = round1(w.Temperature)
	if w.ObservedAt.IsZero() {
		w.ObservedAt = s.clock.Now().In(domain.WITA)
	}
	return w
}

func (s *Service) defaultCurrent(r domain.Regency) domain.CurrentWeather {
	return domain.CurrentWeather{
		Regency:     r.Name,
		ObservedAt:  s.clock.Now().In(domain.WITA),
		Temperature: domain.DefaultTemperature,
		Humidity:    domain.DefaultHumidity,
		Description: domain.DefaultDescription,
		Fallback:    true,
	}
}

// Daily returns the forecast aggregated per local day. Provider failures
// yield an empty forecast.
func (s *Service) Daily(ctx context.Context, name string) ([]domain.DailyWeather, error) {
	r, err := domain.LookupRegency(name)
	if err != nil {
		return nil, err
	}
	return s.daily(ctx, r), nil
}

func (s *Service) daily(ctx context.Context, r domain.Regency) []domain.DailyWeather {
	if s.provider == nil {
		return []domain.DailyWeather{}
	}
	slots, err := s.provider.Forecast(ctx, r.Lat, r.Lon)
	if err != nil {
		s.logger.Warn("forecast unavailable", "regency", r.Name, "error", err)
		return []domain.DailyWeather{}
	}
	return Aggregate(r.Name, slots)
}

// Dashboard returns the full weather panel for the named regency.
func (s *Service) Dashboard(ctx context.Context, name string) (Report, error) {
	r, err := domain.LookupRegency(name)
	if err != nil {
		return Report{}, err
	}
	daily := s.daily(ctx, r)
	return Report{
		Regency:    r,
		Current:    s.current(ctx, r),
		Daily:      daily,
		Statistics: Statistics(daily),
	}, nil
}

type dayBucket struct {
	rain   float64
	temps  stats.Float64Data
	humids stats.Float64Data
	descs  []string
}

// Aggregate groups three-hourly slots by WITA calendar day. Rainfall is
// summed; temperature and humidity are averaged; the description is taken
// from the first midday slot. Days are returned oldest first.
func Aggregate(regency string, slots []domain.ForecastSlot) []domain.DailyWeather {
	buckets := make(map[string]*dayBucket)
	for _, slot := range slots {
		local := slot.Time.In(domain.WITA)
		date := local.Format("2006-01-02")
		b, ok := buckets[date]
		if !ok {
			b = &dayBucket{}
			buckets[date] = b
		}
		b.rain += slot.Rainfall
		b.temps = append(b.temps, slot.Temperature)
		b.humids = append(b.humids, slot.Humidity)
		if h := local.Hour(); h >= middayStart && h <= middayEnd && slot.Description != "" {
			b.descs = append(b.descs, slot.Description)
		}
	}

	days := make([]domain.DailyWeather, 0, len(buckets))
	for date, b := range buckets {
		day := domain.DailyWeather{
			Regency:     regency,
			Date:        date,
			Rainfall:    round1(b.rain),
			Temperature: meanOr(b.temps, domain.DefaultTemperature),
			Humidity:    meanOr(b.humids, domain.DefaultHumidity),
			Description: domain.DefaultDescription,
		}
		if len(b.descs) > 0 {
			day.Description = b.descs[0]
		}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days
}

// Statistics summarises a daily forecast. An empty forecast yields zeros.
func Statistics(days []domain.DailyWeather) domain.WeatherStatistics {
	if len(days) == 0 {
		return domain.WeatherStatistics{}
	}
	rain := make(stats.Float64Data, len(days))
	temps := make(stats.Float64Data, len(days))
	humids := make(stats.Float64Data, len(days))
	var st domain.WeatherStatistics
	for i, d := range days {
		rain[i] = d.Rainfall
		temps[i] = d.Temperature
		humids[i] = d.Humidity
		if d.Rainfall > 0 {
			st.RainyDays++
		}
	}

	total, _ := rain.Sum()
	maxRain, _ := rain.Max()
	st.TotalRainfall = round1(total)
	st.MaxDailyRainfall = round1(maxRain)
	st.AvgTemperature = meanOr(temps, 0)
	st.AvgHumidity = meanOr(humids, 0)
	return st
}

func meanOr(data stats.Float64Data, fallback float64) float64 {
	m, err := data.Mean()
	if err != nil {
		return fallback
	}
	return round1(m)
}

func round1(v float64) float64 {
	r, err := stats.Round(v, 1)
	if err != nil {
		return v
	}
	return r
}
