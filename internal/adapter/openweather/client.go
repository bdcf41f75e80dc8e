package openweather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/floodsense-service/internal/domain"
	"github.com/couchcryptid/floodsense-service/internal/observability"
)

// DefaultBaseURL is the OpenWeatherMap 2.5 API root.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

// Client implements domain.WeatherProvider using the OpenWeatherMap API.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an OpenWeatherMap client. An empty baseURL uses
// DefaultBaseURL; nil metrics are replaced by an unregistered set.
func NewClient(apiKey, baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if metrics == nil {
		metrics = observability.NewUnregisteredMetrics()
	}
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// Current returns the latest observation at lat, lon. Rainfall is the last
// hour of rain, or of snow when no rain is reported.
func (c *Client) Current(ctx context.Context, lat, lon float64) (domain.CurrentWeather, error) {
	var resp currentResponse
	if err := c.get(ctx, "weather", lat, lon, &resp); err != nil {
		return domain.CurrentWeather{}, err
	}

	rain := 0.0
	switch {
	case resp.Rain != nil:
		rain = resp.Rain.OneHour
	case resp.Snow != nil:
		rain = resp.Snow.OneHour
	}

	w := domain.CurrentWeather{
		ObservedAt:  time.Unix(resp.Dt, 0).In(domain.WITA),
		Rainfall:    rain,
		Temperature: resp.Main.Temp,
		Humidity:    resp.Main.Humidity,
	}
	if len(resp.Weather) > 0 {
		w.Description = resp.Weather[0].Description
		w.Icon = resp.Weather[0].Icon
	}
	return w, nil
}

// Forecast returns the five-day, three-hourly forecast at lat, lon.
func (c *Client) Forecast(ctx context.Context, lat, lon float64) ([]domain.ForecastSlot, error) {
	var resp forecastResponse
	if err := c.get(ctx, "forecast", lat, lon, &resp); err != nil {
		return nil, err
	}

	slots := make([]domain.ForecastSlot, 0, len(resp.List))
	for _, e := range resp.List {
		s := domain.ForecastSlot{
			Time:        time.Unix(e.Dt, 0).In(domain.WITA),
			Temperature: e.Main.Temp,
			Humidity:    e.Main.Humidity,
		}
		if e.Rain != nil {
			s.Rainfall = e.Rain.ThreeHours
		}
		if len(e.Weather) > 0 {
			s.Description = e.Weather[0].Description
		}
		slots = append(slots, s)
	}
	return slots, nil
}

func (c *Client) get(ctx context.Context, endpoint string, lat, lon float64, out any) error {
	params := url.Values{
		"lat":   {strconv.FormatFloat(lat, 'f', 6, 64)},
		"lon":   {strconv.FormatFloat(lon, 'f', 6, 64)},
		"appid": {c.apiKey},
		"units": {"metric"},
		"lang":  {"id"},
	}
	fullURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.WeatherAPIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.WeatherRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.WeatherRequests.WithLabelValues(endpoint, "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("openweathermap API error: status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.metrics.WeatherRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	c.metrics.WeatherRequests.WithLabelValues(endpoint, "success").Inc()
	return nil
}

// OpenWeatherMap API response types.

type currentResponse struct {
	Dt      int64       `json:"dt"`
	Main    mainBlock   `json:"main"`
	Weather []condition `json:"weather"`
	Rain    *hourly     `json:"rain,omitempty"`
	Snow    *hourly     `json:"snow,omitempty"`
}

type forecastResponse struct {
	List []forecastEntry `json:"list"`
}

type forecastEntry struct {
	Dt      int64       `json:"dt"`
	Main    mainBlock   `json:"main"`
	Weather []condition `json:"weather"`
	Rain    *hourly     `json:"rain,omitempty"`
}

type mainBlock struct {
	Temp     float64 `json:"temp"`
	Humidity float64 `json:"humidity"`
}

type condition struct {
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type hourly struct {
	OneHour    float64 `json:"1h"`
	ThreeHours float64 `json:"3h"`
}
