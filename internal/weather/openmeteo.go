package weather

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

const (
	defaultBaseURL   = "https://api.open-meteo.com/v1/forecast"
	trendLookbackHrs = 3

	hourlyFields = "temperature_2m,pressure_msl,wind_speed_10m,wind_direction_10m,wind_gusts_10m"
	dailyFields  = "temperature_2m_min,temperature_2m_max,pressure_msl_min,pressure_msl_max,wind_speed_10m_max"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OpenMeteoConfig describes how to reach the forecast API.
type OpenMeteoConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Clock      func() time.Time
}

// OpenMeteoProvider implements Provider against the Open-Meteo forecast API.
type OpenMeteoProvider struct {
	baseURL    string
	httpClient *http.Client
	clock      func() time.Time
}

// NewOpenMeteoProvider constructs a provider with the supplied configuration.
func NewOpenMeteoProvider(cfg OpenMeteoConfig) *OpenMeteoProvider {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &OpenMeteoProvider{baseURL: baseURL, httpClient: httpClient, clock: clock}
}

type forecastResponse struct {
	Hourly *hourlyBlock `json:"hourly"`
	Daily  *dailyBlock  `json:"daily"`
}

type hourlyBlock struct {
	Time          []string  `json:"time"`
	Temperature   []float64 `json:"temperature_2m"`
	Pressure      []float64 `json:"pressure_msl"`
	WindSpeed     []float64 `json:"wind_speed_10m"`
	WindDirection []float64 `json:"wind_direction_10m"`
	WindGusts     []float64 `json:"wind_gusts_10m"`
}

type dailyBlock struct {
	TempMin     []float64  `json:"temperature_2m_min"`
	TempMax     []float64  `json:"temperature_2m_max"`
	PressureMin []*float64 `json:"pressure_msl_min"`
	PressureMax []*float64 `json:"pressure_msl_max"`
	WindMax     []*float64 `json:"wind_speed_10m_max"`
}

// Fetch retrieves the day summary and a closest-hour snapshot for the
// given coordinate.
func (p *OpenMeteoProvider) Fetch(ctx context.Context, lat, lon float64) (Report, error) {
	requestURL, err := p.buildURL(lat, lon)
	if err != nil {
		return Report{}, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return Report{}, err
	}

	response, err := p.httpClient.Do(request)
	if err != nil {
		return Report{}, fmt.Errorf("weather: fetch failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return Report{}, fmt.Errorf("%w: status %d", ErrInvalidResponse, response.StatusCode)
	}

	var payload forecastResponse
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	return buildReport(payload, p.clock())
}

func (p *OpenMeteoProvider) buildURL(lat, lon float64) (string, error) {
	parsed, err := url.Parse(p.baseURL)
	if err != nil {
		return "", err
	}
	query := parsed.Query()
	query.Set("latitude", fmt.Sprintf("%.4f", lat))
	query.Set("longitude", fmt.Sprintf("%.4f", lon))
	query.Set("hourly", hourlyFields)
	query.Set("daily", dailyFields)
	query.Set("current_weather", "true")
	query.Set("timezone", "auto")
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func buildReport(payload forecastResponse, now time.Time) (Report, error) {
	if payload.Hourly == nil || payload.Daily == nil {
		return Report{}, fmt.Errorf("%w: missing hourly or daily block", ErrInvalidResponse)
	}
	hourly := payload.Hourly
	daily := payload.Daily

	count := len(hourly.Time)
	if count == 0 ||
		len(hourly.Temperature) != count ||
		len(hourly.Pressure) != count ||
		len(hourly.WindSpeed) != count ||
		len(hourly.WindDirection) != count ||
		len(hourly.WindGusts) != count {
		return Report{}, fmt.Errorf("%w: inconsistent hourly series", ErrInvalidResponse)
	}
	if len(daily.TempMin) == 0 || len(daily.TempMax) == 0 {
		return Report{}, fmt.Errorf("%w: missing daily temperature bounds", ErrInvalidResponse)
	}

	index, timestamp, err := closestHourIndex(hourly.Time, now)
	if err != nil {
		return Report{}, err
	}

	snapshot := Snapshot{
		Temp:          hourly.Temperature[index],
		Pressure:      hourly.Pressure[index],
		WindSpeed:     hourly.WindSpeed[index],
		WindDirection: hourly.WindDirection[index],
		WindGust:      hourly.WindGusts[index],
		Timestamp:     timestamp,
	}
	if index >= trendLookbackHrs {
		snapshot.PressureTrend3h = snapshot.Pressure - hourly.Pressure[index-trendLookbackHrs]
		snapshot.WindSpeedTrend3h = snapshot.WindSpeed - hourly.WindSpeed[index-trendLookbackHrs]
	}

	day := DaySummary{
		TempMin: daily.TempMin[0],
		TempMax: daily.TempMax[0],
	}
	if len(daily.PressureMin) > 0 {
		day.PressureMin = daily.PressureMin[0]
	}
	if len(daily.PressureMax) > 0 {
		day.PressureMax = daily.PressureMax[0]
	}
	if len(daily.WindMax) > 0 {
		day.WindMax = daily.WindMax[0]
	}

	return Report{Day: day, Snapshot: snapshot}, nil
}

func closestHourIndex(times []string, now time.Time) (int, time.Time, error) {
	bestIndex := -1
	var bestTime time.Time
	var bestDiff time.Duration

	for i, raw := range times {
		parsed, err := parseHourlyTime(raw)
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("%w: bad hourly time %q", ErrInvalidResponse, raw)
		}
		diff := now.Sub(parsed)
		if diff < 0 {
			diff = -diff
		}
		if bestIndex == -1 || diff < bestDiff {
			bestIndex = i
			bestTime = parsed
			bestDiff = diff
		}
	}
	if bestIndex == -1 {
		return 0, time.Time{}, fmt.Errorf("%w: empty hourly series", ErrInvalidResponse)
	}
	return bestIndex, bestTime, nil
}

// Open-Meteo emits local times without a zone offset.
func parseHourlyTime(raw string) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed, nil
	}
	return time.Parse("2006-01-02T15:04", raw)
}
