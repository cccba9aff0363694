package weather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/localtalk/internal/request"
)

const (
	DefaultJMABaseURL = "https://www.jma.go.jp/bosai/forecast/data"
	DefaultJMAOffice  = "140000" // Kanagawa
	DefaultJMAArea    = "141000" // Eastern Kanagawa

	compactTimeSeries = 3
)

// Fetcher produces a snapshot for a place.
type Fetcher interface {
	Fetch(ctx context.Context, p Place) (Snapshot, error)
}

// JMAFetcher builds snapshots from the Japan Meteorological Agency forecast
// endpoints. The forecast is required; the overview text is best effort.
type JMAFetcher struct {
	exec    *request.Executor
	baseURL string
	office  string
	area    string
	now     func() time.Time
}

// NewJMAFetcher creates a fetcher for the given office and area codes. Empty
// codes use the Kanagawa defaults.
func NewJMAFetcher(exec *request.Executor, office, area string) *JMAFetcher {
	if office == "" {
		office = DefaultJMAOffice
	}
	if area == "" {
		area = DefaultJMAArea
	}
	return &JMAFetcher{exec: exec, baseURL: DefaultJMABaseURL, office: office, area: area, now: time.Now}
}

// WithBaseURL points the fetcher at a different host (for testing).
func (f *JMAFetcher) WithBaseURL(u string) *JMAFetcher {
	f.baseURL = strings.TrimRight(u, "/")
	return f
}

func (f *JMAFetcher) forecastURL() string {
	return fmt.Sprintf("%s/forecast/%s.json", f.baseURL, f.office)
}

func (f *JMAFetcher) overviewURL() string {
	return fmt.Sprintf("%s/overview_forecast/%s.json", f.baseURL, f.office)
}

// Fetch downloads the forecast and returns a compact snapshot.
func (f *JMAFetcher) Fetch(ctx context.Context, p Place) (Snapshot, error) {
	tz := p.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading timezone %q: %w", tz, err)
	}

	forecast, err := f.exec.GetValue(ctx, f.forecastURL())
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetching JMA forecast: %w", err)
	}

	var overviewText any
	if ov, err := f.exec.GetJSON(ctx, f.overviewURL()); err != nil {
		slog.Warn("JMA overview unavailable", "office", f.office, "error", err)
	} else if text, ok := ov["text"].(string); ok {
		overviewText = text
	}

	now := f.now().In(loc).Truncate(time.Second)
	raw := map[string]any{
		"source":   "jma",
		"place":    p.Name,
		"lat":      p.Lat,
		"lon":      p.Lon,
		"timezone": tz,
		"current":  map[string]any{"time": now.Format(time.RFC3339)},
		"jma": map[string]any{
			"office":        f.office,
			"area":          f.area,
			"forecast_url":  f.forecastURL(),
			"overview_url":  f.overviewURL(),
			"overview_text": overviewText,
			"compact":       compactForecast(forecast),
		},
	}
	return FromMap(raw), nil
}

// compactForecast keeps the publishing metadata and the first few time
// series blocks of the first forecast report.
func compactForecast(forecast any) map[string]any {
	out := map[string]any{}
	reports, ok := forecast.([]any)
	if !ok || len(reports) == 0 {
		return out
	}
	first, ok := reports[0].(map[string]any)
	if !ok {
		return out
	}

	out["publishingOffice"] = first["publishingOffice"]
	out["reportDatetime"] = first["reportDatetime"]
	out["targetArea"] = first["targetArea"]

	series, ok := first["timeSeries"].([]any)
	if !ok || len(series) == 0 {
		return out
	}
	blocks := make([]any, 0, compactTimeSeries)
	for _, s := range series[:min(compactTimeSeries, len(series))] {
		block, ok := s.(map[string]any)
		if !ok {
			continue
		}
		blocks = append(blocks, map[string]any{
			"timeDefines": block["timeDefines"],
			"areas":       block["areas"],
		})
	}
	out["timeSeries"] = blocks
	return out
}
