package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kalambet/localtalk/internal/backend"
	"github.com/kalambet/localtalk/internal/config"
	"github.com/kalambet/localtalk/internal/request"
	"github.com/kalambet/localtalk/internal/weather"
)

// Factories are package variables so tests can point commands at httptest
// servers.
var (
	newExecutor = func(c config.Config) *request.Executor {
		return request.New(request.Options{
			Timeout:    c.HTTPTimeout(),
			MaxRetries: c.HTTP.Retries,
			RetryDelay: c.RetryDelay(),
			UserAgent:  "localtalk/" + version,
		})
	}

	newBackendClient = func(c config.Config) *backend.Client {
		return backend.NewClient(newExecutor(c), c.API.BaseURL)
	}

	newWeatherFetcher = func(c config.Config) weather.Fetcher {
		if c.Weather.Command != "" {
			return &weather.CommandFetcher{Command: c.Weather.Command, Timeout: c.WeatherTimeout()}
		}
		return weather.NewJMAFetcher(newExecutor(c), c.Weather.JMAOffice, c.Weather.JMAArea)
	}

	stdout io.Writer = os.Stdout
)

func placeFrom(c config.Config) weather.Place {
	return weather.Place{
		Name:     c.Place.Name,
		Lat:      c.Place.Lat,
		Lon:      c.Place.Lon,
		Timezone: c.Place.Timezone,
	}
}

func placeLocation(c config.Config) *time.Location {
	loc, err := time.LoadLocation(c.Place.Timezone)
	if err != nil {
		// validate already rejected bad zones; this covers hand-built configs.
		return time.UTC
	}
	return loc
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
