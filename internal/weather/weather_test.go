package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/localtalk/internal/request"
)

func TestParse(t *testing.T) {
	s, err := Parse("test", []byte(`{"place":"Yokosuka","timezone":"Asia/Tokyo","source":"jma","current":{"time":"2025-06-10T07:00:00+09:00","temp":21}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.Place != "Yokosuka" || s.Timezone != "Asia/Tokyo" || s.Source != "jma" || s.CurrentTime != "2025-06-10T07:00:00+09:00" {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestParse_Errors(t *testing.T) {
	for name, in := range map[string]string{
		"empty":      "  \n",
		"not json":   "Traceback (most recent call last)",
		"array":      `[{"place":"x"}]`,
		"json null":  `null`,
		"bare value": `42`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse("cmd", []byte(in))
			var se *SnapshotError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want *SnapshotError", err)
			}
			if se.Source != "cmd" {
				t.Errorf("Source = %q", se.Source)
			}
		})
	}
}

func TestLocalTime(t *testing.T) {
	s := FromMap(map[string]any{
		"timezone": "Asia/Tokyo",
		"current":  map[string]any{"time": "2025-12-24T20:00:00Z"},
	})
	lt, err := s.LocalTime()
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	if lt.Day() != 25 || lt.Hour() != 5 {
		t.Errorf("local = %s, want 2025-12-25 05:00 JST", lt)
	}

	missing := FromMap(map[string]any{})
	if _, err := missing.LocalTime(); err == nil {
		t.Error("expected error for missing current.time")
	}
}

func TestInjectNow(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	orig := FromMap(map[string]any{
		"place":    "Yokosuka",
		"timezone": "UTC",
		"current":  map[string]any{"time": "2020-01-01T00:00:00Z", "temp": 9.5},
	})
	now := time.Date(2025, 6, 10, 7, 30, 45, 123, tokyo)

	got := InjectNow(orig, now)
	if got.Timezone != "Asia/Tokyo" {
		t.Errorf("Timezone = %q", got.Timezone)
	}
	if got.CurrentTime != "2025-06-10T07:30:45+09:00" {
		t.Errorf("CurrentTime = %q", got.CurrentTime)
	}
	if got.Source != "jma" {
		t.Errorf("Source = %q, want default jma", got.Source)
	}
	if got.Raw["current"].(map[string]any)["temp"] != 9.5 {
		t.Error("other current fields should be kept")
	}
	if orig.CurrentTime != "2020-01-01T00:00:00Z" || orig.Raw["current"].(map[string]any)["time"] != "2020-01-01T00:00:00Z" {
		t.Error("original snapshot was mutated")
	}

	custom := InjectNow(FromMap(map[string]any{"source": "open-meteo"}), now)
	if custom.Source != "open-meteo" {
		t.Errorf("Source = %q, want existing kept", custom.Source)
	}
}

func TestSnapshotJSON_NoHTMLEscape(t *testing.T) {
	s := FromMap(map[string]any{"text": "晴れ <時々> 曇り & 雨"})
	out, err := s.JSON()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "<時々> 曇り & 雨") {
		t.Errorf("JSON = %s", out)
	}
}

const forecastBody = `[{
	"publishingOffice": "横浜地方気象台",
	"reportDatetime": "2025-06-10T05:00:00+09:00",
	"targetArea": "神奈川県",
	"timeSeries": [
		{"timeDefines": ["a"], "areas": [{"area": {"name": "東部", "code": "141000"}, "weathers": ["晴れ"]}], "extra": 1},
		{"timeDefines": ["b"], "areas": []},
		{"timeDefines": ["c"], "areas": []},
		{"timeDefines": ["d"], "areas": []}
	]
}, {"publishingOffice": "ignored"}]`

func TestJMAFetcher(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/forecast/140000.json":
			w.Write([]byte(forecastBody))
		case "/overview_forecast/140000.json":
			w.Write([]byte(`{"text":"神奈川県は高気圧に覆われて晴れています。"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewJMAFetcher(request.New(request.Options{Timeout: time.Second}), "", "").WithBaseURL(srv.URL)
	f.now = func() time.Time { return time.Date(2025, 6, 9, 22, 15, 0, 0, time.UTC) }

	s, err := f.Fetch(context.Background(), Place{Name: "Yokosuka", Lat: 35.281, Lon: 139.6722, Timezone: "Asia/Tokyo"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if s.Source != "jma" || s.Place != "Yokosuka" {
		t.Errorf("snapshot = %+v", s)
	}
	want := time.Date(2025, 6, 10, 7, 15, 0, 0, tokyo).Format(time.RFC3339)
	if s.CurrentTime != want {
		t.Errorf("CurrentTime = %q, want %q", s.CurrentTime, want)
	}

	jma := s.Raw["jma"].(map[string]any)
	if jma["office"] != "140000" || jma["area"] != "141000" {
		t.Errorf("codes = %v/%v", jma["office"], jma["area"])
	}
	if !strings.HasPrefix(jma["overview_text"].(string), "神奈川県") {
		t.Errorf("overview_text = %v", jma["overview_text"])
	}
	compact := jma["compact"].(map[string]any)
	if compact["publishingOffice"] != "横浜地方気象台" {
		t.Errorf("publishingOffice = %v", compact["publishingOffice"])
	}
	series := compact["timeSeries"].([]any)
	if len(series) != 3 {
		t.Fatalf("timeSeries = %d, want 3", len(series))
	}
	if _, ok := series[0].(map[string]any)["extra"]; ok {
		t.Error("compact block should only keep timeDefines and areas")
	}
}

func TestJMAFetcher_OverviewOptional(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/forecast/") {
			w.Write([]byte(`[]`))
			return
		}
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewJMAFetcher(request.New(request.Options{Timeout: time.Second}), "130000", "130010").WithBaseURL(srv.URL)
	s, err := f.Fetch(context.Background(), Place{Name: "Tokyo", Timezone: "UTC"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	jma := s.Raw["jma"].(map[string]any)
	if jma["overview_text"] != nil {
		t.Errorf("overview_text = %v, want nil", jma["overview_text"])
	}
	if len(jma["compact"].(map[string]any)) != 0 {
		t.Errorf("compact = %v, want empty", jma["compact"])
	}
}

func TestJMAFetcher_ForecastRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewJMAFetcher(request.New(request.Options{Timeout: time.Second}), "", "").WithBaseURL(srv.URL)
	_, err := f.Fetch(context.Background(), Place{Name: "Yokosuka", Timezone: "UTC"})
	var he *request.HTTPStatusError
	if !errors.As(err, &he) || he.Code != http.StatusInternalServerError {
		t.Errorf("err = %v, want HTTP 500", err)
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "weather.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCommandFetcher(t *testing.T) {
	script := writeScript(t, `echo "{\"source\":\"script\",\"place\":\"$2\",\"timezone\":\"$8\",\"argc\":$#}"`+"\n")

	f := &CommandFetcher{Command: "/bin/sh " + script, Timeout: 5 * time.Second}
	s, err := f.Fetch(context.Background(), Place{Name: "Yokosuka", Lat: 35.281, Lon: 139.6722, Timezone: "Asia/Tokyo"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if s.Source != "script" || s.Place != "Yokosuka" || s.Timezone != "Asia/Tokyo" {
		t.Errorf("snapshot = %+v", s)
	}
	if s.Raw["argc"] != float64(8) {
		t.Errorf("argc = %v, want 8", s.Raw["argc"])
	}
}

func TestCommandFetcher_Failures(t *testing.T) {
	tests := []struct {
		name       string
		script     string
		wantSnapEr bool
	}{
		{"non-zero exit", "echo oops >&2; exit 3\n", false},
		{"empty output", "exit 0\n", true},
		{"invalid json", "echo not-json\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &CommandFetcher{Command: "/bin/sh " + writeScript(t, tt.script)}
			_, err := f.Fetch(context.Background(), Place{Name: "x"})
			if err == nil {
				t.Fatal("expected error")
			}
			var se *SnapshotError
			if errors.As(err, &se) != tt.wantSnapEr {
				t.Errorf("err = %v, SnapshotError = %v, want %v", err, !tt.wantSnapEr, tt.wantSnapEr)
			}
		})
	}
}

func TestCommandFetcher_Timeout(t *testing.T) {
	f := &CommandFetcher{Command: "/bin/sh " + writeScript(t, "sleep 5\n"), Timeout: 50 * time.Millisecond}
	_, err := f.Fetch(context.Background(), Place{Name: "x"})
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("err = %v, want timeout", err)
	}
}

func TestCommandFetcher_Empty(t *testing.T) {
	if _, err := (&CommandFetcher{}).Fetch(context.Background(), Place{}); err == nil {
		t.Error("expected error for empty command")
	}
}
