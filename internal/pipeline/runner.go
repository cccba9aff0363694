// Package pipeline runs one scheduled post end to end: weather, backend
// generation, post-processing, then the feed files.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/localtalk/internal/backend"
	"github.com/kalambet/localtalk/internal/composer"
	"github.com/kalambet/localtalk/internal/feed"
	"github.com/kalambet/localtalk/internal/greeting"
	"github.com/kalambet/localtalk/internal/postprocess"
	"github.com/kalambet/localtalk/internal/request"
	"github.com/kalambet/localtalk/internal/topic"
	"github.com/kalambet/localtalk/internal/weather"
)

// Backend is the retrieval+generation service. *backend.Client satisfies it.
type Backend interface {
	Status(ctx context.Context) (map[string]any, error)
	Query(ctx context.Context, req backend.QueryRequest) (map[string]any, error)
}

// Config holds the per-run settings.
type Config struct {
	Place        weather.Place
	TopK         int
	MaxChars     int
	OutputStyle  string
	IncludeDebug bool

	FeedPaths    []string
	LatestPaths  []string
	RollingPaths []string
	MaxItems     int
}

// Result describes a finished run.
type Result struct {
	Entry    feed.Entry
	Topic    topic.Topic
	Greeting greeting.Label
	Question string
}

// Runner executes runs. Steps are strictly sequential; the first failure
// aborts the run before any feed file is touched.
type Runner struct {
	weather weather.Fetcher
	backend Backend
	feeds   *feed.Store
	cfg     Config
	logger  *slog.Logger
}

// NewRunner wires a Runner.
func NewRunner(w weather.Fetcher, b Backend, feeds *feed.Store, cfg Config) *Runner {
	if cfg.OutputStyle == "" {
		cfg.OutputStyle = string(composer.StyleSocialPost)
	}
	if cfg.Place.Timezone == "" {
		cfg.Place.Timezone = weather.DefaultTimezone
	}
	return &Runner{weather: w, backend: b, feeds: feeds, cfg: cfg, logger: slog.Default()}
}

// Run generates a post for now and persists it to every configured feed.
func (r *Runner) Run(ctx context.Context, now time.Time) (Result, error) {
	res, err := r.Generate(ctx, now)
	if err != nil {
		return Result{}, err
	}
	if err := r.Persist(res.Entry); err != nil {
		return Result{}, err
	}
	return res, nil
}

// Generate performs every step except persistence. Failures are logged with
// whether they are transient upstream errors that a later run may not hit.
func (r *Runner) Generate(ctx context.Context, now time.Time) (Result, error) {
	res, err := r.generate(ctx, now)
	if err != nil {
		r.logger.Error("post generation failed", "error", err, "transient", request.IsRetryable(err))
		return Result{}, err
	}
	return res, nil
}

func (r *Runner) generate(ctx context.Context, now time.Time) (Result, error) {
	loc, err := time.LoadLocation(r.cfg.Place.Timezone)
	if err != nil {
		return Result{}, fmt.Errorf("loading timezone %q: %w", r.cfg.Place.Timezone, err)
	}
	local := now.In(loc).Truncate(time.Second)

	r.logger.Info("fetching weather snapshot", "place", r.cfg.Place.Name, "tz", r.cfg.Place.Timezone)
	snap, err := r.weather.Fetch(ctx, r.cfg.Place)
	if err != nil {
		return Result{}, fmt.Errorf("fetching weather: %w", err)
	}
	snap = weather.InjectNow(snap, local)
	live, err := snap.JSON()
	if err != nil {
		return Result{}, fmt.Errorf("encoding weather snapshot: %w", err)
	}

	if _, err := r.backend.Status(ctx); err != nil {
		return Result{}, fmt.Errorf("checking backend status: %w", err)
	}

	tp := topic.Select(local)
	gr := greeting.Resolve(local)
	question := composer.BuildQuestion(composer.QuestionInput{
		Place:    r.cfg.Place.Name,
		Now:      local,
		Greeting: gr,
		Topic:    tp,
		MaxChars: r.cfg.MaxChars,
	})
	r.logger.Info("querying backend", "topic_family", tp.Family, "topic_mode", tp.Mode, "greeting", gr)
	r.logger.Debug("question", "text", question)

	resp, err := r.backend.Query(ctx, backend.QueryRequest{
		Question:     question,
		TopK:         r.cfg.TopK,
		MaxChars:     r.cfg.MaxChars,
		OutputStyle:  r.cfg.OutputStyle,
		ExtraContext: live,
		IncludeDebug: r.cfg.IncludeDebug,
	})
	if err != nil {
		return Result{}, fmt.Errorf("querying backend: %w", err)
	}
	answer, err := backend.ExtractAnswer(resp)
	if err != nil {
		return Result{}, err
	}

	entry := feed.NewEntry(local, r.cfg.Place.Name, postprocess.Finalize(answer, r.cfg.MaxChars))
	if r.cfg.IncludeDebug {
		entry.Detail = backend.ExtractDetail(resp)
	}
	return Result{Entry: entry, Topic: tp, Greeting: gr, Question: question}, nil
}

// Persist writes entry to the log feed, the rolling feed when configured,
// then the latest pointer.
func (r *Runner) Persist(entry feed.Entry) error {
	if len(r.cfg.FeedPaths) > 0 {
		if _, err := r.feeds.Append(r.cfg.FeedPaths, entry); err != nil {
			return fmt.Errorf("appending feed: %w", err)
		}
	}
	if len(r.cfg.RollingPaths) > 0 {
		if _, err := r.feeds.UpsertByDate(r.cfg.RollingPaths, entry, r.cfg.MaxItems); err != nil {
			return fmt.Errorf("updating rolling feed: %w", err)
		}
	}
	if len(r.cfg.LatestPaths) > 0 {
		if err := r.feeds.WriteLatest(r.cfg.LatestPaths, entry); err != nil {
			return fmt.Errorf("writing latest: %w", err)
		}
	}
	r.logger.Info("post persisted", "id", entry.ID,
		"feeds", len(r.cfg.FeedPaths), "rolling", len(r.cfg.RollingPaths), "latest", len(r.cfg.LatestPaths))
	return nil
}
