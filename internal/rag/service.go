// Package rag answers questions from the local document store: retrieve,
// diversify, compose, generate, finalize.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/localtalk/internal/composer"
	"github.com/kalambet/localtalk/internal/docs"
	"github.com/kalambet/localtalk/internal/postprocess"
	"github.com/kalambet/localtalk/internal/retrieval"
	"github.com/kalambet/localtalk/internal/storage"
	"github.com/kalambet/localtalk/internal/weather"
)

const (
	DefaultTopK     = 6
	MaxTopK         = 20
	DefaultMaxChars = 512
	MinMaxChars     = 50
	MaxMaxChars     = 1024

	// candidatesPerSlot widens the search for social posts so diversification
	// still has top_k distinct sources to pick from.
	candidatesPerSlot = 4
	statusFileLimit   = 50
)

// ErrReindexDisabled is returned by Reindex when configuration forbids it.
var ErrReindexDisabled = errors.New("reindex is disabled by configuration")

// ErrNoDocuments is returned by Ingest when every document is blank.
var ErrNoDocuments = errors.New("no documents provided")

// ValidationError reports a request the service refuses to run.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// RetrievalError wraps a failure of the similarity search.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string { return "rag query failed: " + e.Err.Error() }
func (e *RetrievalError) Unwrap() error { return e.Err }

// Searcher runs similarity search. *retrieval.Retriever satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]retrieval.RetrievedChunk, error)
	Count(ctx context.Context) (int, error)
}

// Indexer rebuilds and extends the store. *docs.Indexer satisfies it.
type Indexer interface {
	Root() string
	Reindex(ctx context.Context) (docs.Stats, error)
	IngestText(ctx context.Context, text string) (int, error)
}

// GenerationLog records answered queries. *storage.Store satisfies it.
type GenerationLog interface {
	SaveGeneration(g storage.Generation) error
}

// Config holds the service settings that come from configuration.
type Config struct {
	BotName        string
	Hashtags       string
	ReindexEnabled bool

	// Weather and Place serve requests that ask for live weather without
	// sending it. Weather may be nil.
	Weather weather.Fetcher
	Place   weather.Place
}

// Service is the retrieval and generation backend behind /rag/*.
type Service struct {
	search   Searcher
	gen      Generator
	index    Indexer
	log      GenerationLog
	composer *composer.Composer
	cfg      Config
	now      func() time.Time
}

// NewService creates a Service. log may be nil to skip the generation log.
func NewService(search Searcher, gen Generator, index Indexer, log GenerationLog, cfg Config) *Service {
	return &Service{
		search:   search,
		gen:      gen,
		index:    index,
		log:      log,
		composer: composer.New(cfg.BotName, cfg.Hashtags),
		cfg:      cfg,
		now:      time.Now,
	}
}

// QueryRequest is the body of POST /rag/query.
type QueryRequest struct {
	Question     string `json:"question"`
	TopK         *int   `json:"top_k,omitempty"`
	MaxChars     *int   `json:"max_chars,omitempty"`
	OutputStyle  string `json:"output_style,omitempty"`
	ExtraContext string `json:"extra_context,omitempty"`
	// Context and UserContext are older names for ExtraContext.
	Context        string `json:"context,omitempty"`
	UserContext    string `json:"user_context,omitempty"`
	UseLiveWeather bool   `json:"use_live_weather,omitempty"`
	IncludeDebug   bool   `json:"include_debug,omitempty"`
}

// Chunk is a retrieved passage as reported back to clients.
type Chunk struct {
	ID        string         `json:"id,omitempty"`
	Text      string         `json:"text"`
	Distance  float64        `json:"distance"`
	SourceKey string         `json:"source_key,omitempty"`
	Metadata  map[string]any `json:"metadata"`
}

// QueryResponse carries the answer under both answer and text so clients
// reading either key work.
type QueryResponse struct {
	Answer      string   `json:"answer"`
	Text        string   `json:"text"`
	Context     []string `json:"context,omitempty"`
	Chunks      []Chunk  `json:"chunks,omitempty"`
	ChosenChunk *Chunk   `json:"chosen_chunk,omitempty"`
}

type queryParams struct {
	question string
	topK     int
	maxChars int
	style    composer.Style
	extra    string
}

func (req QueryRequest) validate() (queryParams, error) {
	p := queryParams{
		question: strings.TrimSpace(req.Question),
		topK:     DefaultTopK,
		maxChars: DefaultMaxChars,
	}
	if p.question == "" {
		return p, &ValidationError{Msg: "question is required"}
	}
	if req.TopK != nil {
		p.topK = min(max(*req.TopK, 1), MaxTopK)
	}
	if req.MaxChars != nil {
		p.maxChars = min(max(*req.MaxChars, MinMaxChars), MaxMaxChars)
	}
	style, err := composer.ParseStyle(req.OutputStyle)
	if err != nil {
		return p, &ValidationError{Msg: err.Error()}
	}
	p.style = style
	for _, c := range []string{req.ExtraContext, req.Context, req.UserContext} {
		if c = strings.TrimSpace(c); c != "" {
			p.extra = c
			break
		}
	}
	return p, nil
}

// Query answers a question from the store.
func (s *Service) Query(ctx context.Context, req QueryRequest) (QueryResponse, error) {
	p, err := req.validate()
	if err != nil {
		return QueryResponse{}, err
	}

	rawK := p.topK
	if p.style == composer.StyleSocialPost {
		rawK = p.topK * candidatesPerSlot
	}
	chunks, err := s.search.Search(ctx, p.question, rawK)
	if err != nil {
		return QueryResponse{}, &RetrievalError{Err: err}
	}
	if p.style == composer.StyleSocialPost {
		chunks = retrieval.Diversify(chunks, p.topK)
	}

	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if c.Text != "" {
			texts = append(texts, c.Text)
		}
	}

	if p.extra == "" && req.UseLiveWeather {
		p.extra = s.liveWeather(ctx)
	}

	system, user := s.composer.Compose(composer.Input{
		Question: p.question,
		Context:  texts,
		Weather:  p.extra,
		Style:    p.style,
		MaxChars: p.maxChars,
		Place:    s.cfg.Place.Name,
	})
	slog.Debug("rag prompts", "system", system, "user", user)

	raw, err := s.gen.Generate(ctx, system, user)
	if err != nil {
		return QueryResponse{}, fmt.Errorf("generating answer: %w", err)
	}
	answer := postprocess.Finalize(raw, p.maxChars)
	slog.Info("rag query answered", "style", p.style, "chunks", len(chunks), "chars", len([]rune(answer)))

	s.record(p, answer, chunks)

	resp := QueryResponse{Answer: answer, Text: answer}
	if len(chunks) > 0 {
		chosen := toChunk(chunks[0])
		resp.ChosenChunk = &chosen
	}
	if req.IncludeDebug {
		resp.Context = texts
		n := min(len(chunks), p.topK)
		resp.Chunks = make([]Chunk, n)
		for i := range n {
			resp.Chunks[i] = toChunk(chunks[i])
		}
	}
	return resp, nil
}

func (s *Service) liveWeather(ctx context.Context) string {
	if s.cfg.Weather == nil {
		return ""
	}
	snap, err := s.cfg.Weather.Fetch(ctx, s.cfg.Place)
	if err != nil {
		slog.Warn("live weather unavailable", "error", err)
		return ""
	}
	loc, err := snap.Location()
	if err != nil {
		loc = time.UTC
	}
	out, err := weather.InjectNow(snap, s.now().In(loc)).JSON()
	if err != nil {
		slog.Warn("encoding live weather", "error", err)
		return ""
	}
	return out
}

func (s *Service) record(p queryParams, answer string, chunks []retrieval.RetrievedChunk) {
	if s.log == nil {
		return
	}
	keys := make([]string, 0, len(chunks))
	for _, c := range chunks {
		keys = append(keys, retrieval.DedupKey(c))
	}
	g := storage.Generation{
		ID:          uuid.New().String(),
		CreatedAt:   s.now().UTC(),
		Question:    p.question,
		OutputStyle: string(p.style),
		Model:       s.gen.Model(),
		Answer:      answer,
		SourceKeys:  keys,
	}
	if err := s.log.SaveGeneration(g); err != nil {
		slog.Warn("recording generation", "error", err)
	}
}

func toChunk(c retrieval.RetrievedChunk) Chunk {
	md := c.Metadata
	if md == nil {
		md = map[string]any{}
	}
	return Chunk{ID: c.ID, Text: c.Text, Distance: c.Distance, SourceKey: c.SourceKey, Metadata: md}
}

// StatusResponse is the body of GET /rag/status. JSONFiles counts every
// indexable document file, not only JSON.
type StatusResponse struct {
	DocsDir       string   `json:"docs_dir"`
	JSONFiles     int      `json:"json_files"`
	ChunksInStore int      `json:"chunks_in_store"`
	Files         []string `json:"files"`
}

// Status reports the docs directory and store size.
func (s *Service) Status(ctx context.Context) (StatusResponse, error) {
	root := s.index.Root()
	files, err := docs.ListFiles(root)
	if err != nil {
		// A missing docs dir is reported as empty.
		slog.Warn("listing docs", "dir", root, "error", err)
		files = nil
	}
	n, err := s.search.Count(ctx)
	if err != nil {
		return StatusResponse{}, fmt.Errorf("counting chunks: %w", err)
	}
	shown := files[:min(len(files), statusFileLimit)]
	if shown == nil {
		shown = []string{}
	}
	return StatusResponse{DocsDir: root, JSONFiles: len(files), ChunksInStore: n, Files: shown}, nil
}

// Ingest indexes raw texts and returns how many succeeded. Blank texts are
// ignored; when every remaining text fails the last error is returned.
func (s *Service) Ingest(ctx context.Context, texts []string) (int, error) {
	var (
		ok      int
		lastErr error
		seen    bool
	)
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		seen = true
		if _, err := s.index.IngestText(ctx, t); err != nil {
			slog.Error("ingesting document", "error", err)
			lastErr = err
			continue
		}
		ok++
	}
	if !seen {
		return 0, ErrNoDocuments
	}
	if ok == 0 {
		return 0, fmt.Errorf("document ingestion failed: %w", lastErr)
	}
	return ok, nil
}

// Reindex clears and rebuilds the store from the docs directory.
func (s *Service) Reindex(ctx context.Context) (docs.Stats, error) {
	if !s.cfg.ReindexEnabled {
		return docs.Stats{}, ErrReindexDisabled
	}
	return s.index.Reindex(ctx)
}

// Recall returns up to topK diversified chunks for query.
func (s *Service) Recall(ctx context.Context, query string, topK int) ([]Chunk, error) {
	topK = min(max(topK, 1), MaxTopK)
	chunks, err := s.search.Search(ctx, query, topK*candidatesPerSlot)
	if err != nil {
		return nil, &RetrievalError{Err: err}
	}
	chunks = retrieval.Diversify(chunks, topK)
	out := make([]Chunk, len(chunks))
	for i, c := range chunks {
		out[i] = toChunk(c)
	}
	return out, nil
}
