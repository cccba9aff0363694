package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/localtalk/internal/composer"
	"github.com/kalambet/localtalk/internal/config"
	"github.com/kalambet/localtalk/internal/feed"
	"github.com/kalambet/localtalk/internal/pipeline"
	"github.com/kalambet/localtalk/internal/request"
)

var (
	genDryRun       bool
	genTopK         int
	genMaxChars     int
	genOutputStyle  string
	genIncludeDebug bool
	genAPIBase      string
	genPlace        string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate one post and write it to the feed files",
	Long: `Fetch the weather, ask the retrieval service for a post, and append the
result to every configured feed. With --dry-run nothing is written; the entry
is printed on stdout either way.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyGenerateFlags(cmd, &cfg)
		if _, err := composer.ParseStyle(cfg.Generation.OutputStyle); err != nil {
			return err
		}

		runner := pipeline.NewRunner(newWeatherFetcher(cfg), newBackendClient(cfg), feed.NewStore(), pipelineConfig(cfg))
		now := time.Now().In(placeLocation(cfg))

		run := runner.Run
		if genDryRun {
			run = runner.Generate
		}
		res, err := run(cmd.Context(), now)
		if err != nil {
			reportRunError(err)
			return err
		}

		if genDryRun {
			printStep("dry run, feeds untouched (%s)", describe(res))
		} else {
			printSuccess("posted %s", res.Entry.ID)
		}
		return printJSON(res.Entry)
	},
}

func init() {
	f := generateCmd.Flags()
	f.BoolVar(&genDryRun, "dry-run", false, "generate without writing feed files")
	f.IntVar(&genTopK, "top-k", 0, "number of passages to retrieve")
	f.IntVar(&genMaxChars, "max-chars", 0, "character budget for the post")
	f.StringVar(&genOutputStyle, "output-style", "", "social_post or default")
	f.BoolVar(&genIncludeDebug, "include-debug", false, "ask the backend for retrieval debug output")
	f.StringVar(&genAPIBase, "api-base", "", "base URL of the retrieval service")
	f.StringVar(&genPlace, "place", "", "place name used in the post and the feed")
}

// applyGenerateFlags overlays flags the user actually set onto c.
func applyGenerateFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	if f.Changed("top-k") {
		c.Generation.TopK = genTopK
	}
	if f.Changed("max-chars") {
		c.Generation.MaxChars = genMaxChars
	}
	if f.Changed("output-style") {
		c.Generation.OutputStyle = genOutputStyle
	}
	if f.Changed("include-debug") {
		c.Generation.IncludeDebug = genIncludeDebug
	}
	if f.Changed("api-base") {
		c.API.BaseURL = genAPIBase
	}
	if f.Changed("place") {
		c.Place.Name = genPlace
	}
}

func pipelineConfig(c config.Config) pipeline.Config {
	return pipeline.Config{
		Place:        placeFrom(c),
		TopK:         c.Generation.TopK,
		MaxChars:     c.Generation.MaxChars,
		OutputStyle:  c.Generation.OutputStyle,
		IncludeDebug: c.Generation.IncludeDebug,
		FeedPaths:    c.Feed.Paths,
		LatestPaths:  c.Feed.LatestPaths,
		RollingPaths: c.Feed.RollingPaths,
		MaxItems:     c.Feed.MaxItems,
	}
}

// reportRunError tells the operator whether rerunning is worthwhile.
func reportRunError(err error) {
	if request.IsRetryable(err) {
		printWarning("upstream request failed after retries; no feed was written, the next run may succeed")
		return
	}
	printError("run failed; no feed was written")
}

func describe(r pipeline.Result) string {
	return fmt.Sprintf("%s/%s, %s greeting", r.Topic.Family, r.Topic.Mode, r.Greeting)
}
