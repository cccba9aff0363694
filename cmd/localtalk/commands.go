package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/localtalk/internal/config"
	"github.com/kalambet/localtalk/internal/feed"
	"github.com/kalambet/localtalk/internal/weather"
)

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the retrieval service status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newBackendClient(cfg)
		st, err := client.Status(cmd.Context())
		if err != nil {
			printError("backend at %s is not reachable", client.BaseURL())
			return err
		}
		printStatus("Backend", "%s", client.BaseURL())
		return printJSON(st)
	},
}

// --- weather ---

var weatherCmd = &cobra.Command{
	Use:   "weather",
	Short: "Fetch and print the current weather snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := newWeatherFetcher(cfg).Fetch(cmd.Context(), placeFrom(cfg))
		if err != nil {
			return err
		}
		loc, err := snap.Location()
		if err != nil {
			return err
		}
		snap = weather.InjectNow(snap, time.Now().In(loc))
		return printJSON(snap.Raw)
	},
}

// --- feed ---

var (
	feedDate    string
	feedText    string
	feedPlace   string
	feedTargets []string
	feedLatest  []string
	feedLimit   int
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Inspect and edit the feed files",
}

var feedUpsertCmd = &cobra.Command{
	Use:   "upsert",
	Short: "Insert or replace the rolling-feed entry for a date",
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(feedText) == "" {
			return errors.New("--text is required")
		}
		targets := feedTargets
		if len(targets) == 0 {
			targets = cfg.Feed.RollingPaths
		}
		if len(targets) == 0 {
			return errors.New("no rolling feed configured; pass --feed or set feed.rolling_paths")
		}
		place := feedPlace
		if place == "" {
			place = cfg.Place.Name
		}
		limit := feedLimit
		if !cmd.Flags().Changed("limit") {
			limit = cfg.Feed.MaxItems
		}

		local, err := entryTime(feedDate, time.Now().In(placeLocation(cfg)))
		if err != nil {
			return err
		}
		entry := feed.NewEntry(local, place, feedText)

		store := feed.NewStore()
		f, err := store.UpsertByDate(targets, entry, limit)
		if err != nil {
			return err
		}
		if err := store.WriteLatest(feedLatest, entry); err != nil {
			return err
		}
		printSuccess("feed has %d items, newest %s", len(f.Items), f.Items[0].Date)
		return nil
	},
}

var feedShowCmd = &cobra.Command{
	Use:   "show [path]",
	Short: "Print the items of a feed file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var path string
		switch {
		case len(args) == 1:
			path = args[0]
		case len(cfg.Feed.Paths) > 0:
			path = cfg.Feed.Paths[0]
		default:
			return errors.New("no feed path given or configured")
		}
		f, err := feed.Load(path)
		if err != nil {
			return err
		}
		items := f.Items
		if items == nil {
			items = []feed.Entry{}
		}
		printStatus("Feed", "%s (%s, %d items)", path, f.Shape, len(items))
		return printJSON(items)
	},
}

// entryTime places date (YYYY-MM-DD, optional) at now's clock time in now's
// location.
func entryTime(date string, now time.Time) (time.Time, error) {
	if date == "" {
		return now, nil
	}
	d, err := time.ParseInLocation(time.DateOnly, date, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: want YYYY-MM-DD", date)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), now.Hour(), now.Minute(), now.Second(), 0, now.Location()), nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, ki := range config.ShowAll(cfg) {
			fmt.Fprintf(stdout, "%-28s = %-40s (%s, %s)\n", ki.Key, ki.Value, ki.Type, ki.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(args[0], args[1]); err != nil {
			printError("%v", err)
			fmt.Fprintf(stdout, "valid keys: %s\n", strings.Join(config.ValidKeys(), ", "))
			return err
		}
		printSuccess("Set %s = %s", args[0], args[1])
		return nil
	},
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(stdout, "localtalk %s\n", version)
	},
}

func init() {
	f := feedUpsertCmd.Flags()
	f.StringVar(&feedDate, "date", "", "entry date YYYY-MM-DD (default today at the place)")
	f.StringVar(&feedText, "text", "", "post text")
	f.StringVar(&feedPlace, "place", "", "place name (default place.name)")
	f.StringArrayVar(&feedTargets, "feed", nil, "rolling feed file to update (repeatable)")
	f.StringArrayVar(&feedLatest, "latest", nil, "latest-post file to overwrite (repeatable)")
	f.IntVar(&feedLimit, "limit", 0, "maximum items kept (default feed.max_items)")

	feedCmd.AddCommand(feedUpsertCmd, feedShowCmd)
	configCmd.AddCommand(configShowCmd, configSetCmd)
}
