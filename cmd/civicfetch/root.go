package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pevans/civicfetch"
	"github.com/pevans/civicfetch/browser/chrome"
	"github.com/pevans/civicfetch/browser/static"
	"github.com/pevans/civicfetch/config"
	"github.com/pevans/civicfetch/dom"
	"github.com/pevans/civicfetch/feed"
	"github.com/pevans/civicfetch/logging"
	"github.com/pevans/civicfetch/portal"
	"github.com/pevans/civicfetch/store"
)

// Output formats accepted by --output.
const (
	outputText = "text"
	outputJSON = "json"
)

// commandDeps holds the collaborators commands reach for, so tests can
// substitute them.
type commandDeps struct {
	LoadConfig func(path string) (*config.Config, error)
	NewBackend func(cfg *config.Config) (dom.Backend, error)
	OpenStore  func(dsn string) (*store.RunStore, error)
}

func defaultDeps() *commandDeps {
	return &commandDeps{
		LoadConfig: config.Load,
		NewBackend: newBackend,
		OpenStore:  store.NewRunStore,
	}
}

// newBackend builds the browser backend named in cfg.
func newBackend(cfg *config.Config) (dom.Backend, error) {
	switch cfg.Browser.Backend {
	case config.BackendChrome:
		return chrome.New(chrome.Options{
			Headless:  cfg.Browser.Headless,
			ExecPath:  cfg.Browser.ExecPath,
			UserAgent: cfg.Browser.UserAgent,
			Locale:    cfg.Browser.Locale,
			Timezone:  cfg.Browser.Timezone,
		}), nil
	case config.BackendStatic:
		if cfg.Browser.SnapshotDir != "" {
			return static.New(&static.DirSource{Root: cfg.Browser.SnapshotDir}), nil
		}
		return static.New(&static.HTTPSource{UserAgent: cfg.Browser.UserAgent}), nil
	default:
		return nil, fmt.Errorf("unknown browser backend %q", cfg.Browser.Backend)
	}
}

// scrapeFlags are the root command's flags.
type scrapeFlags struct {
	configPath    string
	baseURL       string
	backend       string
	headless      bool
	snapshotDir   string
	download      bool
	downloadDir   string
	meetingsOnly  bool
	meetingCount  int
	start         string
	end           string
	clickDownload bool
	feedURL       string
	output        string
	logLevel      string
	logJSON       bool
	noStore       bool
}

func newRootCommand(deps *commandDeps) *cobra.Command {
	if deps == nil {
		deps = defaultDeps()
	}
	flags := &scrapeFlags{}

	cmd := &cobra.Command{
		Use:   "civicfetch",
		Short: "Scrape meetings and their files from a CivicClerk portal",
		Long: `civicfetch reads a CivicClerk meeting portal, finds each meeting's agenda
files and attachments, and works out a stable download URL for every one.

Examples:
  # List meetings and files (no download)
  civicfetch

  # Download all files
  civicfetch --download

  # Download to a custom directory
  civicfetch -d --download-dir ./my_downloads

  # Just list meetings (no files)
  civicfetch --meetings-only

  # Process only the 2 most recent meetings
  civicfetch --meeting-count 2

  # Show meetings in October 2025
  civicfetch --start 2025-10-01 --end 2025-10-31

  # Download by clicking the portal's own download buttons
  civicfetch -d --click-download

  # Past runs
  civicfetch history list`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd, deps, flags)
		},
	}

	f := cmd.Flags()
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Config file (default ~/.civicfetch/config.yaml)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().BoolVar(&flags.logJSON, "log-json", false, "Write logs as JSON")
	f.StringVar(&flags.baseURL, "base-url", "", "Portal base URL")
	f.StringVar(&flags.backend, "backend", "", "Browser backend: chromedp or static")
	f.BoolVar(&flags.headless, "headless", true, "Run Chrome without a window")
	f.StringVar(&flags.snapshotDir, "snapshot-dir", "", "Read saved portal pages from this directory (static backend)")
	f.BoolVarP(&flags.download, "download", "d", false, "Download files instead of just printing URLs")
	f.StringVar(&flags.downloadDir, "download-dir", "", "Directory to save downloaded files (default ./downloads)")
	f.BoolVar(&flags.meetingsOnly, "meetings-only", false, "Only scrape the meeting list, not files")
	f.IntVar(&flags.meetingCount, "meeting-count", 0, "Process only the most recent N meetings (0 = all)")
	f.StringVar(&flags.start, "start", "", "Start date, YYYY-MM-DD, inclusive")
	f.StringVar(&flags.end, "end", "", "End date, YYYY-MM-DD, inclusive")
	f.BoolVar(&flags.clickDownload, "click-download", false, "Download by clicking the portal's download menus")
	f.StringVar(&flags.feedURL, "feed-url", "", "List meetings from this RSS/Atom feed instead of the portal index")
	f.StringVarP(&flags.output, "output", "o", outputText, "Output format: text, json")
	f.BoolVar(&flags.noStore, "no-store", false, "Do not record this run in the history database")

	cmd.AddCommand(newHistoryCommand(deps, flags))
	cmd.AddCommand(newInitCommand())

	return cmd
}

// loadConfig resolves the config file and environment, then applies every
// flag the user set explicitly.
func loadConfig(cmd *cobra.Command, deps *commandDeps, flags *scrapeFlags) (*config.Config, error) {
	cfg, err := deps.LoadConfig(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		return fl != nil && fl.Changed
	}
	if changed("base-url") {
		cfg.Portal.BaseURL = flags.baseURL
	}
	if changed("backend") {
		cfg.Browser.Backend = flags.backend
	}
	if changed("headless") {
		cfg.Browser.Headless = flags.headless
	}
	if changed("snapshot-dir") {
		cfg.Browser.SnapshotDir = flags.snapshotDir
	}
	if changed("download-dir") {
		cfg.Download.Dir = flags.downloadDir
	}
	if changed("feed-url") {
		cfg.Feed.URL = flags.feedURL
	}
	if changed("log-level") {
		cfg.Log.Level = flags.logLevel
	}
	if changed("log-json") {
		cfg.Log.JSON = flags.logJSON
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) logging.Logger {
	return logging.NewLogger(&logging.Config{
		Level:      logging.Level(cfg.Log.Level),
		JSONFormat: cfg.Log.JSON,
		Output:     w,
	})
}

// parseDate parses a YYYY-MM-DD flag value. An empty value is no bound.
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func runScrape(cmd *cobra.Command, deps *commandDeps, flags *scrapeFlags) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	start, err := parseDate(flags.start)
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid start date format '%s'. Use YYYY-MM-DD format.\n", flags.start)
		return nil
	}
	end, err := parseDate(flags.end)
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid end date format '%s'. Use YYYY-MM-DD format.\n", flags.end)
		return nil
	}
	if start != nil && end != nil && start.After(*end) {
		fmt.Fprintf(stderr, "Error: start date (%s) must be before or equal to end date (%s)\n",
			flags.start, flags.end)
		return nil
	}

	switch flags.output {
	case outputText, outputJSON:
	default:
		return fmt.Errorf("invalid output format: %s", flags.output)
	}

	cfg, err := loadConfig(cmd, deps, flags)
	if err != nil {
		return err
	}
	log := newLogger(cfg, stderr)

	backend, err := deps.NewBackend(cfg)
	if err != nil {
		return err
	}

	runner := civicfetch.NewRunner(backend, cfg.Portal.BaseURL, log)
	runner.APIBase = cfg.Portal.APIBaseURL
	runner.Selectors = cfg.Portal.Selectors
	runner.DownloadTimeout = cfg.Download.Timeout
	if lister, ok := runner.Lister.(*portal.Lister); ok {
		lister.Selectors = cfg.Portal.Selectors
	}
	if cfg.Feed.URL != "" {
		runner.Lister = feed.NewLister(cfg.Feed.URL, log)
	}

	if !flags.noStore {
		runs, err := deps.OpenStore(cfg.Store.DSN)
		if err != nil {
			log.Warn("run history disabled", logging.F("dsn", cfg.Store.DSN), logging.Err(err))
		} else {
			defer runs.Close()
			runner.Store = runs
		}
	}

	res, runErr := runner.Run(cmd.Context(), civicfetch.Options{
		MeetingsOnly:  flags.meetingsOnly,
		Download:      flags.download,
		ClickDownload: flags.clickDownload,
		DownloadDir:   cfg.Download.Dir,
		MeetingCount:  flags.meetingCount,
		Start:         start,
		End:           end,
	})

	if len(res.Meetings) == 0 {
		printNoMeetings(stderr, res.Listed, start, end)
		return runErr
	}

	if flags.output == outputJSON {
		if err := printRunJSON(stdout, res); err != nil {
			return err
		}
	} else {
		printRunText(stdout, res, summaryMode{
			meetingsOnly: flags.meetingsOnly,
			download:     flags.download,
			downloadDir:  cfg.Download.Dir,
		})
	}
	return runErr
}

func printNoMeetings(w io.Writer, listed int, start, end *time.Time) {
	if listed > 0 && (start != nil || end != nil) {
		fmt.Fprintf(w, "No meetings found in date range (from %d total)\n", listed)
		if start != nil {
			fmt.Fprintf(w, "   Start date: %s\n", start.Format("2006-01-02"))
		}
		if end != nil {
			fmt.Fprintf(w, "   End date: %s\n", end.Format("2006-01-02"))
		}
		return
	}
	fmt.Fprintln(w, "No meetings found to process")
	fmt.Fprintln(w, strings.Join([]string{
		"   Possible reasons:",
		"   - Date range filtered out all meetings",
		"   - Website structure changed",
		"   - Portal app didn't load properly",
	}, "\n"))
}
