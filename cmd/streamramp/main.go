package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/streamramp/streamramp/internal/config"
	"github.com/streamramp/streamramp/internal/history"
	"github.com/streamramp/streamramp/internal/logger"
	"github.com/streamramp/streamramp/internal/network"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	var (
		logLevel      = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		version       = flag.Bool("version", false, "Show version information")
		volume        = flag.Float64("volume", -1, "Playback volume (0.0-1.0)")
		rate          = flag.Float64("rate", 1.0, "Playback rate (0.25-4.0)")
		muted         = flag.Bool("mute", false, "Start muted")
		showHistory   = flag.Int("history", 0, "Show the N most recent plays and exit")
		listStations  = flag.Bool("stations", false, "List saved stations and exit")
		searchTerm    = flag.String("search", "", "Search saved stations and exit")
		fetchStations = flag.String("fetch-stations", "", "Fetch a remote station directory and exit")
	)
	flag.Parse()

	if *version {
		fmt.Printf("StreamRamp %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	cfg := config.Get()

	logConfig := logger.DefaultConfig()
	if *logLevel != "" {
		logConfig.Level = *logLevel
	} else if cfg.Advanced.LogLevel != "" {
		logConfig.Level = cfg.Advanced.LogLevel
	}
	logConfig.FilePath = filepath.Join(cfg.App.LogDir, "streamramp.log")
	logger.Initialize(logConfig)

	logger.Info("StreamRamp starting",
		logger.String("version", Version),
		logger.String("build_time", BuildTime),
	)

	var store *history.Store
	if cfg.History.Enabled {
		s, err := history.Open(history.Config{
			Path:     cfg.History.DatabasePath,
			LogLevel: "warn",
		})
		if err != nil {
			logger.Warn("History disabled", logger.Error(err))
		} else {
			store = s
			defer store.Close()
		}
	}

	if *showHistory > 0 {
		printHistory(store, *showHistory)
		return
	}

	stations := network.NewStationDirectory(cfg.App.DataDir)
	if *fetchStations != "" {
		if err := stations.FetchRemote(*fetchStations); err != nil {
			logger.Fatal("Failed to fetch station directory", logger.Error(err))
		}
		fmt.Printf("Fetched %d stations\n", len(stations.Stations()))
		return
	}
	if *listStations {
		printStations(stations.Stations())
		return
	}
	if *searchTerm != "" {
		printStations(stations.Search(*searchTerm))
		return
	}

	urls := flag.Args()
	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "usage: streamramp [flags] <stream-url> [more-urls...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	app := newApp(cfg, store)
	defer app.shutdown()

	if err := app.play(urls, *volume, *rate, *muted); err != nil {
		logger.Fatal("Failed to start playback", logger.Error(err))
	}
	app.wait()
}

func printHistory(store *history.Store, limit int) {
	if store == nil {
		fmt.Fprintln(os.Stderr, "history is disabled")
		return
	}
	records, err := store.Recent(limit)
	if err != nil {
		logger.Fatal("Failed to read history", logger.Error(err))
	}
	for _, rec := range records {
		title := rec.StreamTitle
		if title == "" {
			title = rec.StationName
		}
		fmt.Printf("%s  %-40s  %6.0fs  %s\n",
			rec.StartedAt.Local().Format("2006-01-02 15:04"), title, rec.PlayedSeconds, rec.URL)
	}
}

func printStations(stations []network.RadioStation) {
	for _, st := range stations {
		fmt.Printf("%-30s %-12s %4dk  %s\n", st.Name, st.Genre, st.Bitrate, st.URL)
	}
}
