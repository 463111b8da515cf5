package network

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/streamramp/streamramp/internal/logger"
)

// RadioStation describes an internet radio station entry.
type RadioStation struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Genre       string `json:"genre"`
	Country     string `json:"country"`
	Bitrate     int    `json:"bitrate"`
	Format      string `json:"format"`
	Homepage    string `json:"homepage"`
	Description string `json:"description"`
}

// StationDirectory keeps a station list persisted under the data dir and can
// refresh it from a remote JSON directory.
type StationDirectory struct {
	stations []RadioStation
	mu       sync.RWMutex
	path     string
	client   *resty.Client
}

// NewStationDirectory loads stations.json from dataDir, falling back to an
// empty list.
func NewStationDirectory(dataDir string) *StationDirectory {
	d := &StationDirectory{
		path: filepath.Join(dataDir, "stations.json"),
		client: resty.New().
			SetTimeout(30 * time.Second),
	}
	if err := d.load(); err != nil {
		logger.Warn("Failed to load stations", logger.Error(err))
	}
	return d
}

func (d *StationDirectory) load() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := os.ReadFile(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			d.stations = nil
			return nil
		}
		return fmt.Errorf("failed to read stations file: %w", err)
	}

	var stations []RadioStation
	if err := json.Unmarshal(data, &stations); err != nil {
		return fmt.Errorf("failed to parse stations file: %w", err)
	}
	d.stations = stations
	return nil
}

func (d *StationDirectory) save() error {
	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(d.stations, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stations: %w", err)
	}

	if err := os.WriteFile(d.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write stations file: %w", err)
	}
	return nil
}

// FetchRemote replaces the station list with one fetched from a remote JSON
// directory endpoint and persists it.
func (d *StationDirectory) FetchRemote(directoryURL string) error {
	resp, err := d.client.R().Get(directoryURL)
	if err != nil {
		return fmt.Errorf("failed to fetch station directory: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("station directory returned status %d", resp.StatusCode())
	}

	var stations []RadioStation
	if err := json.Unmarshal(resp.Body(), &stations); err != nil {
		return fmt.Errorf("failed to parse station directory: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.stations = stations

	logger.Info("Station directory refreshed",
		logger.String("url", directoryURL),
		logger.Int("stations", len(stations)),
	)
	return d.save()
}

// Stations returns a copy of the current station list.
func (d *StationDirectory) Stations() []RadioStation {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]RadioStation, len(d.stations))
	copy(out, d.stations)
	return out
}

// Search matches stations by name, genre or country, case-insensitively.
func (d *StationDirectory) Search(query string) []RadioStation {
	d.mu.RLock()
	defer d.mu.RUnlock()

	query = strings.ToLower(query)
	var results []RadioStation
	for _, st := range d.stations {
		if strings.Contains(strings.ToLower(st.Name), query) ||
			strings.Contains(strings.ToLower(st.Genre), query) ||
			strings.Contains(strings.ToLower(st.Country), query) {
			results = append(results, st)
		}
	}
	return results
}

// Add appends a station, rejecting duplicate URLs, and persists the list.
func (d *StationDirectory) Add(station RadioStation) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, st := range d.stations {
		if st.URL == station.URL {
			return fmt.Errorf("station with URL %s already exists", station.URL)
		}
	}
	d.stations = append(d.stations, station)
	return d.save()
}

// Remove deletes a station by URL and persists the list.
func (d *StationDirectory) Remove(url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, st := range d.stations {
		if st.URL == url {
			d.stations = append(d.stations[:i], d.stations[i+1:]...)
			return d.save()
		}
	}
	return fmt.Errorf("station not found")
}
