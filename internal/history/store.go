// Package history persists what was played, when, and for how long.
package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/streamramp/streamramp/internal/logger"
)

var ErrRecordNotFound = errors.New("history record not found")

// PlaybackRecord is one listening session of one stream entry.
type PlaybackRecord struct {
	ID            uint   `gorm:"primaryKey"`
	EntryID       string `gorm:"index;size:64"`
	URL           string `gorm:"index;size:2048"`
	StationName   string `gorm:"size:256"`
	StreamTitle   string `gorm:"size:512"`
	StartedAt     time.Time
	EndedAt       *time.Time
	PlayedSeconds float64
	StopReason    string `gorm:"size:32"`
}

type Config struct {
	Path     string
	LogLevel string
}

func DefaultConfig(dataDir string) Config {
	return Config{
		Path:     filepath.Join(dataDir, "history.db"),
		LogLevel: "warn",
	}
}

// Store is the SQLite-backed history repository.
type Store struct {
	db *gorm.DB
}

func Open(cfg Config) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	var logLevel gormlogger.LogLevel
	switch cfg.LogLevel {
	case "silent":
		logLevel = gormlogger.Silent
	case "error":
		logLevel = gormlogger.Error
	case "info":
		logLevel = gormlogger.Info
	default:
		logLevel = gormlogger.Warn
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := db.Exec("PRAGMA journal_mode = WAL").Error; err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := db.AutoMigrate(&PlaybackRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history schema: %w", err)
	}

	logger.Info("History database ready", logger.String("path", cfg.Path))
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordStart inserts a session for an entry that just started playing.
func (s *Store) RecordStart(entryID, url, station string) (*PlaybackRecord, error) {
	rec := &PlaybackRecord{
		EntryID:     entryID,
		URL:         url,
		StationName: station,
		StartedAt:   time.Now().UTC(),
	}
	if err := s.db.Create(rec).Error; err != nil {
		return nil, fmt.Errorf("failed to record playback start: %w", err)
	}
	return rec, nil
}

// RecordTitle stores the latest in-stream title on the entry's open session.
func (s *Store) RecordTitle(entryID, title string) error {
	result := s.db.Model(&PlaybackRecord{}).
		Where("entry_id = ? AND ended_at IS NULL", entryID).
		Update("stream_title", title)
	if result.Error != nil {
		return fmt.Errorf("failed to record stream title: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// RecordFinish closes the entry's open session.
func (s *Store) RecordFinish(entryID string, playedSeconds float64, reason string) error {
	now := time.Now().UTC()
	result := s.db.Model(&PlaybackRecord{}).
		Where("entry_id = ? AND ended_at IS NULL", entryID).
		Updates(map[string]interface{}{
			"ended_at":       &now,
			"played_seconds": playedSeconds,
			"stop_reason":    reason,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record playback finish: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Recent returns the newest sessions, most recent first.
func (s *Store) Recent(limit int) ([]PlaybackRecord, error) {
	var records []PlaybackRecord
	err := s.db.Order("started_at DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return records, nil
}

// Search matches URL, station name, or stream title.
func (s *Store) Search(term string, limit int) ([]PlaybackRecord, error) {
	var records []PlaybackRecord
	pattern := "%" + term + "%"
	err := s.db.
		Where("url LIKE ? OR station_name LIKE ? OR stream_title LIKE ?", pattern, pattern, pattern).
		Order("started_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search history: %w", err)
	}
	return records, nil
}

// Prune deletes sessions that started before the cutoff.
func (s *Store) Prune(before time.Time) (int64, error) {
	result := s.db.Where("started_at < ?", before).Delete(&PlaybackRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune history: %w", result.Error)
	}
	return result.RowsAffected, nil
}
