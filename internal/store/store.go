// Package store keeps a history of benchmark runs in SQLite.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/linuxmatters/peaqer/internal/processor"
	"github.com/linuxmatters/peaqer/internal/report"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// Run is one benchmark invocation.
type Run struct {
	ID         uint      `gorm:"primaryKey"`
	UUID       string    `gorm:"size:36;uniqueIndex;not null"`
	StartedAt  time.Time `gorm:"index"`
	FinishedAt time.Time
	Timezone   string `gorm:"size:64"`
	Workers    int
	Files      int
	Failures   int
	Settings   string  `gorm:"type:text"` // settings document as JSON
	Scores     []Score `gorm:"constraint:OnDelete:CASCADE"`
}

// Score is one score record, with enough position information to rebuild
// the ordered results.
type Score struct {
	ID           uint   `gorm:"primaryKey"`
	RunID        uint   `gorm:"not null;index"`
	FileIndex    int    `gorm:"not null"`
	File         string `gorm:"size:1024;not null"`
	EncoderIndex int    `gorm:"not null"`
	Encoder      string `gorm:"size:255;not null;index"`
	MetricIndex  int    `gorm:"not null"`
	Metric       string `gorm:"size:255;not null;index"`
	Position     int    `gorm:"not null"` // index into the configured bitrates
	Bitrate      int
	KBPS         float64
	Score        float64
	Error        string `gorm:"type:text"`
}

// Store wraps the run history database.
type Store struct {
	db     *gorm.DB
	logger hclog.Logger
}

// Open connects to the SQLite database at dsn, creating tables as needed.
func Open(dsn string, log hclog.Logger) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database path not provided")
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&Run{}, &Score{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Debug("run history database ready", "dsn", dsn)
	return &Store{db: db, logger: log}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRun records a finished run and every one of its score records.
func (s *Store) SaveRun(r *report.Report) error {
	settings, err := json.Marshal(r.Settings)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	run := Run{
		UUID:       r.RunID,
		StartedAt:  r.Started,
		FinishedAt: r.Finished,
		Timezone:   r.Timezone,
		Workers:    r.Workers,
		Files:      len(r.Results),
		Failures:   r.Failures,
		Settings:   string(settings),
	}
	scores := flatten(r.Results)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return err
		}
		for i := range scores {
			scores[i].RunID = run.ID
		}
		if len(scores) == 0 {
			return nil
		}
		return tx.CreateInBatches(&scores, 500).Error
	})
	if err != nil {
		return fmt.Errorf("saving run %s: %w", r.RunID, err)
	}

	s.logger.Info("saved run", "run", r.RunID, "scores", len(scores))
	return nil
}

func flatten(results processor.Results) []Score {
	var scores []Score
	for fi, file := range results {
		for ei, enc := range file.Value {
			for mi, metric := range enc.Value {
				for pos, rec := range metric.Value {
					scores = append(scores, Score{
						FileIndex:    fi,
						File:         file.Key,
						EncoderIndex: ei,
						Encoder:      enc.Key,
						MetricIndex:  mi,
						Metric:       metric.Key,
						Position:     pos,
						Bitrate:      rec.Bitrate,
						KBPS:         rec.KBPS,
						Score:        rec.Score,
						Error:        rec.Error,
					})
				}
			}
		}
	}
	return scores
}

// Runs lists recorded runs, most recent first, without their scores.
func (s *Store) Runs() ([]Run, error) {
	var runs []Run
	if err := s.db.Order("started_at DESC").Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// LoadResults rebuilds the ordered results of the run with the given id.
func (s *Store) LoadResults(uuid string) (processor.Results, error) {
	var run Run
	err := s.db.Where("uuid = ?", uuid).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", uuid, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", uuid, err)
	}

	var scores []Score
	err = s.db.Where("run_id = ?", run.ID).
		Order("file_index, encoder_index, metric_index, position").
		Find(&scores).Error
	if err != nil {
		return nil, fmt.Errorf("loading scores for run %s: %w", uuid, err)
	}

	var results processor.Results
	for _, sc := range scores {
		encoders, _ := results.Get(sc.File)
		metrics, _ := encoders.Get(sc.Encoder)
		records, _ := metrics.Get(sc.Metric)
		records = append(records, processor.ScoreRecord{
			Bitrate: sc.Bitrate,
			KBPS:    sc.KBPS,
			Score:   sc.Score,
			Error:   sc.Error,
		})
		metrics.Set(sc.Metric, records)
		encoders.Set(sc.Encoder, metrics)
		results.Set(sc.File, encoders)
	}
	return results, nil
}
