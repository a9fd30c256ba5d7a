package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/i474232898/weather-etl/internal/pipeline"
)

var (
	// ErrNotFound is returned when the ledger holds no run.
	ErrNotFound = errors.New("no recorded runs")
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// RunRecord is one row of the run ledger.
type RunRecord struct {
	ID           uint   `gorm:"primaryKey"`
	RunID        string `gorm:"uniqueIndex;size:36"`
	City         string `gorm:"index"`
	Status       string
	FailedStep   string
	ErrorKind    string
	Error        string
	Latitude     float64
	Longitude    float64
	ArtifactPath string
	ObjectKey    string
	StartedAt    time.Time `gorm:"index"`
	FinishedAt   *time.Time
}

// Ledger persists run history in SQLite.
type Ledger struct {
	db *gorm.DB
}

// Open opens (and migrates) the ledger database at path.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	if err := db.AutoMigrate(&RunRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger: %w", err)
	}

	return &Ledger{db: db}, nil
}

// RunStarted inserts a running record.
func (l *Ledger) RunStarted(ctx context.Context, res pipeline.Result) error {
	rec := &RunRecord{
		RunID:     res.RunID,
		City:      res.City,
		Status:    StatusRunning,
		StartedAt: res.StartedAt.UTC(),
	}
	return l.db.WithContext(ctx).Create(rec).Error
}

// RunFinished stores the outcome of a run. A run never announced through
// RunStarted is inserted.
func (l *Ledger) RunFinished(ctx context.Context, res pipeline.Result) error {
	finished := res.FinishedAt.UTC()
	rec := RunRecord{
		RunID:        res.RunID,
		City:         res.City,
		Status:       StatusSuccess,
		Latitude:     res.Coordinates.Latitude,
		Longitude:    res.Coordinates.Longitude,
		ArtifactPath: res.ArtifactPath,
		ObjectKey:    res.ObjectKey,
		StartedAt:    res.StartedAt.UTC(),
		FinishedAt:   &finished,
	}
	if res.Err != nil {
		rec.Status = StatusFailed
		rec.Error = res.Err.Error()
		var se *pipeline.StepError
		if errors.As(res.Err, &se) {
			rec.FailedStep = string(se.Step)
			rec.ErrorKind = string(se.Kind)
		}
	}

	db := l.db.WithContext(ctx)
	var existing RunRecord
	err := db.Where("run_id = ?", res.RunID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return db.Create(&rec).Error
	case err != nil:
		return err
	}
	rec.ID = existing.ID
	return db.Save(&rec).Error
}

// Latest returns the most recently started run.
func (l *Ledger) Latest(ctx context.Context) (RunRecord, error) {
	var rec RunRecord
	err := l.db.WithContext(ctx).Order("started_at desc, id desc").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RunRecord{}, ErrNotFound
	}
	return rec, err
}

// Recent returns up to limit runs, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]RunRecord, error) {
	var recs []RunRecord
	q := l.db.WithContext(ctx).Order("started_at desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (l *Ledger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
