package storage

import (
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	platformerrors "vad-server-go/internal/platform/errors"
)

// SegmentRecord is one completed speech segment, journaled off the hot
// path for later inspection. The audio itself is not stored.
type SegmentRecord struct {
	ID             uint      `gorm:"primaryKey"`
	SessionUID     string    `gorm:"index;not null" json:"session_uid"`
	ConnectSession string    `json:"connect_session"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
	DurationMs     int64     `json:"duration_ms"`
	PayloadBytes   int       `json:"payload_bytes"`
	CreatedAt      time.Time `json:"created_at"`
}

// Journal persists segment records to a sqlite database.
type Journal struct {
	db *gorm.DB
}

// OpenJournal opens (or creates) the sqlite journal at dsn.
func OpenJournal(dsn string) (*Journal, error) {
	if dir := filepath.Dir(dsn); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindStorage, "open", "create journal directory", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "open", "open journal database", err)
	}

	if err := db.AutoMigrate(&SegmentRecord{}); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "open", "migrate journal schema", err)
	}

	return &Journal{db: db}, nil
}

// Record inserts one segment record.
func (j *Journal) Record(rec *SegmentRecord) error {
	if err := j.db.Create(rec).Error; err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "record", "insert segment record", err)
	}
	return nil
}

// RecentSegments returns up to limit records, newest first.
func (j *Journal) RecentSegments(limit int) ([]SegmentRecord, error) {
	var records []SegmentRecord
	err := j.db.Order("id desc").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "query", "list segment records", err)
	}
	return records, nil
}

// Count returns the total number of journaled segments.
func (j *Journal) Count() (int64, error) {
	var count int64
	if err := j.db.Model(&SegmentRecord{}).Count(&count).Error; err != nil {
		return 0, platformerrors.Wrap(platformerrors.KindStorage, "query", "count segment records", err)
	}
	return count, nil
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
