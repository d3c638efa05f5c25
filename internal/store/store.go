// Package store is ChainClaw's Durable Store (spec.md §4.1): a single-file
// transactional row store, generalizing the teacher's internal/db GORM
// recorder from one append-only table to the full persisted-state layout.
// Every exported method is a short transaction; readers never observe
// uncommitted state because gorm.DB.Transaction wraps each call in a real
// SQL transaction and commits or rolls back atomically.
package store

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store is the sole persistence boundary for ChainClaw.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if absent) a single sqlite file at path and runs the
// additive auto-migration for every table (spec.md §4.1: "if a column is
// missing on startup, add it with a default").
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenWithDB wraps an already-open *gorm.DB, mirroring the teacher's
// NewMySQLRecorderWithDB for tests that inject their own *gorm.DB (e.g. an
// in-memory sqlite database).
func OpenWithDB(db *gorm.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&TxLogRow{},
		&UserLimitsRow{},
		&RiskReportRow{},
		&ContractListRow{},
		&DeliveryQueueRow{},
		&DcaJobRow{},
		&LimitOrderRow{},
		&WhaleWatchRow{},
		&FlowBucketRow{},
		&SignalRow{},
		&SignalProviderRow{},
		&SignalSubscriptionRow{},
		&SnipeRow{},
		&AutoSnipeRow{},
		&PrivacyDepositRow{},
	)
}

// DB exposes the underlying *gorm.DB for engine-specific queries that don't
// warrant a dedicated Store method.
func (s *Store) DB() *gorm.DB { return s.db }

// Close closes the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying DB: %w", err)
	}
	return sqlDB.Close()
}
