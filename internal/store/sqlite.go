package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type saveRecord struct {
	Slot      string `gorm:"primaryKey"`
	Blob      []byte `gorm:"not null"`
	UpdatedAt time.Time
}

func (saveRecord) TableName() string { return "saves" }

type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens path, which may be ":memory:".
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying db: %w", err)
	}
	// one connection: every :memory: connection is its own database
	sqlDB.SetMaxOpenConns(1)
	if err := gdb.AutoMigrate(&saveRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: gdb}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, slot string) ([]byte, error) {
	if err := ValidateSlot(slot); err != nil {
		return nil, err
	}
	var rec saveRecord
	err := s.db.WithContext(ctx).Where("slot = ?", slot).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, slot)
	}
	if err != nil {
		return nil, fmt.Errorf("load slot %s: %w", slot, err)
	}
	return rec.Blob, nil
}

func (s *SQLiteStore) Put(ctx context.Context, slot string, blob []byte) error {
	if err := ValidateSlot(slot); err != nil {
		return err
	}
	rec := saveRecord{Slot: slot, Blob: blob, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slot"}},
		DoUpdates: clause.AssignmentColumns([]string{"blob", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("write slot %s: %w", slot, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, slot string) error {
	if err := ValidateSlot(slot); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Where("slot = ?", slot).Delete(&saveRecord{})
	if res.Error != nil {
		return fmt.Errorf("delete slot %s: %w", slot, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, slot)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	slots := []string{}
	err := s.db.WithContext(ctx).Model(&saveRecord{}).Order("slot").Pluck("slot", &slots).Error
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
