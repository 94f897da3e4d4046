package cache

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry is the GORM model backing DatabaseStore.
type Entry struct {
	Key       string `gorm:"column:cache_key;primaryKey;size:255"`
	Value     []byte
	ExpiresAt int64 `gorm:"index"` // unix milliseconds
}

func (Entry) TableName() string { return "cache_entries" }

// DatabaseStore is a Store shared by every process using the same database.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore migrates the cache_entries table and returns a store on
// db.
func NewDatabaseStore(db *gorm.DB) (*DatabaseStore, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("cache: migrate: %w", err)
	}
	return &DatabaseStore{db: db}, nil
}

func (s *DatabaseStore) Read(ctx context.Context, key string) ([]byte, bool) {
	var e Entry
	err := s.db.WithContext(ctx).
		Where("cache_key = ? AND expires_at > ?", key, time.Now().UnixMilli()).
		Take(&e).Error
	if err != nil {
		return nil, false
	}
	return e.Value, true
}

func (s *DatabaseStore) Write(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	e := Entry{Key: key, Value: value, ExpiresAt: time.Now().Add(ttlOrDefault(ttl)).UnixMilli()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at"}),
	}).Create(&e).Error
}

func (s *DatabaseStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("cache_key = ?", key).Delete(&Entry{}).Error
}

// DeleteByPrefix compares the key's leading characters with prefix, so
// LIKE wildcards in prefix match literally and the match is case-sensitive.
func (s *DatabaseStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	res := s.db.WithContext(ctx).
		Where("substr(cache_key, 1, ?) = ?", utf8.RuneCountInString(prefix), prefix).
		Delete(&Entry{})
	return int(res.RowsAffected), res.Error
}

// Purge removes expired entries and returns how many were removed.
func (s *DatabaseStore) Purge(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", time.Now().UnixMilli()).Delete(&Entry{})
	return res.RowsAffected, res.Error
}
