package kv

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry 是分区表中的一行。
type Entry struct {
	Key       string         `gorm:"primaryKey;size:191"`
	Value     datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName 显式指定表名。
func (Entry) TableName() string { return "kv_entries" }

// Gorm 通过 GORM 把条目存进关系表。
type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm { return &Gorm{db: db} }

func (s *Gorm) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var e Entry
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "kv get %q", key)
	}
	return []byte(e.Value), true, nil
}

// Set 以 upsert 方式写入整个值。
func (s *Gorm) Set(ctx context.Context, key string, value []byte) error {
	e := Entry{Key: key, Value: datatypes.JSON(value), UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e).Error
	return errors.Wrapf(err, "kv set %q", key)
}

func (s *Gorm) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).Where("key = ?", key).Delete(&Entry{}).Error
	return errors.Wrapf(err, "kv delete %q", key)
}

// Keys 用 LIKE 粗筛后再按前缀精确过滤，前缀中的 _ 在 LIKE 里是通配符。
func (s *Gorm) Keys(ctx context.Context, prefix string) ([]string, error) {
	var rows []string
	err := s.db.WithContext(ctx).Model(&Entry{}).
		Where("key LIKE ?", prefix+"%").
		Order("key").
		Pluck("key", &rows).Error
	if err != nil {
		return nil, errors.Wrapf(err, "kv keys %q", prefix)
	}
	keys := rows[:0]
	for _, k := range rows {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
