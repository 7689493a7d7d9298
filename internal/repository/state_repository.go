package repository

import (
	"context"
	"errors"
	"time"

	"go-agreements/internal/metrics"
	"go-agreements/internal/models"
	"go-agreements/internal/state"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StateRepository is a state.Store on the state_entries table.
type StateRepository struct {
	db *gorm.DB
}

var (
	_ state.Store   = (*StateRepository)(nil)
	_ state.Scanner = (*StateRepository)(nil)
)

// NewStateRepository creates a new StateRepository instance
func NewStateRepository(db *gorm.DB) *StateRepository {
	return &StateRepository{db: db}
}

func (r *StateRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var entry models.StateEntry
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry.Value, true, nil
}

// Apply commits the batch in one database transaction.
func (r *StateRepository) Apply(ctx context.Context, writes []state.Write) error {
	if len(writes) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { metrics.StateApplyDuration.Observe(time.Since(start).Seconds()) }()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var deletes []string
		var upserts []models.StateEntry
		for _, w := range writes {
			if w.Delete {
				deletes = append(deletes, w.Key)
				continue
			}
			upserts = append(upserts, models.StateEntry{Key: w.Key, Value: w.Value})
		}
		if len(deletes) > 0 {
			if err := tx.Where("key IN ?", deletes).Delete(&models.StateEntry{}).Error; err != nil {
				return err
			}
		}
		if len(upserts) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).CreateInBatches(upserts, 500).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Keys returns the sorted keys under prefix.
func (r *StateRepository) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).Model(&models.StateEntry{}).
		Where("key LIKE ?", escapeLike(prefix)+"%").
		Order("key ASC").
		Pluck("key", &keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
