package repository

import (
	"context"

	"go-agreements/internal/models"

	"gorm.io/gorm"
)

// EventLogFilter narrows FindEvents. Empty fields match everything.
type EventLogFilter struct {
	Contract    string
	EventName   string
	AgreementID string
	TxHash      string
}

// EventLogRepository defines the interface for event log data access
type EventLogRepository interface {
	CreateBatch(ctx context.Context, events []*models.EventLog) error
	FindByTxHash(ctx context.Context, txHash string) ([]*models.EventLog, error)
	FindByAgreement(ctx context.Context, agreementID string) ([]*models.EventLog, error)
	FindEvents(ctx context.Context, filter EventLogFilter, page, limit int) ([]*models.EventLog, int64, error)
	LatestSequence(ctx context.Context) (uint64, bool, error)
}

// eventLogRepository implements EventLogRepository
type eventLogRepository struct {
	db *gorm.DB
}

// NewEventLogRepository creates a new EventLogRepository instance
func NewEventLogRepository(db *gorm.DB) EventLogRepository {
	return &eventLogRepository{db: db}
}

func (r *eventLogRepository) CreateBatch(ctx context.Context, events []*models.EventLog) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(events, 100).Error
}

func (r *eventLogRepository) FindByTxHash(ctx context.Context, txHash string) ([]*models.EventLog, error) {
	var events []*models.EventLog
	err := r.db.WithContext(ctx).Where("tx_hash = ?", txHash).Order("log_index ASC").Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventLogRepository) FindByAgreement(ctx context.Context, agreementID string) ([]*models.EventLog, error) {
	var events []*models.EventLog
	err := r.db.WithContext(ctx).
		Where("agreement_id = ?", agreementID).
		Order("sequence ASC, log_index ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventLogRepository) FindEvents(ctx context.Context, filter EventLogFilter, page, limit int) ([]*models.EventLog, int64, error) {
	var events []*models.EventLog
	var total int64

	query := r.db.WithContext(ctx).Model(&models.EventLog{})
	if filter.Contract != "" {
		query = query.Where("contract = ? OR contract_name = ?", filter.Contract, filter.Contract)
	}
	if filter.EventName != "" {
		query = query.Where("event_name = ?", filter.EventName)
	}
	if filter.AgreementID != "" {
		query = query.Where("agreement_id = ?", filter.AgreementID)
	}
	if filter.TxHash != "" {
		query = query.Where("tx_hash = ?", filter.TxHash)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := (page - 1) * limit
	err := query.Offset(offset).Limit(limit).Order("sequence DESC, log_index ASC").Find(&events).Error
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (r *eventLogRepository) LatestSequence(ctx context.Context) (uint64, bool, error) {
	var event models.EventLog
	err := r.db.WithContext(ctx).Order("sequence DESC").First(&event).Error
	if err == gorm.ErrRecordNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return event.Sequence, true, nil
}
