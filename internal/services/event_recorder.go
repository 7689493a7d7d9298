package services

import (
	"context"
	"encoding/json"
	"fmt"

	"go-agreements/internal/chain"
	"go-agreements/internal/metrics"
	"go-agreements/internal/models"
	"go-agreements/internal/repository"

	"github.com/sirupsen/logrus"
)

// EventRecorder persists every committed event to the event log.
type EventRecorder struct {
	repo   repository.EventLogRepository
	logger *logrus.Logger
}

var _ chain.EventSink = (*EventRecorder)(nil)

func NewEventRecorder(repo repository.EventLogRepository, logger *logrus.Logger) *EventRecorder {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &EventRecorder{repo: repo, logger: logger}
}

func (r *EventRecorder) HandleReceipt(ctx context.Context, receipt *chain.Receipt) error {
	rows, err := EventLogsFromReceipt(receipt)
	if err != nil {
		return err
	}
	if err := r.repo.CreateBatch(ctx, rows); err != nil {
		return fmt.Errorf("record events for %s: %w", receipt.TxHash.Hex(), err)
	}
	metrics.EventLogWrites.Add(float64(len(rows)))
	r.logger.WithFields(logrus.Fields{
		"tx_hash": receipt.TxHash.Hex(),
		"events":  len(rows),
	}).Debug("🗄️ Events recorded")
	return nil
}

// EventLogsFromReceipt maps receipt events to event_logs rows.
func EventLogsFromReceipt(receipt *chain.Receipt) ([]*models.EventLog, error) {
	rows := make([]*models.EventLog, 0, len(receipt.Events))
	for _, e := range receipt.Events {
		data, err := json.Marshal(e.Fields)
		if err != nil {
			return nil, fmt.Errorf("encode %s fields: %w", e.Name, err)
		}
		agreementID, _ := e.Fields["agreementId"].(string)
		rows = append(rows, &models.EventLog{
			TxHash:       receipt.TxHash.Hex(),
			LogIndex:     e.Index,
			Sequence:     receipt.Sequence,
			Contract:     e.Contract.Hex(),
			ContractName: e.ContractName,
			EventName:    e.Name,
			AgreementID:  agreementID,
			Data:         string(data),
			BlockTime:    receipt.Timestamp,
		})
	}
	return rows, nil
}
