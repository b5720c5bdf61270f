package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cmw1990/connect-and-care-api/internal/model"
	"github.com/cmw1990/connect-and-care-api/internal/repository"
)

// Emitter persists row-change events to the outbox. The outbox processor
// publishes them to the per-table broker channels, which is what realtime
// subscribers consume. Emitting after a write keeps delivery at-least-once
// without coupling the write path to broker availability.
type Emitter interface {
	EmitChange(ctx context.Context, table string, op model.ChangeOp, newRow, oldRow interface{}) error
}

type Service struct {
	outboxRepo repository.OutboxRepository
}

func NewService(outboxRepo repository.OutboxRepository) *Service {
	return &Service{outboxRepo: outboxRepo}
}

func (s *Service) EmitChange(ctx context.Context, table string, op model.ChangeOp, newRow, oldRow interface{}) error {
	change := model.ChangeEvent{
		Table: table,
		Op:    op,
	}

	if newRow != nil {
		b, err := json.Marshal(newRow)
		if err != nil {
			return fmt.Errorf("failed to marshal new row: %w", err)
		}
		change.New = b
	}
	if oldRow != nil {
		b, err := json.Marshal(oldRow)
		if err != nil {
			return fmt.Errorf("failed to marshal old row: %w", err)
		}
		change.Old = b
	}

	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	outboxEvent := &model.OutboxEvent{
		EventType: table,
		Payload:   payload,
	}
	if err := s.outboxRepo.Create(ctx, outboxEvent); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}
