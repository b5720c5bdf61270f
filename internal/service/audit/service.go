package audit

import (
	"context"

	"github.com/google/uuid"

	"github.com/cmw1990/connect-and-care-api/internal/model"
	"github.com/cmw1990/connect-and-care-api/internal/repository"
	"github.com/cmw1990/connect-and-care-api/pkg/logger"
)

// Service records access to and mutation of care records. Writes are
// best-effort: an audit failure is logged and never fails the caller.
type Service struct {
	repo   repository.AuditRepository
	logger *logger.Logger
}

func NewService(repo repository.AuditRepository, logger *logger.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

type LogOptions struct {
	Metadata map[string]interface{}
}

func (s *Service) Log(ctx context.Context, actorID, patientID uuid.UUID, action, resource string, resourceID uuid.UUID, opts *LogOptions) {
	entry := &model.AuditLog{
		ActorID:    actorID,
		PatientID:  patientID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
	}
	if opts != nil {
		entry.Metadata = opts.Metadata
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error(err, "failed to write audit log",
			"action", action, "resource", resource)
	}
}
