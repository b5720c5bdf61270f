package pharmacy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cmw1990/connect-and-care-api/internal/model"
	"github.com/cmw1990/connect-and-care-api/internal/repository"
	"github.com/cmw1990/connect-and-care-api/internal/service/audit"
	"github.com/cmw1990/connect-and-care-api/internal/service/interaction"
	"github.com/cmw1990/connect-and-care-api/internal/service/notification"
	apperrors "github.com/cmw1990/connect-and-care-api/pkg/errors"
	"github.com/cmw1990/connect-and-care-api/pkg/logger"
)

const (
	// refillLeadTime is how far out a pharmacy estimates a refill.
	refillLeadTime = 24 * time.Hour

	// expiryWarningLead is how long before expiration the warning fires.
	expiryWarningLead = 7 * 24 * time.Hour
)

// Service owns the prescription and refill workflow.
type Service struct {
	presRepo  repository.PrescriptionRepository
	orderRepo repository.PharmacyOrderRepository
	medRepo   repository.MedicationRepository
	notifSvc  notification.Service
	checker   interaction.Checker
	auditor   *audit.Service
	logger    *logger.Logger
}

func NewService(
	presRepo repository.PrescriptionRepository,
	orderRepo repository.PharmacyOrderRepository,
	medRepo repository.MedicationRepository,
	notifSvc notification.Service,
	checker interaction.Checker,
	auditor *audit.Service,
	logger *logger.Logger,
) *Service {
	return &Service{
		presRepo:  presRepo,
		orderRepo: orderRepo,
		medRepo:   medRepo,
		notifSvc:  notifSvc,
		checker:   checker,
		auditor:   auditor,
		logger:    logger,
	}
}

// CreatePrescription inserts the prescription and schedules an expiration
// warning 7 days before it lapses.
func (s *Service) CreatePrescription(ctx context.Context, req *model.CreatePrescriptionRequest) (*model.Prescription, error) {
	p := &model.Prescription{
		MedicationID:   req.MedicationID,
		PatientID:      req.PatientID,
		PrescriberID:   req.PrescriberID,
		PharmacyName:   req.PharmacyName,
		ExpirationDate: req.ExpirationDate,
		RefillsLeft:    req.RefillsLeft,
		Status:         model.PrescriptionStatusActive,
	}

	if err := s.presRepo.Create(ctx, p); err != nil {
		return nil, err
	}

	warnAt := p.ExpirationDate.Add(-expiryWarningLead)
	if warnAt.After(time.Now()) {
		n := &model.ScheduledNotification{
			PatientID:  p.PatientID,
			DedupeKey:  fmt.Sprintf("rx_expiry_%s", p.ID),
			Title:      "Prescription Expiring Soon",
			Body:       fmt.Sprintf("A prescription expires on %s. Contact the prescriber for a renewal.", p.ExpirationDate.Format("Jan 2, 2006")),
			FireAt:     warnAt,
			Sound:      notification.SoundDefault,
			ActionType: model.ActionPrescriptionExpiring,
			Payload: model.NotificationPayload{
				"prescription_id": p.ID.String(),
			},
		}
		if err := s.notifSvc.Schedule(ctx, n); err != nil {
			s.logger.Error(err, "failed to schedule expiry warning", "prescription_id", p.ID.String())
		}
	}

	s.auditor.Log(ctx, req.PrescriberID, p.PatientID, "create", "prescription", p.ID, nil)
	return p, nil
}

func (s *Service) GetPrescription(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	return s.presRepo.Get(ctx, id)
}

func (s *Service) ListPrescriptions(ctx context.Context, patientID uuid.UUID) ([]*model.Prescription, error) {
	return s.presRepo.ListByPatient(ctx, patientID)
}

// RequestRefill validates the prescription, creates a pending pharmacy order
// with a 24h ready estimate, consumes one refill and schedules the
// refill-ready notification. Precondition failures happen before any write.
func (s *Service) RequestRefill(ctx context.Context, prescriptionID uuid.UUID, req *model.RequestRefillRequest) (*model.PharmacyOrder, error) {
	p, err := s.presRepo.Get(ctx, prescriptionID)
	if err != nil {
		return nil, err
	}

	if p.Status != model.PrescriptionStatusActive {
		return nil, apperrors.NewPrecondition("prescription is not active")
	}
	if p.RefillsLeft <= 0 {
		return nil, apperrors.NewPrecondition("no refills remaining")
	}

	now := time.Now()
	ready := now.Add(refillLeadTime)
	channel := model.ChannelPush
	if req != nil && req.NotifyChannel != "" {
		channel = req.NotifyChannel
	}

	order := &model.PharmacyOrder{
		PrescriptionID: p.ID,
		PatientID:      p.PatientID,
		Status:         model.PharmacyOrderStatusPending,
		RequestedAt:    now,
		EstimatedReady: &ready,
		NotifyChannel:  channel,
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, err
	}

	if err := s.presRepo.DecrementRefills(ctx, p.ID); err != nil {
		return nil, err
	}

	n := &model.ScheduledNotification{
		PatientID:  p.PatientID,
		DedupeKey:  fmt.Sprintf("refill_ready_%s", order.ID),
		Title:      "Refill Ready",
		Body:       "A medication refill should be ready for pickup.",
		FireAt:     ready,
		Sound:      notification.SoundDefault,
		ActionType: model.ActionRefillReady,
		Channel:    channel,
		Payload: model.NotificationPayload{
			"order_id": order.ID.String(),
		},
	}
	if err := s.notifSvc.Schedule(ctx, n); err != nil {
		s.logger.Error(err, "failed to schedule refill notification", "order_id", order.ID.String())
	}

	s.auditor.Log(ctx, uuid.Nil, p.PatientID, "request_refill", "pharmacy_order", order.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{"prescription_id": p.ID},
	})
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*model.PharmacyOrder, error) {
	return s.orderRepo.Get(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, patientID uuid.UUID) ([]*model.PharmacyOrder, error) {
	return s.orderRepo.ListByPatient(ctx, patientID)
}

// AdvanceOrder moves an order along pending -> processing -> ready ->
// completed, or to cancelled. Invalid transitions are rejected.
func (s *Service) AdvanceOrder(ctx context.Context, id uuid.UUID, next model.PharmacyOrderStatus) (*model.PharmacyOrder, error) {
	order, err := s.orderRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !order.CanTransitionTo(next) {
		return nil, apperrors.NewConflict(fmt.Sprintf("order cannot move from %s to %s", order.Status, next))
	}

	var completedAt *time.Time
	if next == model.PharmacyOrderStatusCompleted {
		now := time.Now()
		completedAt = &now
	}

	if err := s.orderRepo.UpdateStatus(ctx, id, next, completedAt); err != nil {
		return nil, err
	}

	order.Status = next
	order.CompletedAt = completedAt
	return order, nil
}

// CheckDrugInteractions gathers the named medications and delegates to the
// external interaction checker.
func (s *Service) CheckDrugInteractions(ctx context.Context, medicationIDs []uuid.UUID) ([]interaction.Finding, error) {
	names := make([]string, 0, len(medicationIDs))
	for _, id := range medicationIDs {
		med, err := s.medRepo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		names = append(names, med.Name)
	}

	return s.checker.Check(ctx, names)
}

// ExpireDuePrescriptions marks past-expiry active prescriptions expired.
// Run periodically by the worker.
func (s *Service) ExpireDuePrescriptions(ctx context.Context) (int64, error) {
	return s.presRepo.ExpireDue(ctx, time.Now())
}
