package medication

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/cmw1990/connect-and-care-api/internal/model"
	"github.com/cmw1990/connect-and-care-api/internal/repository"
	"github.com/cmw1990/connect-and-care-api/internal/service/alert"
	"github.com/cmw1990/connect-and-care-api/internal/service/audit"
	"github.com/cmw1990/connect-and-care-api/internal/service/event"
	"github.com/cmw1990/connect-and-care-api/internal/service/notification"
	"github.com/cmw1990/connect-and-care-api/pkg/logger"
	"github.com/cmw1990/connect-and-care-api/pkg/messaging"
	"github.com/cmw1990/connect-and-care-api/pkg/metrics"
)

const (
	// adherenceWindow is the number of most recent resolved logs the
	// adherence rate is computed from.
	adherenceWindow = 30

	// lowAdherenceThreshold raises a high-priority alert when the rate
	// drops strictly below it.
	lowAdherenceThreshold = 80.0
)

// Service keeps the set of active medications for the process in memory and
// keeps durable reminders synchronized with each medication's weekly
// schedule. It reacts to medication and medication-log change events the same
// way the rest of the system does: through the broker channels.
type Service struct {
	repo     repository.MedicationRepository
	logRepo  repository.MedicationLogRepository
	notifSvc notification.Service
	alertSvc *alert.Service
	emitter  event.Emitter
	broker   messaging.Broker
	auditor  *audit.Service
	logger   *logger.Logger
	metrics  *metrics.Metrics

	activeMedications *gocache.Cache

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
}

func NewService(
	repo repository.MedicationRepository,
	logRepo repository.MedicationLogRepository,
	notifSvc notification.Service,
	alertSvc *alert.Service,
	emitter event.Emitter,
	broker messaging.Broker,
	auditor *audit.Service,
	logger *logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		repo:              repo,
		logRepo:           logRepo,
		notifSvc:          notifSvc,
		alertSvc:          alertSvc,
		emitter:           emitter,
		broker:            broker,
		auditor:           auditor,
		logger:            logger,
		metrics:           m,
		activeMedications: gocache.New(gocache.NoExpiration, 10*time.Minute),
	}
}

// Start subscribes to the medication and medication-log change channels,
// loads active medications into memory and expands reminders for each.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	subCtx, cancel := context.WithCancel(ctx)

	medCh, err := s.broker.Subscribe(subCtx, model.ChannelMedications)
	if err != nil {
		cancel()
		return err
	}
	logCh, err := s.broker.Subscribe(subCtx, model.ChannelMedicationLogs)
	if err != nil {
		cancel()
		return err
	}

	medications, err := s.repo.ListActive(ctx)
	if err != nil {
		cancel()
		return err
	}
	for _, med := range medications {
		s.activeMedications.Set(med.ID.String(), med, gocache.NoExpiration)
		if err := s.ScheduleReminders(ctx, med); err != nil {
			s.logger.Error(err, "failed to schedule reminders", "medication_id", med.ID.String())
		}
	}

	go s.consume(subCtx, medCh, s.handleMedicationEvent)
	go s.consume(subCtx, logCh, s.handleLogEvent)

	s.cancel = cancel
	s.started = true
	return nil
}

// Stop unsubscribes the change channels and clears the in-memory set.
// Durable reminders stay persisted; the dispatcher keeps firing them.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.cancel()
	s.activeMedications.Flush()
	s.started = false
}

func (s *Service) consume(ctx context.Context, msgCh <-chan []byte, handle func(context.Context, []byte)) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			handle(ctx, msg)
		}
	}
}

// ScheduleReminders expands a medication's weekly schedule into durable
// notification rows, one per future qualifying occurrence. The expansion is
// idempotent: previously scheduled reminders for the medication are cancelled
// first, so editing a medication never produces duplicate firings.
func (s *Service) ScheduleReminders(ctx context.Context, med *model.Medication) error {
	if _, err := s.ClearReminders(ctx, med.ID); err != nil {
		return err
	}

	occurrences, err := expandSchedule(med.Schedule, time.Now())
	if err != nil {
		return fmt.Errorf("failed to expand schedule: %w", err)
	}

	for _, fireAt := range occurrences {
		n := &model.ScheduledNotification{
			PatientID:  med.PatientID,
			DedupeKey:  notification.ReminderKey(med.ID, fireAt),
			Title:      "💊 Medication Reminder",
			Body:       fmt.Sprintf("Time to take %s (%s)", med.Name, med.Dosage),
			FireAt:     fireAt,
			Sound:      notification.SoundDefault,
			ActionType: model.ActionMedicationReminder,
			Payload: model.NotificationPayload{
				"medication_id": med.ID.String(),
			},
		}
		if err := s.notifSvc.Schedule(ctx, n); err != nil {
			return fmt.Errorf("failed to schedule reminder: %w", err)
		}
		s.metrics.RemindersScheduled.Inc()
	}

	return nil
}

// ClearReminders cancels every pending reminder for a medication.
func (s *Service) ClearReminders(ctx context.Context, medicationID uuid.UUID) (int64, error) {
	cancelled, err := s.notifSvc.CancelForMedication(ctx, medicationID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear reminders: %w", err)
	}
	for i := int64(0); i < cancelled; i++ {
		s.metrics.RemindersCancelled.Inc()
	}
	return cancelled, nil
}

// ScheduledReminderCount reports how many reminders are still scheduled for a
// medication.
func (s *Service) ScheduledReminderCount(ctx context.Context, medicationID uuid.UUID) (int, error) {
	return s.notifSvc.CountScheduledForMedication(ctx, medicationID)
}

// handleMedicationEvent reacts to a medications row change: an active
// medication gets its reminders re-expanded, anything else is evicted and its
// reminders cancelled.
func (s *Service) handleMedicationEvent(ctx context.Context, payload []byte) {
	var change model.ChangeEvent
	if err := json.Unmarshal(payload, &change); err != nil {
		s.logger.Error(err, "failed to decode medication change event")
		return
	}
	if change.New == nil {
		return
	}

	var med model.Medication
	if err := json.Unmarshal(change.New, &med); err != nil {
		s.logger.Error(err, "failed to decode medication row")
		return
	}

	if med.Status == model.MedicationStatusActive {
		s.activeMedications.Set(med.ID.String(), &med, gocache.NoExpiration)
		if err := s.ScheduleReminders(ctx, &med); err != nil {
			s.logger.Error(err, "failed to reschedule reminders", "medication_id", med.ID.String())
		}
		s.sendFeedback(ctx, med.PatientID, model.FeedbackLight)
		return
	}

	s.activeMedications.Delete(med.ID.String())
	if _, err := s.ClearReminders(ctx, med.ID); err != nil {
		s.logger.Error(err, "failed to clear reminders", "medication_id", med.ID.String())
	}
}

// handleLogEvent reacts to a medication_logs row change: a taken dose
// triggers an adherence recompute and a stronger haptic cue, a missed dose
// raises a medium-priority care alert.
func (s *Service) handleLogEvent(ctx context.Context, payload []byte) {
	var change model.ChangeEvent
	if err := json.Unmarshal(payload, &change); err != nil {
		s.logger.Error(err, "failed to decode medication log change event")
		return
	}
	if change.New == nil {
		return
	}

	var log model.MedicationLog
	if err := json.Unmarshal(change.New, &log); err != nil {
		s.logger.Error(err, "failed to decode medication log row")
		return
	}

	switch log.Status {
	case model.MedicationLogStatusTaken:
		s.sendFeedback(ctx, log.PatientID, model.FeedbackMedium)
		if err := s.UpdateAdherenceRate(ctx, log.MedicationID); err != nil {
			s.logger.Error(err, "failed to update adherence rate", "medication_id", log.MedicationID.String())
		}
	case model.MedicationLogStatusMissed:
		if err := s.createMissedDoseAlert(ctx, &log); err != nil {
			s.logger.Error(err, "failed to create missed dose alert", "log_id", log.ID.String())
		}
	}
}

func (s *Service) sendFeedback(ctx context.Context, patientID uuid.UUID, intensity string) {
	feedback := model.DeviceFeedback{PatientID: patientID, Intensity: intensity}
	if err := s.broker.Publish(ctx, model.DeviceFeedbackChannel(patientID), feedback); err != nil {
		s.logger.Error(err, "failed to publish device feedback")
	}
}

func (s *Service) createMissedDoseAlert(ctx context.Context, log *model.MedicationLog) error {
	med, err := s.repo.Get(ctx, log.MedicationID)
	if err != nil {
		return fmt.Errorf("failed to get medication: %w", err)
	}

	scheduled := log.ScheduledTime
	_, err = s.alertSvc.CreateAlert(ctx, &model.CreateAlertRequest{
		PatientID:   log.PatientID,
		Type:        model.AlertTypeMedication,
		Priority:    model.AlertPriorityMedium,
		Title:       "Missed Medication Dose",
		Description: fmt.Sprintf("%s dose scheduled for %s was missed", med.Name, scheduled.Format("3:04 PM")),
		Metadata: model.AlertMetadata{
			MedicationDetails: &model.MedicationDetails{
				Name:          med.Name,
				Dosage:        med.Dosage,
				ScheduledTime: &scheduled,
			},
		},
	})
	return err
}

// UpdateAdherenceRate recomputes a medication's adherence from its most
// recent resolved logs and writes it back. With zero logs the stored rate is
// left untouched. A rate strictly below the threshold raises a high-priority
// alert; exactly the threshold does not.
func (s *Service) UpdateAdherenceRate(ctx context.Context, medicationID uuid.UUID) error {
	logs, err := s.logRepo.ListRecent(ctx, medicationID, adherenceWindow)
	if err != nil {
		return fmt.Errorf("failed to list recent logs: %w", err)
	}
	if len(logs) == 0 {
		return nil
	}

	taken := 0
	for _, log := range logs {
		if log.Status == model.MedicationLogStatusTaken {
			taken++
		}
	}
	rate := float64(taken) / float64(len(logs)) * 100

	if err := s.repo.UpdateAdherenceRate(ctx, medicationID, rate); err != nil {
		return err
	}

	if rate < lowAdherenceThreshold {
		med, err := s.repo.Get(ctx, medicationID)
		if err != nil {
			return fmt.Errorf("failed to get medication: %w", err)
		}
		_, err = s.alertSvc.CreateAlert(ctx, &model.CreateAlertRequest{
			PatientID:   med.PatientID,
			Type:        model.AlertTypeMedication,
			Priority:    model.AlertPriorityHigh,
			Title:       "Low Medication Adherence",
			Description: fmt.Sprintf("%s adherence is at %.0f%% over the last %d doses", med.Name, rate, len(logs)),
			Metadata: model.AlertMetadata{
				MedicationDetails: &model.MedicationDetails{
					Name:   med.Name,
					Dosage: med.Dosage,
				},
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create low adherence alert: %w", err)
		}
	}

	return nil
}

func (s *Service) CreateMedication(ctx context.Context, req *model.CreateMedicationRequest) (*model.Medication, error) {
	med := &model.Medication{
		PatientID:    req.PatientID,
		Name:         req.Name,
		Dosage:       req.Dosage,
		Frequency:    req.Frequency,
		Schedule:     req.Schedule,
		Instructions: req.Instructions,
		Status:       model.MedicationStatusActive,
		PrescriberID: req.PrescriberID,
		Pharmacy:     req.Pharmacy,
		RefillsLeft:  req.RefillsLeft,
	}

	if err := s.repo.Create(ctx, med); err != nil {
		return nil, err
	}

	if err := s.emitter.EmitChange(ctx, model.ChannelMedications, model.ChangeOpInsert, med, nil); err != nil {
		s.logger.Error(err, "failed to emit medication change", "medication_id", med.ID.String())
	}

	s.auditor.Log(ctx, req.PrescriberID, med.PatientID, "create", "medication", med.ID, nil)
	return med, nil
}

func (s *Service) GetMedication(ctx context.Context, id uuid.UUID) (*model.Medication, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListMedications(ctx context.Context, filters *model.MedicationFilters) ([]*model.Medication, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) UpdateMedication(ctx context.Context, id uuid.UUID, req *model.UpdateMedicationRequest) (*model.Medication, error) {
	med, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	old := *med

	if req.Dosage != nil {
		med.Dosage = *req.Dosage
	}
	if req.Frequency != nil {
		med.Frequency = *req.Frequency
	}
	if req.Schedule != nil {
		med.Schedule = *req.Schedule
	}
	if req.Instructions != nil {
		med.Instructions = *req.Instructions
	}
	if req.Status != nil {
		med.Status = *req.Status
	}
	if req.Pharmacy != nil {
		med.Pharmacy = req.Pharmacy
	}

	if err := s.repo.Update(ctx, med); err != nil {
		return nil, err
	}

	if err := s.emitter.EmitChange(ctx, model.ChannelMedications, model.ChangeOpUpdate, med, &old); err != nil {
		s.logger.Error(err, "failed to emit medication change", "medication_id", med.ID.String())
	}

	s.auditor.Log(ctx, uuid.Nil, med.PatientID, "update", "medication", med.ID, nil)
	return med, nil
}

// DiscontinueMedication supersedes deletion: the row stays, reminders go.
func (s *Service) DiscontinueMedication(ctx context.Context, id uuid.UUID) (*model.Medication, error) {
	status := model.MedicationStatusDiscontinued
	return s.UpdateMedication(ctx, id, &model.UpdateMedicationRequest{Status: &status})
}

// LogDose transitions a pending dose log to taken or skipped. Logs whose
// status already left pending are immutable and the transition is rejected.
func (s *Service) LogDose(ctx context.Context, logID uuid.UUID, req *model.LogDoseRequest) (*model.MedicationLog, error) {
	log, err := s.logRepo.Get(ctx, logID)
	if err != nil {
		return nil, err
	}
	old := *log

	var takenTime *time.Time
	if req.Status == model.MedicationLogStatusTaken {
		now := time.Now()
		takenTime = &now
	}

	if err := s.logRepo.UpdateStatus(ctx, logID, req.Status, takenTime, req.Notes, req.SideEffects); err != nil {
		return nil, err
	}

	log.Status = req.Status
	log.TakenTime = takenTime
	log.Notes = req.Notes
	log.SideEffects = req.SideEffects

	if err := s.emitter.EmitChange(ctx, model.ChannelMedicationLogs, model.ChangeOpUpdate, log, &old); err != nil {
		s.logger.Error(err, "failed to emit medication log change", "log_id", log.ID.String())
	}

	s.auditor.Log(ctx, uuid.Nil, log.PatientID, "log_dose", "medication_log", log.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{"status": req.Status},
	})
	return log, nil
}

// CreateDoseLog records a pending dose occurrence, normally created when a
// reminder fires.
func (s *Service) CreateDoseLog(ctx context.Context, medicationID, patientID uuid.UUID, scheduledTime time.Time) (*model.MedicationLog, error) {
	log := &model.MedicationLog{
		MedicationID:  medicationID,
		PatientID:     patientID,
		ScheduledTime: scheduledTime,
		Status:        model.MedicationLogStatusPending,
	}
	if err := s.logRepo.Create(ctx, log); err != nil {
		return nil, err
	}

	if err := s.emitter.EmitChange(ctx, model.ChannelMedicationLogs, model.ChangeOpInsert, log, nil); err != nil {
		s.logger.Error(err, "failed to emit medication log change", "log_id", log.ID.String())
	}
	return log, nil
}

func (s *Service) ListDoseLogs(ctx context.Context, filters *model.MedicationLogFilters) ([]*model.MedicationLog, error) {
	return s.logRepo.List(ctx, filters)
}

// MarkOverdueDoses flips pending logs past the grace window to missed and
// emits a change event per transitioned row. Run periodically by the worker.
func (s *Service) MarkOverdueDoses(ctx context.Context, grace time.Duration) (int, error) {
	logs, err := s.logRepo.MarkOverdue(ctx, time.Now().Add(-grace))
	if err != nil {
		return 0, err
	}

	for _, log := range logs {
		if err := s.emitter.EmitChange(ctx, model.ChannelMedicationLogs, model.ChangeOpUpdate, log, nil); err != nil {
			s.logger.Error(err, "failed to emit missed dose change", "log_id", log.ID.String())
		}
	}
	return len(logs), nil
}

// ActiveCount reports the size of the in-memory active medication set.
func (s *Service) ActiveCount() int {
	return s.activeMedications.ItemCount()
}
