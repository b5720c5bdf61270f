package alert

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/cmw1990/connect-and-care-api/internal/model"
	"github.com/cmw1990/connect-and-care-api/internal/repository"
	"github.com/cmw1990/connect-and-care-api/internal/service/audit"
	"github.com/cmw1990/connect-and-care-api/internal/service/event"
	"github.com/cmw1990/connect-and-care-api/internal/service/notification"
	apperrors "github.com/cmw1990/connect-and-care-api/pkg/errors"
	"github.com/cmw1990/connect-and-care-api/pkg/logger"
	"github.com/cmw1990/connect-and-care-api/pkg/messaging"
	"github.com/cmw1990/connect-and-care-api/pkg/metrics"
)

// Service is the single point through which alert-producing features create,
// acknowledge and resolve care alerts, and the single consumer that turns
// active alerts into device notifications and haptic cues.
//
// Active alerts are mirrored in an in-memory cache refreshed from the
// care_alerts change channel; the database row is always the source of truth.
type Service struct {
	repo     repository.CareAlertRepository
	notifSvc notification.Service
	emitter  event.Emitter
	broker   messaging.Broker
	auditor  *audit.Service
	logger   *logger.Logger
	metrics  *metrics.Metrics

	active *gocache.Cache

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
}

func NewService(
	repo repository.CareAlertRepository,
	notifSvc notification.Service,
	emitter event.Emitter,
	broker messaging.Broker,
	auditor *audit.Service,
	logger *logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		repo:     repo,
		notifSvc: notifSvc,
		emitter:  emitter,
		broker:   broker,
		auditor:  auditor,
		logger:   logger,
		metrics:  m,
		active:   gocache.New(gocache.NoExpiration, 10*time.Minute),
	}
}

// Start subscribes to the care_alerts change channel and warms the active
// alert cache. Safe to call once; a second call is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	subCtx, cancel := context.WithCancel(ctx)

	msgCh, err := s.broker.Subscribe(subCtx, model.ChannelCareAlerts)
	if err != nil {
		cancel()
		return err
	}

	alerts, err := s.repo.ListActive(ctx, nil)
	if err != nil {
		cancel()
		return err
	}
	for _, alert := range alerts {
		s.active.Set(alert.ID.String(), alert, gocache.NoExpiration)
	}

	go s.consume(subCtx, msgCh)

	s.cancel = cancel
	s.started = true
	return nil
}

// Stop unsubscribes and clears the in-memory state. After Stop the service
// performs no further side effects on change events.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.cancel()
	s.active.Flush()
	s.started = false
}

func (s *Service) consume(ctx context.Context, msgCh <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			s.handleAlertEvent(ctx, msg)
		}
	}
}

// handleAlertEvent reacts to a care_alerts row change. Malformed payloads are
// logged and dropped; the subscriber never panics.
func (s *Service) handleAlertEvent(ctx context.Context, payload []byte) {
	var change model.ChangeEvent
	if err := json.Unmarshal(payload, &change); err != nil {
		s.logger.Error(err, "failed to decode alert change event")
		return
	}
	if change.New == nil {
		return
	}

	var alert model.CareAlert
	if err := json.Unmarshal(change.New, &alert); err != nil {
		s.logger.Error(err, "failed to decode alert row")
		return
	}

	if alert.Status != model.AlertStatusActive {
		s.active.Delete(alert.ID.String())
		return
	}

	_, known := s.active.Get(alert.ID.String())
	s.active.Set(alert.ID.String(), &alert, gocache.NoExpiration)

	if err := s.notifyAlert(ctx, &alert); err != nil {
		s.logger.Error(err, "failed to notify alert", "alert_id", alert.ID.String())
	}

	// Haptic cue only on the transition into active, not on every update.
	if !known && change.Op == model.ChangeOpInsert {
		s.sendFeedback(ctx, &alert)
	}
}

func (s *Service) notifyAlert(ctx context.Context, alert *model.CareAlert) error {
	return s.notifSvc.ScheduleAlert(ctx, alert)
}

func (s *Service) sendFeedback(ctx context.Context, alert *model.CareAlert) {
	feedback := model.DeviceFeedback{
		PatientID: alert.PatientID,
		Intensity: notification.FeedbackIntensity(alert.Priority),
	}
	if err := s.broker.Publish(ctx, model.DeviceFeedbackChannel(alert.PatientID), feedback); err != nil {
		s.logger.Error(err, "failed to publish device feedback", "alert_id", alert.ID.String())
	}
}

func (s *Service) CreateAlert(ctx context.Context, req *model.CreateAlertRequest) (*model.CareAlert, error) {
	alert := &model.CareAlert{
		PatientID:   req.PatientID,
		Type:        req.Type,
		Priority:    req.Priority,
		Status:      model.AlertStatusActive,
		Title:       req.Title,
		Description: req.Description,
		Metadata:    req.Metadata,
	}

	if err := s.repo.Create(ctx, alert); err != nil {
		return nil, err
	}

	s.metrics.AlertsRaised.WithLabelValues(string(alert.Type), string(alert.Priority)).Inc()

	if err := s.emitter.EmitChange(ctx, model.ChannelCareAlerts, model.ChangeOpInsert, alert, nil); err != nil {
		s.logger.Error(err, "failed to emit alert change", "alert_id", alert.ID.String())
	}

	s.auditor.Log(ctx, uuid.Nil, alert.PatientID, "create", "care_alert", alert.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{
			"type":     alert.Type,
			"priority": alert.Priority,
		},
	})

	return alert, nil
}

func (s *Service) AcknowledgeAlert(ctx context.Context, id, caregiverID uuid.UUID) (*model.CareAlert, error) {
	alert, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !alert.Status.CanTransitionTo(model.AlertStatusAcknowledged) {
		return nil, apperrors.NewConflict("alert cannot be acknowledged from status " + string(alert.Status))
	}

	old := *alert
	now := time.Now()
	alert.Status = model.AlertStatusAcknowledged
	alert.AcknowledgedAt = &now
	alert.CaregiverID = &caregiverID

	if err := s.repo.Update(ctx, alert); err != nil {
		return nil, err
	}

	if err := s.emitter.EmitChange(ctx, model.ChannelCareAlerts, model.ChangeOpUpdate, alert, &old); err != nil {
		s.logger.Error(err, "failed to emit alert change", "alert_id", alert.ID.String())
	}

	s.auditor.Log(ctx, caregiverID, alert.PatientID, "acknowledge", "care_alert", alert.ID, nil)
	return alert, nil
}

func (s *Service) ResolveAlert(ctx context.Context, id uuid.UUID, resolution string) (*model.CareAlert, error) {
	alert, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !alert.Status.CanTransitionTo(model.AlertStatusResolved) {
		return nil, apperrors.NewConflict("alert cannot be resolved from status " + string(alert.Status))
	}

	old := *alert
	now := time.Now()
	alert.Status = model.AlertStatusResolved
	alert.ResolvedAt = &now
	alert.Resolution = resolution

	if err := s.repo.Update(ctx, alert); err != nil {
		return nil, err
	}

	s.metrics.AlertsResolved.Inc()

	if err := s.emitter.EmitChange(ctx, model.ChannelCareAlerts, model.ChangeOpUpdate, alert, &old); err != nil {
		s.logger.Error(err, "failed to emit alert change", "alert_id", alert.ID.String())
	}

	var actor uuid.UUID
	if alert.CaregiverID != nil {
		actor = *alert.CaregiverID
	}
	s.auditor.Log(ctx, actor, alert.PatientID, "resolve", "care_alert", alert.ID, nil)
	return alert, nil
}

func (s *Service) GetAlert(ctx context.Context, id uuid.UUID) (*model.CareAlert, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetActiveAlerts(ctx context.Context, patientID *uuid.UUID) ([]*model.CareAlert, error) {
	return s.repo.ListActive(ctx, patientID)
}

func (s *Service) GetAlertHistory(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*model.CareAlert, error) {
	return s.repo.ListHistory(ctx, patientID, from, to)
}

// ActiveCount reports the size of the in-memory active set. Exposed for
// health reporting and tests.
func (s *Service) ActiveCount() int {
	return s.active.ItemCount()
}
