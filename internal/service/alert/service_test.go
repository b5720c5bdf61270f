package alert

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmw1990/connect-and-care-api/internal/model"
	"github.com/cmw1990/connect-and-care-api/internal/service/audit"
	apperrors "github.com/cmw1990/connect-and-care-api/pkg/errors"
	"github.com/cmw1990/connect-and-care-api/pkg/logger"
	"github.com/cmw1990/connect-and-care-api/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("alert_test", "svc")

type fakeAlertRepo struct {
	mu     sync.Mutex
	alerts map[uuid.UUID]*model.CareAlert
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{alerts: make(map[uuid.UUID]*model.CareAlert)}
}

func (r *fakeAlertRepo) Create(_ context.Context, alert *model.CareAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	stored := *alert
	r.alerts[alert.ID] = &stored
	return nil
}

func (r *fakeAlertRepo) Get(_ context.Context, id uuid.UUID) (*model.CareAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	alert, ok := r.alerts[id]
	if !ok {
		return nil, apperrors.NewNotFound("care alert", nil)
	}
	copied := *alert
	return &copied, nil
}

func (r *fakeAlertRepo) Update(_ context.Context, alert *model.CareAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *alert
	r.alerts[alert.ID] = &stored
	return nil
}

func (r *fakeAlertRepo) ListActive(_ context.Context, patientID *uuid.UUID) ([]*model.CareAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.CareAlert
	for _, alert := range r.alerts {
		if alert.Status != model.AlertStatusActive {
			continue
		}
		if patientID != nil && alert.PatientID != *patientID {
			continue
		}
		copied := *alert
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeAlertRepo) ListHistory(_ context.Context, _ uuid.UUID, _, _ time.Time) ([]*model.CareAlert, error) {
	return nil, nil
}

type fakeNotifService struct {
	mu     sync.Mutex
	alerts []*model.CareAlert
}

func (f *fakeNotifService) Schedule(_ context.Context, _ *model.ScheduledNotification) error {
	return nil
}

func (f *fakeNotifService) ScheduleAlert(_ context.Context, alert *model.CareAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeNotifService) Cancel(_ context.Context, _ string) error { return nil }

func (f *fakeNotifService) CancelForMedication(_ context.Context, _ uuid.UUID) (int64, error) {
	return 0, nil
}

func (f *fakeNotifService) CountScheduledForMedication(_ context.Context, _ uuid.UUID) (int, error) {
	return 0, nil
}

func (f *fakeNotifService) scheduledAlerts() []*model.CareAlert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.CareAlert(nil), f.alerts...)
}

type fakeBroker struct {
	mu        sync.Mutex
	published map[string][]interface{}
	subs      map[string]chan []byte
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		published: make(map[string][]interface{}),
		subs:      make(map[string]chan []byte),
	}
}

func (b *fakeBroker) Publish(_ context.Context, channel string, message interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], message)
	return nil
}

func (b *fakeBroker) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan []byte, 16)
	b.subs[channel] = ch
	return ch, nil
}

func (b *fakeBroker) Close() error { return nil }

func (b *fakeBroker) publishedOn(channel string) []interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]interface{}(nil), b.published[channel]...)
}

type fakeEmitter struct {
	mu      sync.Mutex
	changes []string
}

func (e *fakeEmitter) EmitChange(_ context.Context, table string, op model.ChangeOp, _, _ interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.changes = append(e.changes, table+":"+string(op))
	return nil
}

type fakeAuditRepo struct{}

func (fakeAuditRepo) Create(_ context.Context, _ *model.AuditLog) error { return nil }
func (fakeAuditRepo) List(_ context.Context, _ uuid.UUID, _, _ time.Time) ([]*model.AuditLog, error) {
	return nil, nil
}

type testEnv struct {
	svc     *Service
	repo    *fakeAlertRepo
	notif   *fakeNotifService
	broker  *fakeBroker
	emitter *fakeEmitter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	l := logger.NewLogger(nil)
	env := &testEnv{
		repo:    newFakeAlertRepo(),
		notif:   &fakeNotifService{},
		broker:  newFakeBroker(),
		emitter: &fakeEmitter{},
	}
	env.svc = NewService(env.repo, env.notif, env.emitter, env.broker,
		audit.NewService(fakeAuditRepo{}, l), l, testMetrics)
	return env
}

func changePayload(t *testing.T, op model.ChangeOp, alert *model.CareAlert) []byte {
	t.Helper()
	row, err := json.Marshal(alert)
	require.NoError(t, err)
	payload, err := json.Marshal(model.ChangeEvent{
		Table: model.ChannelCareAlerts,
		Op:    op,
		New:   row,
	})
	require.NoError(t, err)
	return payload
}

func TestCreateAlert(t *testing.T) {
	env := newTestEnv(t)

	alert, err := env.svc.CreateAlert(context.Background(), &model.CreateAlertRequest{
		PatientID: uuid.New(),
		Type:      model.AlertTypeEmergency,
		Priority:  model.AlertPriorityHigh,
		Title:     "Fall detected",
	})
	require.NoError(t, err)

	assert.Equal(t, model.AlertStatusActive, alert.Status)
	assert.NotEqual(t, uuid.Nil, alert.ID)
	assert.Contains(t, env.emitter.changes, model.ChannelCareAlerts+":INSERT")
}

func TestAlertStatusIsMonotonic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alert, err := env.svc.CreateAlert(ctx, &model.CreateAlertRequest{
		PatientID: uuid.New(),
		Type:      model.AlertTypeVitalSigns,
		Priority:  model.AlertPriorityMedium,
		Title:     "Elevated heart rate",
	})
	require.NoError(t, err)

	caregiverID := uuid.New()

	acked, err := env.svc.AcknowledgeAlert(ctx, alert.ID, caregiverID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertStatusAcknowledged, acked.Status)
	require.NotNil(t, acked.AcknowledgedAt)
	require.NotNil(t, acked.CaregiverID)
	assert.Equal(t, caregiverID, *acked.CaregiverID)

	// A second acknowledge must not succeed.
	_, err = env.svc.AcknowledgeAlert(ctx, alert.ID, caregiverID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrConflict, apperrors.CodeOf(err))

	resolved, err := env.svc.ResolveAlert(ctx, alert.ID, "checked on patient")
	require.NoError(t, err)
	assert.Equal(t, model.AlertStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	// Resolved is terminal.
	_, err = env.svc.AcknowledgeAlert(ctx, alert.ID, caregiverID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrConflict, apperrors.CodeOf(err))
	_, err = env.svc.ResolveAlert(ctx, alert.ID, "again")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrConflict, apperrors.CodeOf(err))
}

func TestResolveSkippingAcknowledge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alert, err := env.svc.CreateAlert(ctx, &model.CreateAlertRequest{
		PatientID: uuid.New(),
		Type:      model.AlertTypeCareUpdate,
		Priority:  model.AlertPriorityLow,
		Title:     "Care plan updated",
	})
	require.NoError(t, err)

	resolved, err := env.svc.ResolveAlert(ctx, alert.ID, "resolved directly")
	require.NoError(t, err)
	assert.Equal(t, model.AlertStatusResolved, resolved.Status)
}

func TestHandleAlertEventHapticOnlyOnNewActive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	patientID := uuid.New()
	alert := &model.CareAlert{
		ID:        uuid.New(),
		PatientID: patientID,
		Type:      model.AlertTypeEmergency,
		Priority:  model.AlertPriorityHigh,
		Status:    model.AlertStatusActive,
		Title:     "Fall detected",
	}

	env.svc.handleAlertEvent(ctx, changePayload(t, model.ChangeOpInsert, alert))

	feedback := env.broker.publishedOn(model.DeviceFeedbackChannel(patientID))
	require.Len(t, feedback, 1)
	fb, ok := feedback[0].(model.DeviceFeedback)
	require.True(t, ok)
	assert.Equal(t, model.FeedbackHeavy, fb.Intensity)
	assert.Len(t, env.notif.scheduledAlerts(), 1)
	assert.Equal(t, 1, env.svc.ActiveCount())

	// An update to the same active alert re-notifies but does not buzz again.
	env.svc.handleAlertEvent(ctx, changePayload(t, model.ChangeOpUpdate, alert))
	assert.Len(t, env.broker.publishedOn(model.DeviceFeedbackChannel(patientID)), 1)
	assert.Len(t, env.notif.scheduledAlerts(), 2)

	// Leaving active evicts from the in-memory set.
	alert.Status = model.AlertStatusResolved
	env.svc.handleAlertEvent(ctx, changePayload(t, model.ChangeOpUpdate, alert))
	assert.Zero(t, env.svc.ActiveCount())
}

func TestHandleAlertEventFeedbackIntensityByPriority(t *testing.T) {
	cases := []struct {
		priority  model.AlertPriority
		intensity string
	}{
		{model.AlertPriorityHigh, model.FeedbackHeavy},
		{model.AlertPriorityMedium, model.FeedbackMedium},
		{model.AlertPriorityLow, model.FeedbackLight},
	}

	for _, tc := range cases {
		t.Run(string(tc.priority), func(t *testing.T) {
			env := newTestEnv(t)
			patientID := uuid.New()
			alert := &model.CareAlert{
				ID:        uuid.New(),
				PatientID: patientID,
				Type:      model.AlertTypeCareUpdate,
				Priority:  tc.priority,
				Status:    model.AlertStatusActive,
				Title:     "Update",
			}

			env.svc.handleAlertEvent(context.Background(), changePayload(t, model.ChangeOpInsert, alert))

			feedback := env.broker.publishedOn(model.DeviceFeedbackChannel(patientID))
			require.Len(t, feedback, 1)
			fb := feedback[0].(model.DeviceFeedback)
			assert.Equal(t, tc.intensity, fb.Intensity)
		})
	}
}

func TestHandleAlertEventMalformedPayload(t *testing.T) {
	env := newTestEnv(t)

	env.svc.handleAlertEvent(context.Background(), []byte("not json"))

	assert.Zero(t, env.svc.ActiveCount())
	assert.Empty(t, env.notif.scheduledAlerts())
}

func TestStartWarmsCacheAndStopClearsIt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.CreateAlert(ctx, &model.CreateAlertRequest{
		PatientID: uuid.New(),
		Type:      model.AlertTypeEmergency,
		Priority:  model.AlertPriorityHigh,
		Title:     "Fall detected",
	})
	require.NoError(t, err)

	require.NoError(t, env.svc.Start(ctx))
	assert.Equal(t, 1, env.svc.ActiveCount())

	// Second Start is a no-op.
	require.NoError(t, env.svc.Start(ctx))
	assert.Equal(t, 1, env.svc.ActiveCount())

	env.svc.Stop()
	assert.Zero(t, env.svc.ActiveCount())

	// After Stop, events on the channel cause no further side effects.
	before := len(env.notif.scheduledAlerts())
	alert := &model.CareAlert{
		ID:        uuid.New(),
		PatientID: uuid.New(),
		Type:      model.AlertTypeEmergency,
		Priority:  model.AlertPriorityHigh,
		Status:    model.AlertStatusActive,
		Title:     "Late event",
	}
	env.broker.subs[model.ChannelCareAlerts] <- changePayload(t, model.ChangeOpInsert, alert)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, env.notif.scheduledAlerts(), before)
	assert.Zero(t, env.svc.ActiveCount())
}
