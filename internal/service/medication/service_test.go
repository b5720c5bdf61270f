package medication

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmw1990/connect-and-care-api/internal/model"
	alertService "github.com/cmw1990/connect-and-care-api/internal/service/alert"
	"github.com/cmw1990/connect-and-care-api/internal/service/audit"
	"github.com/cmw1990/connect-and-care-api/internal/service/notification"
	apperrors "github.com/cmw1990/connect-and-care-api/pkg/errors"
	"github.com/cmw1990/connect-and-care-api/pkg/logger"
	"github.com/cmw1990/connect-and-care-api/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("medication_test", "svc")

type fakeMedicationRepo struct {
	mu             sync.Mutex
	meds           map[uuid.UUID]*model.Medication
	adherenceRates map[uuid.UUID]float64
}

func newFakeMedicationRepo() *fakeMedicationRepo {
	return &fakeMedicationRepo{
		meds:           make(map[uuid.UUID]*model.Medication),
		adherenceRates: make(map[uuid.UUID]float64),
	}
}

func (r *fakeMedicationRepo) Create(_ context.Context, med *model.Medication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if med.ID == uuid.Nil {
		med.ID = uuid.New()
	}
	r.meds[med.ID] = med
	return nil
}

func (r *fakeMedicationRepo) Get(_ context.Context, id uuid.UUID) (*model.Medication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	med, ok := r.meds[id]
	if !ok {
		return nil, apperrors.NewNotFound("medication", nil)
	}
	return med, nil
}

func (r *fakeMedicationRepo) Update(_ context.Context, med *model.Medication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meds[med.ID] = med
	return nil
}

func (r *fakeMedicationRepo) UpdateAdherenceRate(_ context.Context, id uuid.UUID, rate float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adherenceRates[id] = rate
	return nil
}

func (r *fakeMedicationRepo) List(_ context.Context, _ *model.MedicationFilters) ([]*model.Medication, error) {
	return nil, nil
}

func (r *fakeMedicationRepo) ListActive(_ context.Context) ([]*model.Medication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Medication
	for _, med := range r.meds {
		if med.Status == model.MedicationStatusActive {
			out = append(out, med)
		}
	}
	return out, nil
}

type fakeLogRepo struct {
	recent []*model.MedicationLog
}

func (r *fakeLogRepo) Create(_ context.Context, log *model.MedicationLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	return nil
}

func (r *fakeLogRepo) Get(_ context.Context, _ uuid.UUID) (*model.MedicationLog, error) {
	return nil, apperrors.NewNotFound("medication log", nil)
}

func (r *fakeLogRepo) UpdateStatus(_ context.Context, _ uuid.UUID, _ model.MedicationLogStatus, _ *time.Time, _ string, _ []string) error {
	return nil
}

func (r *fakeLogRepo) List(_ context.Context, _ *model.MedicationLogFilters) ([]*model.MedicationLog, error) {
	return nil, nil
}

func (r *fakeLogRepo) ListRecent(_ context.Context, _ uuid.UUID, _ int) ([]*model.MedicationLog, error) {
	return r.recent, nil
}

func (r *fakeLogRepo) MarkOverdue(_ context.Context, _ time.Time) ([]*model.MedicationLog, error) {
	return nil, nil
}

// fakeNotificationService mirrors the repository's dedupe-key upsert.
type fakeNotificationService struct {
	mu        sync.Mutex
	scheduled map[string]*model.ScheduledNotification
	alerts    []*model.CareAlert
	cancelled int64
}

func newFakeNotificationService() *fakeNotificationService {
	return &fakeNotificationService{scheduled: make(map[string]*model.ScheduledNotification)}
}

func (f *fakeNotificationService) Schedule(_ context.Context, n *model.ScheduledNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled[n.DedupeKey] = n
	return nil
}

func (f *fakeNotificationService) ScheduleAlert(_ context.Context, alert *model.CareAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeNotificationService) Cancel(_ context.Context, dedupeKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.scheduled, dedupeKey)
	return nil
}

func (f *fakeNotificationService) CancelForMedication(_ context.Context, medicationID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := notification.ReminderKeyPrefix(medicationID)
	var n int64
	for key := range f.scheduled {
		if strings.HasPrefix(key, prefix) {
			delete(f.scheduled, key)
			n++
		}
	}
	f.cancelled += n
	return n, nil
}

func (f *fakeNotificationService) CountScheduledForMedication(_ context.Context, medicationID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := notification.ReminderKeyPrefix(medicationID)
	count := 0
	for key := range f.scheduled {
		if strings.HasPrefix(key, prefix) {
			count++
		}
	}
	return count, nil
}

func (f *fakeNotificationService) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.scheduled))
	for key := range f.scheduled {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
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

type fakeAlertRepo struct {
	mu      sync.Mutex
	created []*model.CareAlert
}

func (r *fakeAlertRepo) Create(_ context.Context, alert *model.CareAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	r.created = append(r.created, alert)
	return nil
}

func (r *fakeAlertRepo) Get(_ context.Context, _ uuid.UUID) (*model.CareAlert, error) {
	return nil, apperrors.NewNotFound("care alert", nil)
}

func (r *fakeAlertRepo) Update(_ context.Context, _ *model.CareAlert) error { return nil }

func (r *fakeAlertRepo) ListActive(_ context.Context, _ *uuid.UUID) ([]*model.CareAlert, error) {
	return nil, nil
}

func (r *fakeAlertRepo) ListHistory(_ context.Context, _ uuid.UUID, _, _ time.Time) ([]*model.CareAlert, error) {
	return nil, nil
}

type fakeAuditRepo struct{}

func (fakeAuditRepo) Create(_ context.Context, _ *model.AuditLog) error { return nil }
func (fakeAuditRepo) List(_ context.Context, _ uuid.UUID, _, _ time.Time) ([]*model.AuditLog, error) {
	return nil, nil
}

type testEnv struct {
	svc       *Service
	medRepo   *fakeMedicationRepo
	logRepo   *fakeLogRepo
	notif     *fakeNotificationService
	broker    *fakeBroker
	emitter   *fakeEmitter
	alertRepo *fakeAlertRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	l := logger.NewLogger(nil)
	auditor := audit.NewService(fakeAuditRepo{}, l)

	env := &testEnv{
		medRepo:   newFakeMedicationRepo(),
		logRepo:   &fakeLogRepo{},
		notif:     newFakeNotificationService(),
		broker:    newFakeBroker(),
		emitter:   &fakeEmitter{},
		alertRepo: &fakeAlertRepo{},
	}

	alertSvc := alertService.NewService(env.alertRepo, env.notif, env.emitter, env.broker, auditor, l, testMetrics)
	env.svc = NewService(env.medRepo, env.logRepo, env.notif, alertSvc, env.emitter, env.broker, auditor, l, testMetrics)
	return env
}

func activeMedication(patientID uuid.UUID) *model.Medication {
	start := time.Now().Add(-24 * time.Hour)
	end := time.Now().Add(72 * time.Hour)
	return &model.Medication{
		ID:        uuid.New(),
		PatientID: patientID,
		Name:      "Lisinopril",
		Dosage:    "10mg",
		Frequency: "daily",
		Status:    model.MedicationStatusActive,
		Schedule: model.Schedule{
			Times:      []string{"09:00"},
			DaysOfWeek: []int{0, 1, 2, 3, 4, 5, 6},
			StartDate:  start,
			EndDate:    &end,
		},
	}
}

func TestScheduleRemindersIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	med := activeMedication(uuid.New())

	require.NoError(t, env.svc.ScheduleReminders(ctx, med))
	first := env.notif.keys()
	require.NotEmpty(t, first)

	require.NoError(t, env.svc.ScheduleReminders(ctx, med))
	second := env.notif.keys()

	assert.Equal(t, first, second)

	prefix := notification.ReminderKeyPrefix(med.ID)
	for _, key := range second {
		assert.True(t, strings.HasPrefix(key, prefix))
	}
}

func TestDiscontinuedMedicationClearsReminders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	med := activeMedication(uuid.New())

	require.NoError(t, env.svc.ScheduleReminders(ctx, med))
	count, err := env.svc.ScheduledReminderCount(ctx, med.ID)
	require.NoError(t, err)
	require.Greater(t, count, 0)

	med.Status = model.MedicationStatusDiscontinued
	row, err := json.Marshal(med)
	require.NoError(t, err)
	payload, err := json.Marshal(model.ChangeEvent{
		Table: model.ChannelMedications,
		Op:    model.ChangeOpUpdate,
		New:   row,
	})
	require.NoError(t, err)

	env.svc.handleMedicationEvent(ctx, payload)

	count, err = env.svc.ScheduledReminderCount(ctx, med.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, env.svc.ActiveCount())
}

func TestUpdateAdherenceRate(t *testing.T) {
	t.Run("no logs leaves rate untouched", func(t *testing.T) {
		env := newTestEnv(t)
		med := activeMedication(uuid.New())
		require.NoError(t, env.medRepo.Create(context.Background(), med))

		require.NoError(t, env.svc.UpdateAdherenceRate(context.Background(), med.ID))

		assert.Empty(t, env.medRepo.adherenceRates)
		assert.Empty(t, env.alertRepo.created)
	})

	t.Run("exactly at threshold does not alert", func(t *testing.T) {
		env := newTestEnv(t)
		med := activeMedication(uuid.New())
		require.NoError(t, env.medRepo.Create(context.Background(), med))

		env.logRepo.recent = doseLogs(med, 24, 6) // 24/30 = 80.0

		require.NoError(t, env.svc.UpdateAdherenceRate(context.Background(), med.ID))

		assert.InDelta(t, 80.0, env.medRepo.adherenceRates[med.ID], 0.001)
		assert.Empty(t, env.alertRepo.created)
	})

	t.Run("below threshold raises high-priority alert", func(t *testing.T) {
		env := newTestEnv(t)
		med := activeMedication(uuid.New())
		require.NoError(t, env.medRepo.Create(context.Background(), med))

		env.logRepo.recent = doseLogs(med, 23, 7) // ~76.7

		require.NoError(t, env.svc.UpdateAdherenceRate(context.Background(), med.ID))

		require.Len(t, env.alertRepo.created, 1)
		alert := env.alertRepo.created[0]
		assert.Equal(t, model.AlertTypeMedication, alert.Type)
		assert.Equal(t, model.AlertPriorityHigh, alert.Priority)
		assert.Equal(t, "Low Medication Adherence", alert.Title)
		assert.Equal(t, med.PatientID, alert.PatientID)
	})
}

func doseLogs(med *model.Medication, taken, missed int) []*model.MedicationLog {
	logs := make([]*model.MedicationLog, 0, taken+missed)
	for i := 0; i < taken; i++ {
		logs = append(logs, &model.MedicationLog{
			ID: uuid.New(), MedicationID: med.ID, PatientID: med.PatientID,
			Status: model.MedicationLogStatusTaken,
		})
	}
	for i := 0; i < missed; i++ {
		logs = append(logs, &model.MedicationLog{
			ID: uuid.New(), MedicationID: med.ID, PatientID: med.PatientID,
			Status: model.MedicationLogStatusMissed,
		})
	}
	return logs
}

func TestMissedDoseRaisesMediumAlert(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	med := activeMedication(uuid.New())
	require.NoError(t, env.medRepo.Create(ctx, med))

	scheduled := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	log := &model.MedicationLog{
		ID:            uuid.New(),
		MedicationID:  med.ID,
		PatientID:     med.PatientID,
		ScheduledTime: scheduled,
		Status:        model.MedicationLogStatusMissed,
	}
	row, err := json.Marshal(log)
	require.NoError(t, err)
	payload, err := json.Marshal(model.ChangeEvent{
		Table: model.ChannelMedicationLogs,
		Op:    model.ChangeOpUpdate,
		New:   row,
	})
	require.NoError(t, err)

	env.svc.handleLogEvent(ctx, payload)

	require.Len(t, env.alertRepo.created, 1)
	alert := env.alertRepo.created[0]
	assert.Equal(t, model.AlertTypeMedication, alert.Type)
	assert.Equal(t, model.AlertPriorityMedium, alert.Priority)
	assert.Equal(t, "Missed Medication Dose", alert.Title)
	require.NotNil(t, alert.Metadata.MedicationDetails)
	assert.Equal(t, med.Name, alert.Metadata.MedicationDetails.Name)
	assert.Equal(t, med.Dosage, alert.Metadata.MedicationDetails.Dosage)
	require.NotNil(t, alert.Metadata.MedicationDetails.ScheduledTime)
	assert.True(t, scheduled.Equal(*alert.Metadata.MedicationDetails.ScheduledTime))
}

func TestTakenDoseSendsFeedbackAndRecomputesAdherence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	med := activeMedication(uuid.New())
	require.NoError(t, env.medRepo.Create(ctx, med))
	env.logRepo.recent = doseLogs(med, 9, 1) // 90%, no alert

	log := &model.MedicationLog{
		ID:           uuid.New(),
		MedicationID: med.ID,
		PatientID:    med.PatientID,
		Status:       model.MedicationLogStatusTaken,
	}
	row, err := json.Marshal(log)
	require.NoError(t, err)
	payload, err := json.Marshal(model.ChangeEvent{
		Table: model.ChannelMedicationLogs,
		Op:    model.ChangeOpUpdate,
		New:   row,
	})
	require.NoError(t, err)

	env.svc.handleLogEvent(ctx, payload)

	feedback := env.broker.publishedOn(model.DeviceFeedbackChannel(med.PatientID))
	require.Len(t, feedback, 1)
	fb, ok := feedback[0].(model.DeviceFeedback)
	require.True(t, ok)
	assert.Equal(t, model.FeedbackMedium, fb.Intensity)

	assert.InDelta(t, 90.0, env.medRepo.adherenceRates[med.ID], 0.001)
	assert.Empty(t, env.alertRepo.created)
}

func TestStartStopLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	med := activeMedication(uuid.New())
	require.NoError(t, env.medRepo.Create(ctx, med))

	require.NoError(t, env.svc.Start(ctx))
	assert.Equal(t, 1, env.svc.ActiveCount())

	count, err := env.svc.ScheduledReminderCount(ctx, med.ID)
	require.NoError(t, err)
	assert.Greater(t, count, 0)

	env.svc.Stop()
	assert.Zero(t, env.svc.ActiveCount())

	// Reminders are durable; stopping the in-memory service does not
	// cancel them.
	count, err = env.svc.ScheduledReminderCount(ctx, med.ID)
	require.NoError(t, err)
	assert.Greater(t, count, 0)
}
