package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationStatusScheduled NotificationStatus = "scheduled"
	NotificationStatusSent      NotificationStatus = "sent"
	NotificationStatusCancelled NotificationStatus = "cancelled"
	NotificationStatusFailed    NotificationStatus = "failed"
)

// Notification delivery channels
const (
	ChannelPush  = "push"
	ChannelEmail = "email"
)

// Notification action types, carried to the device so the client can deep-link.
const (
	ActionMedicationReminder   = "medication_reminder"
	ActionRefillReady          = "refill_ready"
	ActionPrescriptionExpiring = "prescription_expiring"
	ActionCareAlert            = "care_alert"
)

type NotificationPayload map[string]interface{}

func (p NotificationPayload) Value() (driver.Value, error) {
	if p == nil {
		return json.Marshal(map[string]interface{}{})
	}
	return json.Marshal(p)
}

func (p *NotificationPayload) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unexpected payload column type %T", value)
	}
	return json.Unmarshal(b, p)
}

// ScheduledNotification is a durable notification request. The dispatcher
// worker fires rows whose FireAt has passed and marks them sent. A row can be
// cancelled any time before dispatch; cancellation after dispatch is a no-op.
//
// DedupeKey makes scheduling idempotent: medication reminders use
// "<medicationID>_<RFC3339 fire time>" so re-expanding a schedule never
// produces duplicate firings.
type ScheduledNotification struct {
	ID         uuid.UUID           `db:"id" json:"id"`
	PatientID  uuid.UUID           `db:"patient_id" json:"patient_id"`
	DedupeKey  string              `db:"dedupe_key" json:"dedupe_key"`
	Title      string              `db:"title" json:"title"`
	Body       string              `db:"body" json:"body"`
	FireAt     time.Time           `db:"fire_at" json:"fire_at"`
	Sound      string              `db:"sound" json:"sound,omitempty"`
	ActionType string              `db:"action_type" json:"action_type"`
	Payload    NotificationPayload `db:"payload" json:"payload,omitempty"`
	Channel    string              `db:"channel" json:"channel"`
	Recipient  string              `db:"recipient" json:"recipient,omitempty"`
	Status     NotificationStatus  `db:"status" json:"status"`
	LastError  *string             `db:"last_error" json:"last_error,omitempty"`
	SentAt     *time.Time          `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt  time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time           `db:"updated_at" json:"updated_at"`
}

// DevicePush is the message published on a patient's device channel when a
// notification fires.
type DevicePush struct {
	NotificationID uuid.UUID           `json:"notification_id"`
	Title          string              `json:"title"`
	Body           string              `json:"body"`
	Sound          string              `json:"sound,omitempty"`
	ActionType     string              `json:"action_type"`
	Payload        NotificationPayload `json:"payload,omitempty"`
}

// Device feedback intensities, mirrored by the mobile client's haptic engine.
const (
	FeedbackLight  = "light"
	FeedbackMedium = "medium"
	FeedbackHeavy  = "heavy"
)

// DeviceFeedback asks the patient's device for a haptic cue.
type DeviceFeedback struct {
	PatientID uuid.UUID `json:"patient_id"`
	Intensity string    `json:"intensity"`
}

// DevicePushChannel returns the broker channel for a patient's notifications.
func DevicePushChannel(patientID uuid.UUID) string {
	return "device:" + patientID.String() + ":notify"
}

// DeviceFeedbackChannel returns the broker channel for a patient's haptic cues.
func DeviceFeedbackChannel(patientID uuid.UUID) string {
	return "device:" + patientID.String() + ":feedback"
}
