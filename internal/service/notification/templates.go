package notification

import (
	"fmt"

	"github.com/cmw1990/connect-and-care-api/internal/model"
)

// Notification sound files shipped with the mobile client.
const (
	SoundEmergency = "emergency-alert.wav"
	SoundAlert     = "alert.wav"
	SoundDefault   = "notification.wav"
)

// AlertTitle prefixes the alert title with an emoji keyed to priority.
func AlertTitle(alert *model.CareAlert) string {
	var prefix string
	switch alert.Priority {
	case model.AlertPriorityHigh:
		prefix = "🚨"
	case model.AlertPriorityMedium:
		prefix = "⚠️"
	default:
		prefix = "ℹ️"
	}
	return fmt.Sprintf("%s %s", prefix, alert.Title)
}

// AlertBody renders the alert's metadata. Branches on which block is
// populated: vital signs, else medication, else appointment, else the
// description. First match wins, not a combination.
func AlertBody(alert *model.CareAlert) string {
	m := alert.Metadata

	if m.VitalSigns != nil {
		v := m.VitalSigns
		return fmt.Sprintf("Heart rate: %d bpm, BP: %s, SpO2: %d%%",
			v.HeartRate, v.BloodPressure, v.OxygenLevel)
	}

	if m.MedicationDetails != nil {
		d := m.MedicationDetails
		if d.Dosage != "" {
			return fmt.Sprintf("%s (%s)", d.Name, d.Dosage)
		}
		return d.Name
	}

	if m.AppointmentDetails != nil {
		a := m.AppointmentDetails
		body := fmt.Sprintf("%s at %s", a.Title, a.Time.Format("Jan 2 3:04 PM"))
		if a.Location != "" {
			body += ", " + a.Location
		}
		return body
	}

	return alert.Description
}

// AlertSound selects the notification sound strictly from priority.
func AlertSound(priority model.AlertPriority) string {
	switch priority {
	case model.AlertPriorityHigh:
		return SoundEmergency
	case model.AlertPriorityMedium:
		return SoundAlert
	default:
		return SoundDefault
	}
}

// FeedbackIntensity selects the haptic intensity strictly from priority,
// regardless of alert type.
func FeedbackIntensity(priority model.AlertPriority) string {
	switch priority {
	case model.AlertPriorityHigh:
		return model.FeedbackHeavy
	case model.AlertPriorityMedium:
		return model.FeedbackMedium
	default:
		return model.FeedbackLight
	}
}
