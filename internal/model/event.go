package model

import (
	"encoding/json"
)

// Broker channels for row-change events. Channel name equals table name.
const (
	ChannelMedications    = "medications"
	ChannelMedicationLogs = "medication_logs"
	ChannelCareAlerts     = "care_alerts"
)

type ChangeOp string

const (
	ChangeOpInsert ChangeOp = "INSERT"
	ChangeOpUpdate ChangeOp = "UPDATE"
	ChangeOpDelete ChangeOp = "DELETE"
)

// ChangeEvent is a row-level change notification, the payload published on the
// per-table broker channels. New and Old hold the row after and before the
// change; either may be empty depending on Op.
type ChangeEvent struct {
	Table string          `json:"table"`
	Op    ChangeOp        `json:"op"`
	New   json.RawMessage `json:"new,omitempty"`
	Old   json.RawMessage `json:"old,omitempty"`
}
