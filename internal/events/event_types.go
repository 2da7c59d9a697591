package events

import (
	"time"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserProvisioned   EventType = "user_provisioned"
	EventUserUpdated       EventType = "user_updated"
	EventUserOffboarded    EventType = "user_offboarded"
	EventEnrollmentChanged EventType = "enrollment_changed"
	EventPassCompleted     EventType = "pass_completed"
)

// Event represents an audit event emitted during a reconciliation pass.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	PassID    string      `json:"pass_id"`
	DryRun    bool        `json:"dry_run"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// UserProvisionedPayload payload.
type UserProvisionedPayload struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Username string `json:"username"`
}

// UserUpdatedPayload payload.
type UserUpdatedPayload struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Username string `json:"username"`
}

// UserOffboardedPayload payload.
type UserOffboardedPayload struct {
	SourceID      string `json:"source_id"`
	TargetID      string `json:"target_id"`
	Username      string `json:"username"`
	GroupsRemoved int    `json:"groups_removed"`
}

// EnrollmentChangedPayload payload.
type EnrollmentChangedPayload struct {
	SourceID string `json:"source_id"`
	Username string `json:"username"`
	Enrolled bool   `json:"enrolled"`
}

// PassCompletedPayload payload.
type PassCompletedPayload struct {
	GroupsProcessed int           `json:"groups_processed"`
	UsersCreated    int           `json:"users_created"`
	UsersUpdated    int           `json:"users_updated"`
	UsersOffboarded int           `json:"users_offboarded"`
	Errors          int           `json:"errors"`
	Duration        time.Duration `json:"duration"`
}
