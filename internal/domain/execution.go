package domain

import (
	"time"

	"github.com/google/uuid"
)

type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// IsTerminal reports whether no further status transitions are allowed.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// ErrorCategory classifies why an execution failed.
type ErrorCategory string

const (
	CategoryAuthFailed         ErrorCategory = "auth_failed"
	CategoryProtocolError      ErrorCategory = "protocol_error"
	CategoryNetworkError       ErrorCategory = "network_error"
	CategoryNotificationFailed ErrorCategory = "notification_failed"
	CategoryCancelled          ErrorCategory = "cancelled"
	CategoryInternalError      ErrorCategory = "internal_error"
)

type TriggerKind string

const (
	TriggerScheduled TriggerKind = "scheduled"
	TriggerManual    TriggerKind = "manual"
)

// Execution records one discovery cycle for one configuration. Created in
// pending at dispatch, transitions through running to a terminal state, and
// is never mutated after that.
type Execution struct {
	ID              uuid.UUID
	ConfigurationID uuid.UUID
	TenantID        uuid.UUID

	Trigger TriggerKind
	Status  ExecutionStatus

	StartedAt  time.Time
	FinishedAt *time.Time
	Duration   time.Duration

	FilesFound           int
	FilesProcessed       int
	NotificationsEmitted int

	ErrorCategory ErrorCategory
	ErrorMessage  string

	CreatedAt time.Time
}
