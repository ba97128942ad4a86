package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Notification is one outbound message for one newly discovered file and one
// target: the target's static payload merged with the file's metadata.
type Notification struct {
	Mode NotificationMode
	Type string

	TenantID        uuid.UUID
	ConfigurationID uuid.UUID
	ExecutionID     uuid.UUID

	Body []byte
}

// notificationBody is the wire shape of a discovery notification.
type notificationBody struct {
	TenantID        string          `json:"tenant_id"`
	ConfigurationID string          `json:"configuration_id"`
	ExecutionID     string          `json:"execution_id"`
	Filename        string          `json:"filename"`
	Locator         string          `json:"locator"`
	Size            int64           `json:"size"`
	LastModified    string          `json:"last_modified,omitempty"`
	DiscoveredAt    string          `json:"discovered_at"`
	Data            json.RawMessage `json:"data,omitempty"`
}

// BuildNotification assembles the outbound message for a discovered file and
// a target. The target's static payload, when present, is carried verbatim
// under "data".
func BuildNotification(cfg Configuration, executionID uuid.UUID, file DiscoveredFile, target NotificationTarget) (Notification, error) {
	body := notificationBody{
		TenantID:        cfg.TenantID.String(),
		ConfigurationID: cfg.ID.String(),
		ExecutionID:     executionID.String(),
		Filename:        file.Name,
		Locator:         file.Locator,
		Size:            file.Size,
		DiscoveredAt:    file.DiscoveredAt.UTC().Format(time.RFC3339),
		Data:            target.StaticPayload,
	}
	if !file.LastModified.IsZero() {
		body.LastModified = file.LastModified.UTC().Format(time.RFC3339)
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return Notification{}, fmt.Errorf("marshal notification: %w", err)
	}

	return Notification{
		Mode:            target.Mode,
		Type:            target.Type,
		TenantID:        cfg.TenantID,
		ConfigurationID: cfg.ID,
		ExecutionID:     executionID,
		Body:            raw,
	}, nil
}
