package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Protocol string

const (
	ProtocolFTP  Protocol = "ftp"
	ProtocolWeb  Protocol = "web"
	ProtocolBlob Protocol = "blob"
)

// MaxStaticPayloadBytes caps the static payload attached to a notification target.
const MaxStaticPayloadBytes = 10 * 1024

// Configuration is one tenant-defined polling job: which remote store to
// poll, which files to look for, on what schedule, and what to emit when a
// new file shows up.
type Configuration struct {
	ID       uuid.UUID
	TenantID uuid.UUID

	Name     string
	Protocol Protocol

	// Exactly one of these is set, matching Protocol.
	FTP  *FTPSettings
	Web  *WebSettings
	Blob *BlobSettings

	PathPattern     string
	NamePattern     string
	ExtensionFilter string // e.g. ".csv"; empty matches everything

	CronExpression string
	Timezone       string // IANA timezone, defaults to UTC

	Active  bool
	Targets []NotificationTarget

	CreatedBy  string
	ModifiedBy string
	CreatedAt  time.Time
	UpdatedAt  time.Time

	LastExecutedAt   *time.Time
	NextScheduledRun time.Time

	// Version is the optimistic-concurrency token; compared on every write.
	Version int64
}

// CredentialHandle returns the opaque secret handle of the active protocol
// settings, or "" when the configuration is anonymous.
func (c Configuration) CredentialHandle() string {
	switch c.Protocol {
	case ProtocolFTP:
		if c.FTP != nil {
			return c.FTP.CredentialHandle
		}
	case ProtocolWeb:
		if c.Web != nil {
			return c.Web.CredentialHandle
		}
	case ProtocolBlob:
		if c.Blob != nil {
			return c.Blob.CredentialHandle
		}
	}
	return ""
}

// Location resolves the configuration's schedule timezone. The same zone is
// used for cron evaluation and for filling date tokens in path/name patterns.
func (c Configuration) Location() (*time.Location, error) {
	tz := c.Timezone
	if tz == "" {
		tz = "UTC"
	}
	return time.LoadLocation(tz)
}

// FTPSettings configures the file-transfer adapter.
type FTPSettings struct {
	Host             string
	Port             int
	ExplicitTLS      bool
	CredentialHandle string // opaque handle, resolved by the secrets collaborator
	Timeout          time.Duration
}

// WebSettings configures the HTTPS adapter.
type WebSettings struct {
	BaseURL          string
	AuthScheme       string // "basic", "bearer" or "" for anonymous
	CredentialHandle string
	// ProbeOnly disables listing parsing; existence is checked per resolved
	// name with HEAD requests instead.
	ProbeOnly bool
	Timeout   time.Duration
}

type BlobAuthMode string

const (
	BlobAuthAccountKey      BlobAuthMode = "account-key"
	BlobAuthDelegationToken BlobAuthMode = "delegation-token"
)

// BlobSettings configures the blob-store adapter.
type BlobSettings struct {
	Container        string
	Region           string
	Endpoint         string // optional, for non-AWS S3-compatible stores
	AuthMode         BlobAuthMode
	CredentialHandle string
	Timeout          time.Duration
}

type NotificationMode string

const (
	ModeBroadcast NotificationMode = "broadcast"
	ModeCommand   NotificationMode = "command"
)

// NotificationTarget is one downstream emission declared on a configuration:
// a broadcast event or a directed command, with an optional static payload
// merged into every notification.
type NotificationTarget struct {
	Mode NotificationMode
	Type string // message type name, doubles as routing key / queue name
	// StaticPayload is a JSON object merged into the emitted payload.
	// At most MaxStaticPayloadBytes.
	StaticPayload json.RawMessage
}
