package domain

import (
	"time"

	"github.com/google/uuid"
)

// DiscoveredFile is one entry returned by an adapter listing call. It lives
// only for the duration of an execution; the durable trace is ProcessedFile.
type DiscoveredFile struct {
	Name         string
	Locator      string // full path or URL identifying the file on the remote store
	Size         int64
	LastModified time.Time
	DiscoveredAt time.Time
}

// ProcessedFile is the dedup-ledger entry recording that a file was handled
// for a configuration. The (tenant, configuration, locator, discovery date)
// tuple is unique; inserting a duplicate is a no-op.
type ProcessedFile struct {
	TenantID        uuid.UUID
	ConfigurationID uuid.UUID
	ExecutionID     uuid.UUID

	Filename string
	Locator  string

	// DiscoveryDate is the calendar date (in the configuration's schedule
	// timezone) the file was discovered under. Part of the uniqueness key so
	// date-tokenized patterns that re-produce the same locator on a later day
	// are treated as new files.
	DiscoveryDate string // "2006-01-02"

	ProcessedAt time.Time
}
