// Package protocol defines the contract every remote-store adapter
// implements, plus the error taxonomy the orchestrator categorizes on.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/domain"
)

// MaxListResults bounds one listing call. Pathological listings are
// truncated, not rejected; the adapter logs the truncation.
const MaxListResults = 5000

// Sentinel errors shared by all adapters.
var (
	// ErrAuthFailed means the remote store rejected our credentials.
	// Terminal for the execution; never retried automatically.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrNotFound means the resolved path does not exist. The orchestrator
	// treats this as zero discovered files, since date-tokenized paths may
	// not have produced anything yet.
	ErrNotFound = errors.New("path not found")
)

// NetworkError wraps a transient transport failure. Retryable within one
// execution with bounded backoff.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// ProtocolError wraps a non-retryable protocol-level failure, e.g. a
// malformed listing response.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("protocol error: %v", e.Err) }
func (e *ProtocolError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is worth retrying within the same
// execution.
func IsRetryable(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// Credentials is the live secret material for one adapter call, resolved
// from the configuration's opaque handle just before use. Never logged.
type Credentials struct {
	Username string
	Password string
	// Token carries a bearer token (web) or session token (blob
	// delegation-token mode).
	Token string
}

// ListRequest is one resolved listing call: patterns have already been
// token-expanded by the caller.
type ListRequest struct {
	Path        string
	NamePattern string // glob, e.g. "claims_*.csv"; empty matches everything
	Extension   string // e.g. ".csv"; empty matches everything
}

// Adapter lists remote files matching a resolved path and name pattern.
type Adapter interface {
	List(ctx context.Context, req ListRequest) ([]domain.DiscoveredFile, error)
}

// MatchName applies the glob name pattern and extension filter to a bare
// filename. A malformed glob never matches, which surfaces quickly in
// routine operation and is caught by configuration-time validation anyway.
func MatchName(name, pattern, extension string) bool {
	if extension != "" && !strings.EqualFold(path.Ext(name), extension) {
		return false
	}
	if pattern == "" {
		return true
	}
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}

// Truncate caps a listing at MaxListResults.
func Truncate(files []domain.DiscoveredFile) ([]domain.DiscoveredFile, bool) {
	if len(files) <= MaxListResults {
		return files, false
	}
	return files[:MaxListResults], true
}
