// Package notify emits discovery notifications to downstream consumers.
// The transport guarantees at-least-once delivery; effectively-once behavior
// comes from the dedup ledger upstream, never from the transport.
package notify

import (
	"context"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/domain"
)

// Emitter delivers one notification. Implementations route on the
// notification's mode: broadcast fans out to every subscriber, command goes
// to exactly one consumer queue.
type Emitter interface {
	Emit(ctx context.Context, n domain.Notification) error
}
