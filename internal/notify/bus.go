package notify

import (
	"context"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/domain"
)

// Bus is an in-memory Emitter for single-process deployments and tests.
type Bus struct {
	ch chan domain.Notification
}

func NewBus(buffer int) *Bus {
	return &Bus{
		ch: make(chan domain.Notification, buffer),
	}
}

func (b *Bus) Emit(ctx context.Context, n domain.Notification) error {
	select {
	case b.ch <- n:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) Channel() <-chan domain.Notification {
	return b.ch
}
