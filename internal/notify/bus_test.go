package notify

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/domain"
)

func TestBus_EmitAndReceive(t *testing.T) {
	bus := NewBus(2)

	n := domain.Notification{
		Mode:        domain.ModeBroadcast,
		Type:        "claims.file.discovered",
		ExecutionID: uuid.New(),
		Body:        []byte(`{"filename":"claims.csv"}`),
	}

	require.NoError(t, bus.Emit(context.Background(), n))

	select {
	case got := <-bus.Channel():
		assert.Equal(t, n.Type, got.Type)
		assert.Equal(t, n.ExecutionID, got.ExecutionID)
	case <-time.After(time.Second):
		t.Fatal("notification never arrived")
	}
}

func TestBus_EmitRespectsContext(t *testing.T) {
	bus := NewBus(0) // unbuffered, nobody reading

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := bus.Emit(ctx, domain.Notification{Type: "x"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
