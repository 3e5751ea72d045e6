package robot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/so101/pkg/bus/bustest"
)

func TestReadFull(t *testing.T) {
	s, fake := newTestSession(t, 1, 2)
	fake.SetPositions(2, 1234)
	fake.SetTelemetry(2, -15, 50, 0)

	got := s.ReadFull(context.Background(), 2)
	require.True(t, got.Available())
	assert.Equal(t, Telemetry{ID: 2, Position: 1234, Velocity: -15, Acceleration: 50, Status: 0}, got)
}

func TestReadFull_AnyFieldFailureIsTotal(t *testing.T) {
	for _, op := range []bustest.Op{bustest.OpPosition, bustest.OpSpeed, bustest.OpAcceleration, bustest.OpStatus} {
		t.Run(string(op), func(t *testing.T) {
			s, fake := newTestSession(t, 1)
			fake.SetPositions(1, 3000)
			fake.SetTelemetry(1, 10, 50, 1)
			fake.Fail(op, 1, 1)

			got := s.ReadFull(context.Background(), 1)
			assert.False(t, got.Available())
			assert.ErrorIs(t, got.Err, ErrReadFailure)
			assert.ErrorIs(t, got.Err, bustest.ErrInjected)
			assert.Zero(t, got.Position)
			assert.Zero(t, got.Velocity)
			assert.Zero(t, got.Acceleration)
			assert.Zero(t, got.Status)
		})
	}
}

func TestReadFull_RecoversNextCycle(t *testing.T) {
	s, fake := newTestSession(t, 1, 2)
	fake.SetPositions(2, 1500)
	fake.Fail(bustest.OpSpeed, 2, 1)

	first := s.ReadAll(context.Background())
	require.Len(t, first, 2)
	assert.True(t, first[0].Available())
	assert.False(t, first[1].Available(), "cycle N for joint 2 is unavailable")

	second := s.ReadAll(context.Background())
	assert.True(t, second[1].Available(), "cycle N+1 succeeds")
	assert.Equal(t, 1500, second[1].Position)
}

func TestReadPosition(t *testing.T) {
	s, fake := newTestSession(t, 1)
	fake.SetPositions(1, 100, 200)
	fake.Fail(bustest.OpPosition, 1, 1)

	_, ok := s.ReadPosition(context.Background(), 1)
	assert.False(t, ok)

	pos, ok := s.ReadPosition(context.Background(), 1)
	assert.True(t, ok)
	assert.Equal(t, 100, pos)

	pos, ok = s.ReadPosition(context.Background(), 1)
	assert.True(t, ok)
	assert.Equal(t, 200, pos)
}
