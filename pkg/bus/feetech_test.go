package bus

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sts = feetech.NewProtocol(feetech.ProtocolSTS)

// reply encodes a status packet from servo id without error flags.
func reply(id byte, params ...byte) []byte {
	return sts.Encode(feetech.Packet{ID: id, Parameters: params})
}

// newMockFeetech returns an adapter with servo 1 registered on a mock
// transport that answers each request with the next reply.
func newMockFeetech(t *testing.T, replies ...[]byte) (*Feetech, *feetech.MockTransport) {
	t.Helper()

	mock := &feetech.MockTransport{
		ReadFunc: func(p []byte) (int, error) {
			if len(replies) == 0 {
				return 0, io.EOF
			}
			n := copy(p, replies[0])
			if replies[0] = replies[0][n:]; len(replies[0]) == 0 {
				replies = replies[1:]
			}
			return n, nil
		},
	}
	b, err := feetech.NewBus(feetech.BusConfig{Transport: mock, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	f := newFeetech(Config{MinID: 1, MaxID: 1}, b)
	f.servos[1] = feetech.NewServo(b, 1, nil)
	t.Cleanup(func() { f.Close() })
	return f, mock
}

func TestFeetech_MoveToWritesAcceleration(t *testing.T) {
	f, mock := newMockFeetech(t, reply(1), reply(1))

	require.NoError(t, f.MoveTo(context.Background(), 1, 2048, 2400, 50, false))

	want := sts.WritePacket(1, feetech.RegAcceleration.Address, []byte{50})
	want = append(want, sts.WritePacket(1, feetech.RegGoalPosition.Address, []byte{
		0x00, 0x08, // position 2048
		0x00, 0x00, // time
		0x60, 0x09, // speed 2400
	})...)
	assert.Equal(t, want, mock.WriteData)
}

func TestFeetech_MoveToRejectsAcceleration(t *testing.T) {
	f, mock := newMockFeetech(t)

	err := f.MoveTo(context.Background(), 1, 2048, 2400, MaxAcceleration+1, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acceleration")
	assert.Empty(t, mock.WriteData, "nothing may reach the bus")
}

func TestFeetech_ReadAcceleration(t *testing.T) {
	f, mock := newMockFeetech(t, reply(1, 80))

	acc, err := f.ReadAcceleration(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 80, acc)
	assert.Equal(t, sts.ReadPacket(1, feetech.RegAcceleration.Address, 1), mock.WriteData)
}

func TestFeetech_ReadStatus(t *testing.T) {
	f, mock := newMockFeetech(t, reply(1, 0x24))

	status, err := f.ReadStatus(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0x24, status)
	assert.Equal(t, sts.ReadPacket(1, feetech.RegServoStatus.Address, 1), mock.WriteData)
}

func TestFeetech_ReadSpeed(t *testing.T) {
	// Sign-magnitude: bit 15 set means reverse.
	f, mock := newMockFeetech(t, reply(1, 0x0f, 0x80))

	speed, err := f.ReadSpeed(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, -15, speed)
	assert.Equal(t, sts.ReadPacket(1, feetech.RegPresentVelocity.Address, 2), mock.WriteData)
}

func TestFeetech_UnknownServo(t *testing.T) {
	f, mock := newMockFeetech(t)

	_, err := f.ReadStatus(context.Background(), 4)
	assert.Error(t, err)
	assert.Empty(t, mock.WriteData)
}
