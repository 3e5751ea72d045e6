// Package bus provides the serial servo bus used to drive the arm's joints.
package bus

import "context"

// Transport is the servo bus as seen by the driver session.
//
// Implementations must not let two round trips overlap on the wire; callers
// may issue a torque command from one goroutine while another waits for a
// move to complete.
type Transport interface {
	// ListServos returns the IDs of the servos that answered a scan, in
	// ascending order.
	ListServos(ctx context.Context) ([]int, error)

	// MoveTo commands a goal position. With wait set it returns once the
	// servo reports that motion has finished.
	MoveTo(ctx context.Context, id, position, speed, acc int, wait bool) error

	ReadPosition(ctx context.Context, id int) (int, error)
	ReadSpeed(ctx context.Context, id int) (int, error)
	ReadAcceleration(ctx context.Context, id int) (int, error)
	ReadStatus(ctx context.Context, id int) (int, error)

	SetTorqueEnabled(ctx context.Context, id int, enabled bool) error

	Close() error
}
