package robot

import (
	"context"
	"time"

	"go.uber.org/multierr"
)

// Bus-native motion defaults for STS servos.
const (
	DefaultSpeed        = 2400
	DefaultAcceleration = 50
)

// MoveOptions tune a single move. Zero Speed or Acceleration selects the
// default.
type MoveOptions struct {
	Speed        int
	Acceleration int
	Wait         bool
}

func (o MoveOptions) withDefaults() MoveOptions {
	if o.Speed == 0 {
		o.Speed = DefaultSpeed
	}
	if o.Acceleration == 0 {
		o.Acceleration = DefaultAcceleration
	}
	return o
}

// MoveTo commands a joint to target. The target is sent as given: callers
// clamp it to the joint's LimitEntry first. Failures are returned and never
// retried here.
func (s *Session) MoveTo(ctx context.Context, id, target int, opts MoveOptions) error {
	if err := s.checkJoint(id); err != nil {
		return err
	}
	if err := s.pace(ctx); err != nil {
		return err
	}

	opts = opts.withDefaults()
	err := s.transport.MoveTo(ctx, id, target, opts.Speed, opts.Acceleration, opts.Wait)
	s.markCommand()
	if err != nil {
		return jointErr(id, "move", ErrCommandFailure, err)
	}
	s.logger.Debug("move", "joint", id, "target", target, "speed", opts.Speed, "acc", opts.Acceleration, "wait", opts.Wait)
	return nil
}

// SetTorque enables or disables one joint's torque.
func (s *Session) SetTorque(ctx context.Context, id int, enabled bool) error {
	if err := s.checkJoint(id); err != nil {
		return err
	}
	if err := s.pace(ctx); err != nil {
		return err
	}

	err := s.transport.SetTorqueEnabled(ctx, id, enabled)
	s.markCommand()
	if err != nil {
		return jointErr(id, "set torque", ErrCommandFailure, err)
	}

	s.mu.Lock()
	s.torque[id] = enabled
	s.mu.Unlock()
	return nil
}

// SetTorqueAll switches every joint, attempting all of them even when some
// fail.
func (s *Session) SetTorqueAll(ctx context.Context, enabled bool) error {
	var errs error
	for _, id := range s.Joints() {
		errs = multierr.Append(errs, s.SetTorque(ctx, id, enabled))
	}
	return errs
}

// Release disables torque on all joints so the arm can be moved by hand.
// It is safe to call at any time, including while a move is pending, and it
// still reaches the bus when ctx is already cancelled.
func (s *Session) Release(ctx context.Context) error {
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	var errs error
	for _, id := range s.Joints() {
		if err := s.transport.SetTorqueEnabled(ctx, id, false); err != nil {
			errs = multierr.Append(errs, jointErr(id, "release", ErrCommandFailure, err))
			continue
		}
		s.mu.Lock()
		s.torque[id] = false
		s.mu.Unlock()
	}
	s.markCommand()
	if errs != nil {
		s.logger.Warn("release torque", "err", errs)
	}
	return errs
}

// TorqueEnabled reports the last successfully commanded torque state.
func (s *Session) TorqueEnabled(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.torque[id]
}

// pace waits until the minimum command interval has passed.
func (s *Session) pace(ctx context.Context) error {
	s.mu.Lock()
	wait := s.interval - time.Since(s.lastCommand)
	s.mu.Unlock()
	if s.interval <= 0 || wait <= 0 {
		return nil
	}

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Session) markCommand() {
	s.mu.Lock()
	s.lastCommand = time.Now()
	s.mu.Unlock()
}
