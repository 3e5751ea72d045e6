package robot

import "context"

// Telemetry is one read cycle of a joint. A failed read leaves every value
// zero and Err set; partial snapshots are never returned.
type Telemetry struct {
	ID           int
	Position     int
	Velocity     int
	Acceleration int
	Status       int
	Err          error
}

// Available reports whether the snapshot holds fresh values.
func (t Telemetry) Available() bool {
	return t.Err == nil
}

// ReadPosition reads a joint's present position. Failures are logged and
// reported as ok == false; they never end the session.
func (s *Session) ReadPosition(ctx context.Context, id int) (pos int, ok bool) {
	if err := s.checkJoint(id); err != nil {
		s.logger.Warn("read position", "joint", id, "err", err)
		return 0, false
	}

	pos, err := s.transport.ReadPosition(ctx, id)
	if err != nil {
		s.logger.Warn("read position", "joint", id, "err", jointErr(id, "read position", ErrReadFailure, err))
		return 0, false
	}
	return pos, true
}

// ReadFull reads position, velocity, acceleration and status in one cycle.
func (s *Session) ReadFull(ctx context.Context, id int) Telemetry {
	if err := s.checkJoint(id); err != nil {
		return Telemetry{ID: id, Err: err}
	}

	t := Telemetry{ID: id}
	var err error
	if t.Position, err = s.transport.ReadPosition(ctx, id); err != nil {
		return s.readFailed(id, "position", err)
	}
	if t.Velocity, err = s.transport.ReadSpeed(ctx, id); err != nil {
		return s.readFailed(id, "velocity", err)
	}
	if t.Acceleration, err = s.transport.ReadAcceleration(ctx, id); err != nil {
		return s.readFailed(id, "acceleration", err)
	}
	if t.Status, err = s.transport.ReadStatus(ctx, id); err != nil {
		return s.readFailed(id, "status", err)
	}
	return t
}

func (s *Session) readFailed(id int, field string, cause error) Telemetry {
	err := jointErr(id, "read "+field, ErrReadFailure, cause)
	s.logger.Warn("read telemetry", "joint", id, "err", err)
	return Telemetry{ID: id, Err: err}
}

// ReadAll reads a full snapshot of every joint in selection order.
func (s *Session) ReadAll(ctx context.Context) []Telemetry {
	joints := s.Joints()
	out := make([]Telemetry, 0, len(joints))
	for _, id := range joints {
		out = append(out, s.ReadFull(ctx, id))
	}
	return out
}
