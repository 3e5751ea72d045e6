package robot

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gwillem/so101/pkg/bus"
)

// Session owns the bus transport, the discovered joints and their torque
// state for the lifetime of one driver run.
type Session struct {
	transport bus.Transport
	logger    *log.Logger
	interval  time.Duration

	mu          sync.Mutex
	joints      Joints
	discovered  bool
	torque      map[int]bool
	lastCommand time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCommandInterval sets the minimum time between two bus commands.
func WithCommandInterval(d time.Duration) Option {
	return func(s *Session) {
		s.interval = d
	}
}

// NewSession wraps a transport. Call Discover before anything else.
func NewSession(t bus.Transport, opts ...Option) *Session {
	s := &Session{
		transport: t,
		logger:    log.New(io.Discard),
		torque:    make(map[int]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Discover enumerates the servos on the bus. It may only be called once;
// the limit table is keyed by the IDs found here.
func (s *Session) Discover(ctx context.Context) (Joints, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.discovered {
		return nil, ErrAlreadyDiscovered
	}

	ids, err := s.transport.ListServos(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBusUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no servos answered", ErrBusUnavailable)
	}

	s.joints = Joints(slices.Clone(ids))
	s.discovered = true
	s.logger.Info("discovered joints", "ids", []int(s.joints))
	return slices.Clone(s.joints), nil
}

// Joints returns the discovered joints in selection order.
func (s *Session) Joints() Joints {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.joints)
}

func (s *Session) checkJoint(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.discovered {
		return ErrNotDiscovered
	}
	if !s.joints.Contains(id) {
		return fmt.Errorf("%w: %d", ErrUnknownJoint, id)
	}
	return nil
}

// Close releases torque on all joints and closes the transport.
func (s *Session) Close() error {
	var releaseErr error
	if s.isDiscovered() {
		releaseErr = s.Release(context.Background())
	}
	if err := s.transport.Close(); err != nil {
		return fmt.Errorf("close bus: %w", err)
	}
	return releaseErr
}

func (s *Session) isDiscovered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discovered
}
