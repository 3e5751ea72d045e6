// Package calibrate runs the hand-guided calibration of an arm: capture a
// zero pose, capture each joint's travel range, then persist the resulting
// limit table in one write.
package calibrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"go.uber.org/multierr"

	"github.com/gwillem/so101/pkg/robot"
)

// DefaultInterval is the delay between two sampling cycles.
const DefaultInterval = 100 * time.Millisecond

// ErrFinished is returned when a finished session receives another signal.
var ErrFinished = errors.New("calibration already finished")

// Phase is the calibration state.
type Phase int

const (
	AwaitingZero Phase = iota
	CapturingRange
	Saved
	Cancelled
)

func (p Phase) String() string {
	switch p {
	case AwaitingZero:
		return "awaiting zero"
	case CapturingRange:
		return "capturing range"
	case Saved:
		return "saved"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Done reports whether no further signal is accepted.
func (p Phase) Done() bool {
	return p == Saved || p == Cancelled
}

// Signal is an operator decision delivered to Run.
type Signal int

const (
	SignalConfirm Signal = iota
	SignalCancel
)

// Arm is the part of a robot session calibration needs.
type Arm interface {
	Joints() robot.Joints
	ReadPosition(ctx context.Context, id int) (int, bool)
	Release(ctx context.Context) error
}

// Store persists a finished limit table.
type Store interface {
	Save(t *robot.LimitTable) error
}

// JointProgress is what the operator sees for one joint.
type JointProgress struct {
	ID       int
	Name     robot.MotorName
	Current  int
	Seen     bool
	Zero     int
	HasZero  bool
	Limit    robot.LimitEntry
	HasRange bool
}

// Range returns the captured travel, zero until a range sample exists.
func (j JointProgress) Range() int {
	if !j.HasRange {
		return 0
	}
	return j.Limit.Max - j.Limit.Min
}

// Progress is a snapshot of a calibration session.
type Progress struct {
	Phase  Phase
	Joints []JointProgress
	Table  *robot.LimitTable
}

// Engine is the calibration state machine. Sample, Confirm and Cancel drive it
// directly; Run drives it from a ticker and an operator signal channel.
type Engine struct {
	arm      Arm
	store    Store
	logger   *log.Logger
	interval time.Duration

	mu      sync.Mutex
	phase   Phase
	joints  robot.Joints
	current map[int]int
	zero    robot.ZeroTable
	limits  map[int]robot.LimitEntry
	table   *robot.LimitTable

	updates chan Progress
}

// Option configures an Engine.
type Option func(*Engine)

// WithInterval sets the sampling delay used by Run.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New starts a calibration session in AwaitingZero for the arm's joints.
func New(arm Arm, store Store, opts ...Option) *Engine {
	e := &Engine{
		arm:      arm,
		store:    store,
		logger:   log.New(io.Discard),
		interval: DefaultInterval,
		phase:    AwaitingZero,
		joints:   arm.Joints(),
		current:  make(map[int]int),
		zero:     make(robot.ZeroTable),
		limits:   make(map[int]robot.LimitEntry),
		updates:  make(chan Progress, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Phase returns the current phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Table returns the saved table, or nil before Saved.
func (e *Engine) Table() *robot.LimitTable {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.table
}

// Updates delivers the latest progress after every change. Only the newest
// snapshot is kept.
func (e *Engine) Updates() <-chan Progress {
	return e.updates
}

// Sample runs one polling cycle. A failed read keeps the joint's last-known
// position and never ends the session.
func (e *Engine) Sample(ctx context.Context) {
	if e.Phase().Done() {
		return
	}

	readings := make(map[int]int, len(e.joints))
	for _, id := range e.joints {
		if pos, ok := e.arm.ReadPosition(ctx, id); ok {
			readings[id] = pos
		}
	}

	e.mu.Lock()
	for id, pos := range readings {
		e.current[id] = pos
		if e.phase != CapturingRange {
			continue
		}
		entry, ok := e.limits[id]
		switch {
		case !ok:
			e.limits[id] = robot.LimitEntry{Min: pos, Max: pos}
		case pos < entry.Min:
			entry.Min = pos
			e.limits[id] = entry
		case pos > entry.Max:
			entry.Max = pos
			e.limits[id] = entry
		}
	}
	e.mu.Unlock()

	e.publish()
}

// Confirm advances the session. In AwaitingZero the last sampled positions
// become the zero table. In CapturingRange the table is validated and saved;
// an incomplete table is refused with robot.ErrCalibrationIncomplete and
// nothing is written.
func (e *Engine) Confirm() error {
	e.mu.Lock()
	defer func() {
		e.mu.Unlock()
		e.publish()
	}()

	switch e.phase {
	case AwaitingZero:
		var errs error
		for _, id := range e.joints {
			if _, ok := e.current[id]; !ok {
				errs = multierr.Append(errs, &robot.JointError{ID: id, Op: "zero", Err: robot.ErrCalibrationIncomplete})
			}
		}
		if errs != nil {
			return errs
		}
		for _, id := range e.joints {
			e.zero[id] = e.current[id]
		}
		e.phase = CapturingRange
		e.logger.Info("zero captured", "zero", e.zero)
		return nil

	case CapturingRange:
		t := &robot.LimitTable{
			Zero:   maps.Clone(e.zero),
			Limits: maps.Clone(e.limits),
		}
		if err := t.Validate(e.joints); err != nil {
			return err
		}
		if err := e.store.Save(t); err != nil {
			return fmt.Errorf("save limit table: %w", err)
		}
		e.table = t
		e.phase = Saved
		e.logger.Info("limit table saved", "joints", len(t.Limits))
		return nil

	default:
		return ErrFinished
	}
}

// Cancel aborts an unfinished session. Nothing is written.
func (e *Engine) Cancel() {
	e.mu.Lock()
	if e.phase.Done() {
		e.mu.Unlock()
		return
	}
	prev := e.phase
	e.phase = Cancelled
	e.mu.Unlock()

	e.logger.Info("calibration cancelled", "phase", prev)
	e.publish()
}

// Run releases torque so the arm can be moved by hand, then samples every
// interval and applies operator signals until the table is saved. A refused
// zero confirm is logged and sampling goes on; a refused save ends Run with
// the error. A cancel signal, a closed channel or ctx cancellation returns
// robot.ErrCancelled.
// Torque is released again before Run returns, whatever the outcome.
func (e *Engine) Run(ctx context.Context, signals <-chan Signal) (*robot.LimitTable, error) {
	defer func() {
		if err := e.arm.Release(context.WithoutCancel(ctx)); err != nil {
			e.logger.Warn("release torque on exit", "err", err)
		}
	}()

	if err := e.arm.Release(ctx); err != nil {
		e.logger.Warn("release torque", "err", err)
	}
	e.logger.Info("calibration started", "joints", []int(e.joints), "interval", e.interval)

	e.Sample(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.Cancel()
			return nil, robot.ErrCancelled

		case sig, ok := <-signals:
			if !ok || sig == SignalCancel {
				e.Cancel()
				return nil, robot.ErrCancelled
			}
			if err := e.Confirm(); err != nil {
				if e.Phase() == AwaitingZero {
					// Joints without a reading yet; sampling continues.
					e.logger.Warn("zero pose not captured, confirm again", "err", err)
					continue
				}
				return nil, err
			}
			if e.Phase() == Saved {
				return e.Table(), nil
			}

		case <-ticker.C:
			e.Sample(ctx)
		}
	}
}

// Progress returns a snapshot for display.
func (e *Engine) Progress() Progress {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := Progress{
		Phase:  e.phase,
		Joints: make([]JointProgress, 0, len(e.joints)),
		Table:  e.table,
	}
	for _, id := range e.joints {
		jp := JointProgress{ID: id, Name: robot.JointName(id)}
		jp.Current, jp.Seen = e.current[id]
		jp.Zero, jp.HasZero = e.zero[id]
		jp.Limit, jp.HasRange = e.limits[id]
		p.Joints = append(p.Joints, jp)
	}
	return p
}

func (e *Engine) publish() {
	p := e.Progress()
	select {
	case e.updates <- p:
	default:
		select {
		case <-e.updates:
		default:
		}
		select {
		case e.updates <- p:
		default:
		}
	}
}
