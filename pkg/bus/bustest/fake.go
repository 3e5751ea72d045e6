// Package bustest provides an in-memory servo bus for tests.
package bustest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gwillem/so101/pkg/bus"
)

// ErrInjected is returned by calls failed through Fail.
var ErrInjected = errors.New("injected bus failure")

// Op names a transport call for failure injection.
type Op string

const (
	OpList         Op = "list"
	OpMove         Op = "move"
	OpPosition     Op = "position"
	OpSpeed        Op = "speed"
	OpAcceleration Op = "acceleration"
	OpStatus       Op = "status"
	OpTorque       Op = "torque"
)

// Move records one MoveTo call.
type Move struct {
	ID       int
	Position int
	Speed    int
	Acc      int
	Wait     bool
}

// TorqueCall records one SetTorqueEnabled call.
type TorqueCall struct {
	ID      int
	Enabled bool
}

type failKey struct {
	op Op
	id int
}

// Fake is a scripted bus.Transport. Position reads consume a queued
// sequence per servo; the last value sticks once the queue is drained.
type Fake struct {
	mu sync.Mutex

	ids       []int
	ListErr   error
	positions map[int][]int
	speed     map[int]int
	acc       map[int]int
	status    map[int]int
	torque    map[int]bool
	failures  map[failKey]int
	moves     []Move
	torqueLog []TorqueCall
	closed    bool

	// OnMove runs (without the lock held) after each successful MoveTo.
	OnMove func(Move)
}

var _ bus.Transport = (*Fake)(nil)

// New returns a fake bus with the given servo IDs, all at position 2048.
func New(ids ...int) *Fake {
	f := &Fake{
		ids:       slices.Clone(ids),
		positions: make(map[int][]int),
		speed:     make(map[int]int),
		acc:       make(map[int]int),
		status:    make(map[int]int),
		torque:    make(map[int]bool),
		failures:  make(map[failKey]int),
	}
	for _, id := range ids {
		f.positions[id] = []int{2048}
	}
	return f
}

// SetPositions queues position readings for a servo.
func (f *Fake) SetPositions(id int, seq ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions[id] = slices.Clone(seq)
}

// SetTelemetry sets the speed, acceleration and status a servo reports.
func (f *Fake) SetTelemetry(id, speed, acc, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speed[id] = speed
	f.acc[id] = acc
	f.status[id] = status
}

// Fail makes the next n calls of op on servo id return ErrInjected.
// Use id 0 with OpList.
func (f *Fake) Fail(op Op, id, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[failKey{op, id}] += n
}

// Recover clears pending failures of op on servo id.
func (f *Fake) Recover(op Op, id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, failKey{op, id})
}

func (f *Fake) injected(op Op, id int) error {
	k := failKey{op, id}
	if f.failures[k] > 0 {
		f.failures[k]--
		return fmt.Errorf("%s servo %d: %w", op, id, ErrInjected)
	}
	return nil
}

func (f *Fake) known(id int) error {
	if !slices.Contains(f.ids, id) {
		return fmt.Errorf("servo %d not found on bus", id)
	}
	return nil
}

// Moves returns all recorded MoveTo calls.
func (f *Fake) Moves() []Move {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.moves)
}

// TorqueCalls returns all recorded SetTorqueEnabled calls.
func (f *Fake) TorqueCalls() []TorqueCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.torqueLog)
}

// Torque reports the torque state of a servo.
func (f *Fake) Torque(id int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.torque[id]
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) ListServos(ctx context.Context) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	if err := f.injected(OpList, 0); err != nil {
		return nil, err
	}
	return slices.Clone(f.ids), nil
}

func (f *Fake) MoveTo(ctx context.Context, id, position, speed, acc int, wait bool) error {
	f.mu.Lock()
	if err := f.known(id); err != nil {
		f.mu.Unlock()
		return err
	}
	if err := f.injected(OpMove, id); err != nil {
		f.mu.Unlock()
		return err
	}
	m := Move{ID: id, Position: position, Speed: speed, Acc: acc, Wait: wait}
	f.moves = append(f.moves, m)
	f.positions[id] = []int{position}
	f.acc[id] = acc
	hook := f.OnMove
	f.mu.Unlock()

	if hook != nil {
		hook(m)
	}
	return nil
}

func (f *Fake) ReadPosition(ctx context.Context, id int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.known(id); err != nil {
		return 0, err
	}
	if err := f.injected(OpPosition, id); err != nil {
		return 0, err
	}
	seq := f.positions[id]
	if len(seq) == 0 {
		return 0, nil
	}
	pos := seq[0]
	if len(seq) > 1 {
		f.positions[id] = seq[1:]
	}
	return pos, nil
}

func (f *Fake) ReadSpeed(ctx context.Context, id int) (int, error) {
	return f.read(OpSpeed, id, f.speed)
}

func (f *Fake) ReadAcceleration(ctx context.Context, id int) (int, error) {
	return f.read(OpAcceleration, id, f.acc)
}

func (f *Fake) ReadStatus(ctx context.Context, id int) (int, error) {
	return f.read(OpStatus, id, f.status)
}

func (f *Fake) read(op Op, id int, values map[int]int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.known(id); err != nil {
		return 0, err
	}
	if err := f.injected(op, id); err != nil {
		return 0, err
	}
	return values[id], nil
}

func (f *Fake) SetTorqueEnabled(ctx context.Context, id int, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.known(id); err != nil {
		return err
	}
	if err := f.injected(OpTorque, id); err != nil {
		return err
	}
	f.torque[id] = enabled
	f.torqueLog = append(f.torqueLog, TorqueCall{ID: id, Enabled: enabled})
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
