// Package teleop provides limit-enforced jog control for a calibrated arm.
package teleop

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"go.uber.org/multierr"

	"github.com/gwillem/so101/pkg/robot"
)

// Input is the operator intent for one control cycle. Release and Slow are
// levels and apply for as long as they are set.
type Input struct {
	SelectNext     bool
	SelectPrevious bool
	JogPositive    bool
	JogNegative    bool
	GoToZero       bool
	Release        bool
	Slow           bool
}

// Source yields the operator intent once per cycle.
type Source interface {
	Poll() Input
}

// Arm is the part of a robot session the controller drives.
type Arm interface {
	Joints() robot.Joints
	ReadPosition(ctx context.Context, id int) (int, bool)
	MoveTo(ctx context.Context, id, target int, opts robot.MoveOptions) error
	SetTorque(ctx context.Context, id int, enabled bool) error
	TorqueEnabled(id int) bool
	Release(ctx context.Context) error
}

// State represents the controller after one cycle.
type State struct {
	Selected  int
	Target    int
	Limit     robot.LimitEntry
	Released  bool // no joint holds torque
	Slow      bool
	Positions map[robot.MotorName]float64
	Timestamp time.Time
	Error     error
}

// Config holds configuration for the controller.
type Config struct {
	Step         int
	Hz           int
	Speed        int
	Acceleration int
	Logger       *log.Logger
}

// Controller turns operator intents into clamped joint commands.
type Controller struct {
	arm    Arm
	limits *robot.LimitTable
	joints robot.Joints
	step   int
	hz     int
	move   robot.MoveOptions
	logger *log.Logger

	index   int
	synced  bool
	targets map[int]int
	stateCh chan State
}

// NewController checks that the limit table covers every joint of the arm.
// A table with a missing zero or range is refused with
// robot.ErrCalibrationIncomplete.
func NewController(arm Arm, limits *robot.LimitTable, cfg Config) (*Controller, error) {
	joints := arm.Joints()
	if len(joints) == 0 {
		return nil, robot.ErrNotDiscovered
	}
	if limits == nil {
		return nil, fmt.Errorf("no limit table: %w", robot.ErrCalibrationIncomplete)
	}
	if err := limits.Validate(joints); err != nil {
		return nil, err
	}

	if cfg.Step <= 0 {
		cfg.Step = robot.DefaultStep
	}
	if cfg.Hz <= 0 {
		cfg.Hz = robot.DefaultHz
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}

	return &Controller{
		arm:     arm,
		limits:  limits,
		joints:  joints,
		step:    cfg.Step,
		hz:      cfg.Hz,
		move:    robot.MoveOptions{Speed: cfg.Speed, Acceleration: cfg.Acceleration},
		logger:  cfg.Logger,
		targets: make(map[int]int, len(joints)),
		stateCh: make(chan State, 1),
	}, nil
}

// States returns a channel that receives state updates.
func (c *Controller) States() <-chan State {
	return c.stateCh
}

// Hz returns the control frequency.
func (c *Controller) Hz() int {
	return c.hz
}

// Selected returns the ID of the active joint.
func (c *Controller) Selected() int {
	return c.joints[c.index]
}

// Run polls src at the control frequency until ctx is done, then releases
// torque before returning.
func (c *Controller) Run(ctx context.Context, src Source) error {
	c.logger.Info("teleoperation started", "hz", c.hz, "joints", []int(c.joints))

	ticker := time.NewTicker(time.Second / time.Duration(c.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown(ctx)
			return ctx.Err()
		case <-ticker.C:
			c.sendState(c.Step(ctx, src.Poll()))
		}
	}
}

// Step runs one control cycle. Bus failures are logged and skip the rest of
// the cycle for the affected joint; they never stop the controller.
func (c *Controller) Step(ctx context.Context, in Input) State {
	errs := c.syncTorque(ctx, in.Release)

	switch {
	case in.SelectNext && !in.SelectPrevious:
		c.index = c.joints.Next(c.index)
		c.synced = false
		c.logger.Debug("select", "joint", c.Selected())
	case in.SelectPrevious && !in.SelectNext:
		c.index = c.joints.Prev(c.index)
		c.synced = false
		c.logger.Debug("select", "joint", c.Selected())
	}

	if !c.synced {
		errs = multierr.Append(errs, c.resync(ctx))
	}

	if !in.Release {
		switch {
		case in.GoToZero:
			errs = multierr.Append(errs, c.goToZero(ctx))
		case in.JogPositive != in.JogNegative:
			dir := 1
			if in.JogNegative {
				dir = -1
			}
			errs = multierr.Append(errs, c.jog(ctx, dir, in.Slow))
		}
	}

	return c.state(in, errs)
}

// syncTorque drives every joint toward the requested torque level. It is
// evaluated every cycle so a failed transition is retried on the next one.
func (c *Controller) syncTorque(ctx context.Context, release bool) error {
	if release {
		for _, id := range c.joints {
			if !c.arm.TorqueEnabled(id) {
				continue
			}
			if err := c.arm.Release(ctx); err != nil {
				return err
			}
			c.logger.Info("torque released")
			return nil
		}
		return nil
	}

	var errs error
	for _, id := range c.joints {
		if c.arm.TorqueEnabled(id) {
			continue
		}
		if err := c.enable(ctx, id); err != nil {
			c.logger.Warn("enable torque", "joint", id, "err", err)
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// enable holds a joint where it is before powering it, so a goal left over
// from before a release never makes the arm jump. Unreadable joints stay
// unpowered until a later cycle can read them.
func (c *Controller) enable(ctx context.Context, id int) error {
	pos, ok := c.arm.ReadPosition(ctx, id)
	if !ok {
		return &robot.JointError{ID: id, Op: "enable torque", Err: robot.ErrReadFailure}
	}
	hold, err := c.limits.Clamp(id, pos)
	if err != nil {
		return err
	}
	if err := c.arm.MoveTo(ctx, id, hold, c.move); err != nil {
		return err
	}
	if err := c.arm.SetTorque(ctx, id, true); err != nil {
		return err
	}
	c.targets[id] = hold
	if id == c.Selected() {
		c.synced = true
	}
	return nil
}

// resync re-reads the selected joint so the next jog starts from where it
// actually is.
func (c *Controller) resync(ctx context.Context) error {
	id := c.Selected()
	pos, ok := c.arm.ReadPosition(ctx, id)
	if !ok {
		return &robot.JointError{ID: id, Op: "select", Err: robot.ErrReadFailure}
	}
	target, err := c.limits.Clamp(id, pos)
	if err != nil {
		return err
	}
	c.targets[id] = target
	c.synced = true
	return nil
}

func (c *Controller) jog(ctx context.Context, dir int, slow bool) error {
	if !c.synced {
		return nil
	}
	id := c.Selected()
	step := c.step
	if slow {
		step = max(step/2, 1)
	}

	current := c.targets[id]
	next, err := c.limits.Clamp(id, current+dir*step)
	if err != nil {
		return err
	}
	if next == current {
		return nil
	}
	if err := c.arm.MoveTo(ctx, id, next, c.move); err != nil {
		c.logger.Warn("jog", "joint", id, "target", next, "err", err)
		return err
	}
	c.targets[id] = next
	return nil
}

// goToZero moves every joint to its zero, clamped into the joint's limits.
func (c *Controller) goToZero(ctx context.Context) error {
	var errs error
	for _, id := range c.joints {
		zero, _ := c.limits.ZeroOf(id)
		target, err := c.limits.Clamp(id, zero)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if err := c.arm.MoveTo(ctx, id, target, c.move); err != nil {
			c.logger.Warn("go to zero", "joint", id, "err", err)
			errs = multierr.Append(errs, err)
			continue
		}
		c.targets[id] = target
	}
	c.logger.Info("go to zero")
	return errs
}

func (c *Controller) state(in Input, err error) State {
	id := c.Selected()
	limit, _ := c.limits.Limit(id)

	positions := make(map[robot.MotorName]float64, len(c.targets))
	for jid, target := range c.targets {
		if e, ok := c.limits.Limit(jid); ok {
			positions[robot.JointName(jid)] = e.Normalize(target)
		}
	}

	released := true
	for _, jid := range c.joints {
		if c.arm.TorqueEnabled(jid) {
			released = false
			break
		}
	}

	return State{
		Selected:  id,
		Target:    c.targets[id],
		Limit:     limit,
		Released:  released,
		Slow:      in.Slow,
		Positions: positions,
		Timestamp: time.Now(),
		Error:     err,
	}
}

func (c *Controller) sendState(s State) {
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		c.stateCh <- s
	}
}

func (c *Controller) shutdown(ctx context.Context) {
	if err := c.arm.Release(context.WithoutCancel(ctx)); err != nil {
		c.logger.Warn("release torque on exit", "err", err)
	} else {
		c.logger.Info("torque released")
	}
	c.logger.Info("teleoperation stopped")
}
