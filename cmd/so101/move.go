package main

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/gwillem/so101/pkg/robot"
)

// Full travel of an STS3215 in raw steps.
const (
	minRaw = 0
	maxRaw = 4095
)

type MoveCommand struct {
	Speed int  `long:"speed" description:"Bus speed (default from so101.json or 2400)"`
	Acc   int  `long:"acc" description:"Bus acceleration (default from so101.json or 50)"`
	Wait  bool `short:"w" long:"wait" description:"Block until the servo stops moving"`

	Normalized bool `short:"n" long:"normalized" description:"Read position as -100..100 across the calibrated range"`

	Args struct {
		ID       int     `positional-arg-name:"id" description:"Servo ID"`
		Position float64 `positional-arg-name:"position" description:"Raw goal position, or -100..100 with --normalized"`
	} `positional-args:"yes" required:"yes"`
}

func (c *MoveCommand) Execute(args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := settings(&opts)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr)

	sess, fb, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	// The joint keeps holding its goal after we exit.
	defer fb.Close()

	id := c.Args.ID
	target, err := c.target(cfg, id)
	if err != nil {
		return err
	}
	if !c.Normalized && float64(target) != c.Args.Position {
		logger.Warn("target clamped", "joint", id, "requested", c.Args.Position, "target", target)
	}

	move := robot.MoveOptions{Speed: c.Speed, Acceleration: c.Acc, Wait: c.Wait}
	if move.Speed == 0 {
		move.Speed = cfg.Speed
	}
	if move.Acceleration == 0 {
		move.Acceleration = cfg.Acceleration
	}

	if err := sess.SetTorque(ctx, id, true); err != nil {
		return err
	}
	err = sess.MoveTo(ctx, id, target, move)
	if ctx.Err() != nil {
		// Interrupted: never leave the joint powered.
		sess.Release(ctx)
		return robot.ErrCancelled
	}
	if err != nil {
		return err
	}

	fmt.Printf("%s %s -> %d\n", successStyle.Render("moved"), robot.JointName(id), target)
	return nil
}

// target resolves the goal position. Raw goals are clamped to the joint's
// calibrated range, or to the servo's raw travel when no limit table exists
// yet. Normalized goals are mapped through the joint's limit entry and so
// need a table.
func (c *MoveCommand) target(cfg robot.Config, id int) (int, error) {
	pos := c.Args.Position
	if !c.Normalized && pos != math.Trunc(pos) {
		return 0, fmt.Errorf("raw position %v is not a whole step", pos)
	}

	lf := limitFile(cfg)
	limits, err := lf.Load()
	if robot.IsNotExist(err) {
		if c.Normalized {
			return 0, fmt.Errorf("--normalized needs a limit table at %s: %w", lf.Path, robot.ErrCalibrationIncomplete)
		}
		raw := robot.LimitEntry{Min: minRaw, Max: maxRaw}
		return raw.Clamp(int(pos)), nil
	}
	if err != nil {
		return 0, err
	}

	e, ok := limits.Limit(id)
	if !ok || !e.Valid() {
		return 0, fmt.Errorf("joint %d has no valid range in %s: %w", id, lf.Path, robot.ErrCalibrationIncomplete)
	}
	if c.Normalized {
		return e.Denormalize(pos), nil
	}
	return e.Clamp(int(pos)), nil
}

type ReleaseCommand struct{}

func (c *ReleaseCommand) Execute(args []string) error {
	cfg, err := settings(&opts)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr)

	sess, _, err := openSession(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	if err := sess.Close(); err != nil {
		return err
	}
	fmt.Println(successStyle.Render("Torque released on all joints."))
	return nil
}
