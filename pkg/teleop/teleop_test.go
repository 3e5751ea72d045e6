package teleop

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/so101/pkg/bus/bustest"
	"github.com/gwillem/so101/pkg/robot"
)

func testLimits() *robot.LimitTable {
	t := robot.NewLimitTable()
	t.Zero[1] = 2000
	t.Zero[2] = 5000
	t.Zero[3] = 2048
	t.Limits[1] = robot.LimitEntry{Min: 500, Max: 4000}
	t.Limits[2] = robot.LimitEntry{Min: 1000, Max: 3000}
	t.Limits[3] = robot.LimitEntry{Min: 0, Max: 4095}
	return t
}

func newTestController(t *testing.T, step int) (*Controller, *bustest.Fake) {
	t.Helper()
	fake := bustest.New(1, 2, 3)
	s := robot.NewSession(fake)
	_, err := s.Discover(context.Background())
	require.NoError(t, err)

	c, err := NewController(s, testLimits(), Config{Step: step})
	require.NoError(t, err)
	return c, fake
}

func lastMove(t *testing.T, fake *bustest.Fake) bustest.Move {
	t.Helper()
	moves := fake.Moves()
	require.NotEmpty(t, moves)
	return moves[len(moves)-1]
}

func TestNewController_RequiresCompleteTable(t *testing.T) {
	fake := bustest.New(1, 2, 3, 4)
	s := robot.NewSession(fake)
	_, err := s.Discover(context.Background())
	require.NoError(t, err)

	_, err = NewController(s, testLimits(), Config{})
	assert.ErrorIs(t, err, robot.ErrCalibrationIncomplete)

	_, err = NewController(s, nil, Config{})
	assert.ErrorIs(t, err, robot.ErrCalibrationIncomplete)
}

func TestStep_EnablesTorqueHoldingPosition(t *testing.T) {
	c, fake := newTestController(t, 50)
	fake.SetPositions(2, 200)

	c.Step(context.Background(), Input{})

	for _, id := range []int{1, 2, 3} {
		assert.True(t, fake.Torque(id), "joint %d", id)
	}
	assert.Contains(t, fake.Moves(), bustest.Move{ID: 2, Position: 1000, Speed: robot.DefaultSpeed, Acc: robot.DefaultAcceleration},
		"hold goal is clamped into the joint's range")
}

func TestStep_JogClampsAtMax(t *testing.T) {
	c, fake := newTestController(t, 200)
	fake.SetPositions(1, 3900)
	c.Step(context.Background(), Input{})
	before := len(fake.Moves())

	st := c.Step(context.Background(), Input{JogPositive: true})
	require.NoError(t, st.Error)
	assert.Equal(t, 4000, st.Target)
	assert.Equal(t, 4000, lastMove(t, fake).Position)
	assert.False(t, lastMove(t, fake).Wait, "teleoperation never blocks on a move")

	c.Step(context.Background(), Input{JogPositive: true})
	assert.Len(t, fake.Moves(), before+1, "no command once the limit is reached")
}

func TestStep_JogNegativeAndSlow(t *testing.T) {
	c, fake := newTestController(t, 100)
	fake.SetPositions(1, 2000)
	c.Step(context.Background(), Input{})

	st := c.Step(context.Background(), Input{JogNegative: true})
	assert.Equal(t, 1900, st.Target)

	st = c.Step(context.Background(), Input{JogNegative: true, Slow: true})
	assert.Equal(t, 1850, st.Target)
	assert.True(t, st.Slow)

	st = c.Step(context.Background(), Input{JogNegative: true, JogPositive: true})
	assert.Equal(t, 1850, st.Target, "opposite jogs cancel out")
}

func TestStep_ReleaseThenJogKeepsTorqueOff(t *testing.T) {
	c, fake := newTestController(t, 50)
	c.Step(context.Background(), Input{})
	require.True(t, fake.Torque(1))

	c.Step(context.Background(), Input{Release: true})
	moves := len(fake.Moves())

	for _, in := range []Input{
		{Release: true, JogPositive: true},
		{Release: true, JogNegative: true},
		{Release: true, GoToZero: true},
		{Release: true, SelectNext: true, JogPositive: true},
	} {
		st := c.Step(context.Background(), in)
		assert.True(t, st.Released)
		for _, id := range []int{1, 2, 3} {
			assert.False(t, fake.Torque(id), "joint %d", id)
		}
	}
	assert.Len(t, fake.Moves(), moves)

	c.Step(context.Background(), Input{})
	assert.True(t, fake.Torque(1), "dropping the release level re-enables torque")
}

func TestStep_ReleaseRetriedEveryCycle(t *testing.T) {
	c, fake := newTestController(t, 50)
	c.Step(context.Background(), Input{})
	fake.Fail(bustest.OpTorque, 2, 1)

	st := c.Step(context.Background(), Input{Release: true})
	assert.ErrorIs(t, st.Error, robot.ErrCommandFailure)
	assert.True(t, fake.Torque(2))
	assert.False(t, st.Released, "joint 2 still holds torque")

	st = c.Step(context.Background(), Input{Release: true})
	assert.False(t, fake.Torque(2))
	assert.True(t, st.Released)
}

func TestStep_ReleasedFollowsTorque(t *testing.T) {
	c, fake := newTestController(t, 50)
	st := c.Step(context.Background(), Input{})
	assert.False(t, st.Released)

	// Unreadable joints stay unpowered even without a release request.
	require.NoError(t, c.arm.Release(context.Background()))
	for _, id := range []int{1, 2, 3} {
		fake.Fail(bustest.OpPosition, id, 1)
	}
	st = c.Step(context.Background(), Input{})
	assert.True(t, st.Released)

	st = c.Step(context.Background(), Input{})
	assert.True(t, fake.Torque(1))
	assert.False(t, st.Released)
}

func TestStep_GoToZeroClamps(t *testing.T) {
	c, fake := newTestController(t, 50)
	c.Step(context.Background(), Input{})
	before := len(fake.Moves())

	c.Step(context.Background(), Input{GoToZero: true})

	moves := fake.Moves()[before:]
	require.Len(t, moves, 3)
	assert.Equal(t, 2000, moves[0].Position)
	assert.Equal(t, 3000, moves[1].Position, "zero outside the range is clamped")
	assert.Equal(t, 2048, moves[2].Position)
}

func TestStep_SelectResyncs(t *testing.T) {
	c, fake := newTestController(t, 10)
	c.Step(context.Background(), Input{})
	assert.Equal(t, 1, c.Selected())

	fake.SetPositions(2, 1500)
	st := c.Step(context.Background(), Input{SelectNext: true})
	assert.Equal(t, 2, st.Selected)
	assert.Equal(t, 1500, st.Target)

	st = c.Step(context.Background(), Input{SelectPrevious: true})
	assert.Equal(t, 1, st.Selected)

	st = c.Step(context.Background(), Input{SelectPrevious: true})
	assert.Equal(t, 3, st.Selected)
	assert.Equal(t, robot.LimitEntry{Min: 0, Max: 4095}, st.Limit)
}

func TestStep_FailureSkipsCycle(t *testing.T) {
	c, fake := newTestController(t, 100)
	fake.SetPositions(1, 2000)
	c.Step(context.Background(), Input{})

	fake.Fail(bustest.OpMove, 1, 1)
	st := c.Step(context.Background(), Input{JogPositive: true})
	assert.ErrorIs(t, st.Error, robot.ErrCommandFailure)
	assert.Equal(t, 2000, st.Target)

	st = c.Step(context.Background(), Input{JogPositive: true})
	require.NoError(t, st.Error)
	assert.Equal(t, 2100, st.Target)
}

func TestStep_ReadFailureOnSelect(t *testing.T) {
	c, fake := newTestController(t, 100)
	c.Step(context.Background(), Input{})
	before := len(fake.Moves())

	fake.Fail(bustest.OpPosition, 2, 1)
	st := c.Step(context.Background(), Input{SelectNext: true, JogPositive: true})
	assert.ErrorIs(t, st.Error, robot.ErrReadFailure)
	assert.Len(t, fake.Moves(), before, "no jog from an unknown position")

	st = c.Step(context.Background(), Input{JogPositive: true})
	require.NoError(t, st.Error)
	assert.Equal(t, 2148, st.Target)
}

func TestStep_CommandsStayInRange(t *testing.T) {
	limits := testLimits()
	rng := rand.New(rand.NewSource(7))

	for _, step := range []int{1, 37, 200, 5000} {
		fake := bustest.New(1, 2, 3)
		fake.OnMove = func(m bustest.Move) {
			e, _ := limits.Limit(m.ID)
			if !e.Contains(m.Position) {
				t.Errorf("step %d: joint %d commanded to %d outside %+v", step, m.ID, m.Position, e)
			}
		}
		s := robot.NewSession(fake)
		_, err := s.Discover(context.Background())
		require.NoError(t, err)
		c, err := NewController(s, limits, Config{Step: step})
		require.NoError(t, err)

		for range 500 {
			if rng.Intn(10) == 0 {
				id := 1 + rng.Intn(3)
				fake.SetPositions(id, rng.Intn(8000)-2000)
			}
			if rng.Intn(20) == 0 {
				fake.Fail(bustest.OpMove, 1+rng.Intn(3), 1)
			}
			c.Step(context.Background(), Input{
				SelectNext:  rng.Intn(8) == 0,
				JogPositive: rng.Intn(2) == 0,
				JogNegative: rng.Intn(3) == 0,
				GoToZero:    rng.Intn(30) == 0,
				Release:     rng.Intn(15) == 0,
				Slow:        rng.Intn(4) == 0,
			})
		}
	}
}

type sourceFunc func() Input

func (f sourceFunc) Poll() Input { return f() }

func TestRun_ReleasesOnCancel(t *testing.T) {
	fake := bustest.New(1, 2)
	s := robot.NewSession(fake)
	_, err := s.Discover(context.Background())
	require.NoError(t, err)
	limits := robot.NewLimitTable()
	for _, id := range []int{1, 2} {
		limits.Zero[id] = 2048
		limits.Limits[id] = robot.LimitEntry{Min: 1000, Max: 3000}
	}
	c, err := NewController(s, limits, Config{Hz: 200})
	require.NoError(t, err)

	src := sourceFunc(func() Input { return Input{JogPositive: true} })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, src) }()

	require.Eventually(t, func() bool { return fake.Torque(1) && fake.Torque(2) }, time.Second, time.Millisecond)
	st := <-c.States()
	assert.Equal(t, 1, st.Selected)
	assert.Contains(t, st.Positions, robot.ShoulderPan)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.False(t, fake.Torque(1))
	assert.False(t, fake.Torque(2))
}
