package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/so101/pkg/bus"
	"github.com/gwillem/so101/pkg/robot"
	"github.com/gwillem/so101/pkg/teleop"
)

func TestSettings_Defaults(t *testing.T) {
	o := &Options{Config: filepath.Join(t.TempDir(), "so101.json")}

	cfg, err := settings(o)
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, bus.DefaultBaudRate, cfg.BaudRate)
	assert.Equal(t, robot.DefaultLimitsFile, cfg.LimitsFile)
	assert.Equal(t, robot.DefaultHz, cfg.Hz)
	assert.Equal(t, robot.DefaultStep, cfg.Step)
}

func TestSettings_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "so101.json")
	file := robot.Config{Port: "/dev/ttyACM0", BaudRate: 500_000, LimitsFile: "arm.yaml", Hz: 50}
	require.NoError(t, file.SaveTo(path))

	cfg, err := settings(&Options{Config: path})
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", cfg.Port)
	assert.Equal(t, 500_000, cfg.BaudRate)
	assert.Equal(t, "arm.yaml", cfg.LimitsFile)
	assert.Equal(t, 50, cfg.Hz)

	cfg, err = settings(&Options{Config: path, Port: "/dev/ttyUSB1", Baud: 115_200, Limits: "other.json"})
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB1", cfg.Port)
	assert.Equal(t, 115_200, cfg.BaudRate)
	assert.Equal(t, "other.json", cfg.LimitsFile)
	assert.Equal(t, 50, cfg.Hz)
}

func TestSettings_BrokenFile(t *testing.T) {
	dir := t.TempDir()
	// A directory cannot be read as a config file.
	_, err := settings(&Options{Config: dir})
	assert.Error(t, err)
}

func TestLogLines(t *testing.T) {
	lines := make(logLines, 2)
	n, err := fmt.Fprint(lines, "first\n\nsecond\nthird\n")
	require.NoError(t, err)
	assert.Equal(t, len("first\n\nsecond\nthird\n"), n)

	// The third line is dropped because nobody is reading.
	require.Len(t, lines, 2)
	assert.Equal(t, "first", <-lines)
	assert.Equal(t, "second", <-lines)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"help", &flags.Error{Type: flags.ErrHelp, Message: "usage"}, 0},
		{"bad flag", &flags.Error{Type: flags.ErrUnknownFlag, Message: "unknown flag"}, 2},
		{"cancelled", fmt.Errorf("calibration: %w", robot.ErrCancelled), 0},
		{"bus", fmt.Errorf("%w: no such device", robot.ErrBusUnavailable), 1},
		{"other", errors.New("boom"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestHintFor(t *testing.T) {
	assert.Contains(t, hintFor(fmt.Errorf("open: %w", robot.ErrBusUnavailable)), "--port")
	assert.Contains(t, hintFor(&robot.JointError{ID: 2, Op: "range", Err: robot.ErrCalibrationIncomplete}), "so101 calibrate")
	assert.Empty(t, hintFor(errors.New("boom")))
}

func TestRenderTelemetry(t *testing.T) {
	limits := robot.NewLimitTable()
	limits.Zero[1] = 2048
	limits.Limits[1] = robot.LimitEntry{Min: 1000, Max: 3000}

	out := renderTelemetry([]robot.Telemetry{
		{ID: 1, Position: 2100, Velocity: 3, Acceleration: 0, Status: 0},
		{ID: 2, Err: robot.ErrReadFailure},
	}, limits)

	assert.Contains(t, out, "shoulder_pan")
	assert.Contains(t, out, "2100")
	assert.Contains(t, out, "3000")
	assert.Contains(t, out, "shoulder_lift")
	assert.Contains(t, out, "unavailable")
}

func TestTeleopModel_Status(t *testing.T) {
	m := teleopModel{}
	assert.Contains(t, m.renderStatus(), "waiting")

	m.state = teleop.State{
		Selected:  3,
		Target:    1500,
		Limit:     robot.LimitEntry{Min: 1000, Max: 3000},
		Released:  true,
		Slow:      true,
		Timestamp: time.Now(),
	}
	status := m.renderStatus()
	assert.Contains(t, status, "elbow_flex")
	assert.Contains(t, status, "target 1500")
	assert.Contains(t, status, "limits [1000, 3000]")
	assert.Contains(t, status, "slow")
	assert.Contains(t, status, "TORQUE RELEASED")
}

func TestTeleopModel_HasMovement(t *testing.T) {
	m := teleopModel{}
	positions := map[robot.MotorName]float64{robot.Gripper: 10}
	assert.True(t, m.hasMovement(positions))

	m.lastPositions = positions
	assert.False(t, m.hasMovement(map[robot.MotorName]float64{robot.Gripper: 10}))
	assert.True(t, m.hasMovement(map[robot.MotorName]float64{robot.Gripper: 12}))
}

func TestAppendLog(t *testing.T) {
	var logs []string
	for i := range maxLogs + 3 {
		logs = appendLog(logs, fmt.Sprintf("line %d", i))
	}
	require.Len(t, logs, maxLogs)
	assert.Equal(t, "line 3", logs[0])
	assert.Equal(t, fmt.Sprintf("line %d", maxLogs+2), logs[maxLogs-1])
}
