package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/gwillem/so101/pkg/robot"
)

type Options struct {
	Port     string `short:"p" long:"port" env:"SO101_PORT" description:"Serial port of the servo bus (default /dev/ttyUSB0)"`
	Baud     int    `long:"baud" env:"SO101_BAUD" description:"Bus baud rate (default 1000000)"`
	MaxID    int    `long:"max-id" default:"6" description:"Highest servo ID to scan for"`
	Limits   string `short:"l" long:"limits" env:"SO101_LIMITS" description:"Limit table file, .json or .yaml (default so101_limits.json)"`
	Config   string `long:"config" default:"so101.json" description:"Project config file written by setup"`
	LogLevel string `long:"log-level" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log level"`
	Verbose  bool   `short:"v" long:"verbose" description:"Debug logging"`

	Setup       SetupCommand       `command:"setup" description:"Scan serial ports for an arm and write so101.json"`
	Info        InfoCommand        `command:"info" description:"Print telemetry of every joint"`
	Move        MoveCommand        `command:"move" description:"Move one joint to a raw position"`
	Release     ReleaseCommand     `command:"release" description:"Disable torque on all joints"`
	Calibrate   CalibrateCommand   `command:"calibrate" alias:"calib" description:"Record zero pose and joint limits"`
	Teleoperate TeleoperateCommand `command:"teleoperate" alias:"teleop" description:"Jog joints from the keyboard within the calibrated limits"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)

func main() {
	parser.LongDescription = "so101 - servo bus driver, calibration and jog control for SO-101 arms"

	_, err := parser.Parse()
	os.Exit(exitCode(err))
}

// exitCode prints err and maps it to a process exit status. An operator
// cancel is a normal exit.
func exitCode(err error) int {
	if err == nil {
		return 0
	}

	var flagsErr *flags.Error
	if errors.As(err, &flagsErr) {
		if flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, flagsErr.Message)
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if errors.Is(err, robot.ErrCancelled) {
		fmt.Fprintln(os.Stderr, dimStyle.Render("Cancelled. Torque released, nothing written."))
		return 0
	}

	fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
	if hint := hintFor(err); hint != "" {
		fmt.Fprintln(os.Stderr, hint)
	}
	return 1
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, robot.ErrBusUnavailable):
		return "Check that the arm is powered and plugged in, then pass --port or run 'so101 setup'."
	case errors.Is(err, robot.ErrCalibrationIncomplete):
		return "Run 'so101 calibrate' and move every joint through its full range before confirming."
	}
	return ""
}
