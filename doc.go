// Package so101 provides a servo bus driver, joint calibration and
// limit-enforced jogging for SO-101 robot arms.
//
// The arm's joints are Feetech STS bus servos on a single serial link. A
// calibration session records each joint's zero pose and its hand-guided
// travel range into a limit table; teleoperation then jogs one joint at a
// time and never commands a position outside that table.
//
// # Installation
//
//	go install github.com/gwillem/so101/cmd/so101@latest
//
// # Usage
//
// Pick the serial port once:
//
//	so101 setup
//
// Calibrate, then jog the arm from the keyboard:
//
//	so101 calibrate
//	so101 teleoperate
//
// # Packages
//
//   - cmd/so101: CLI with setup, info, move, release, calibrate and teleoperate commands
//   - pkg/bus: Servo bus transport (Feetech STS) and serial port discovery
//   - pkg/robot: Driver session, telemetry, motion commands and the limit table
//   - pkg/calibrate: Two-phase calibration engine
//   - pkg/teleop: Limit-enforced jog controller
//   - pkg/input: Keyboard and GPIO pendant intent sources
package so101
