package bus

import (
	"context"
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// Device name prefixes of USB serial adapters on Linux, macOS and Windows.
var portPrefixes = []string{
	"/dev/ttyUSB", "/dev/ttyACM",
	"/dev/tty.usbmodem", "/dev/tty.usbserial", "/dev/cu.usbmodem", "/dev/cu.usbserial",
	"COM",
}

// FindPorts lists serial ports that may carry a servo bus.
func FindPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return candidatePorts(ports), nil
}

// candidatePorts keeps USB serial adapters. Built-in UARTs and Bluetooth
// ports never carry the arm.
func candidatePorts(ports []string) []string {
	candidates := []string{}
	for _, port := range ports {
		for _, prefix := range portPrefixes {
			if strings.HasPrefix(port, prefix) {
				candidates = append(candidates, port)
				break
			}
		}
	}
	return candidates
}

// Probe is the result of scanning one serial port.
type Probe struct {
	Port string
	IDs  []int
	Err  error
}

// ProbePorts opens each port, scans for servos and closes it again.
func ProbePorts(ctx context.Context, ports []string, cfg Config) []Probe {
	probes := make([]Probe, 0, len(ports))
	for _, port := range ports {
		c := cfg
		c.Port = port
		p := Probe{Port: port}

		f, err := Open(c)
		if err != nil {
			p.Err = err
			probes = append(probes, p)
			continue
		}
		p.IDs, p.Err = f.ListServos(ctx)
		f.Close()
		probes = append(probes, p)
	}
	return probes
}
