package bus

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// Defaults for an SO-101 arm: six STS3215 servos at 1 Mbaud.
const (
	DefaultBaudRate = 1_000_000
	DefaultTimeout  = 100 * time.Millisecond
	DefaultMinID    = 1
	DefaultMaxID    = 6

	// MaxAcceleration is the largest value the STS acceleration register
	// accepts, in units of 100 steps/s².
	MaxAcceleration = 254

	movePollInterval = 20 * time.Millisecond
)

// Config describes how to open a Feetech bus.
type Config struct {
	Port     string
	BaudRate int
	Timeout  time.Duration
	MinID    int
	MaxID    int
}

// Feetech is a Transport over a Feetech STS servo bus.
type Feetech struct {
	cfg Config
	bus *feetech.Bus

	mu     sync.Mutex // one round trip on the wire at a time
	servos map[int]*feetech.Servo
}

var _ Transport = (*Feetech)(nil)

// Open opens the serial port and returns a bus ready for scanning.
func Open(cfg Config) (*Feetech, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MinID == 0 {
		cfg.MinID = DefaultMinID
	}
	if cfg.MaxID == 0 {
		cfg.MaxID = DefaultMaxID
	}

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: cfg.BaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus on %s: %w", cfg.Port, err)
	}

	return newFeetech(cfg, bus), nil
}

func newFeetech(cfg Config, bus *feetech.Bus) *Feetech {
	return &Feetech{
		cfg:    cfg,
		bus:    bus,
		servos: make(map[int]*feetech.Servo),
	}
}

// ListServos scans the configured ID range.
func (f *Feetech) ListServos(ctx context.Context) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	found, err := f.bus.Scan(ctx, f.cfg.MinID, f.cfg.MaxID)
	if err != nil {
		return nil, fmt.Errorf("scan ids %d-%d: %w", f.cfg.MinID, f.cfg.MaxID, err)
	}

	ids := make([]int, 0, len(found))
	for _, s := range found {
		f.servos[s.ID] = feetech.NewServo(f.bus, s.ID, s.Model)
		ids = append(ids, s.ID)
	}
	slices.Sort(ids)
	return ids, nil
}

func (f *Feetech) servo(id int) (*feetech.Servo, error) {
	s, ok := f.servos[id]
	if !ok {
		return nil, fmt.Errorf("servo %d not found on bus", id)
	}
	return s, nil
}

// MoveTo writes the acceleration register, then the goal position with the
// given speed.
func (f *Feetech) MoveTo(ctx context.Context, id, position, speed, acc int, wait bool) error {
	if err := f.startMove(ctx, id, position, speed, acc); err != nil {
		return err
	}
	if !wait {
		return nil
	}

	ticker := time.NewTicker(movePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		moving, err := f.moving(ctx, id)
		if err != nil {
			return fmt.Errorf("servo %d: poll motion: %w", id, err)
		}
		if !moving {
			return nil
		}
	}
}

func (f *Feetech) startMove(ctx context.Context, id, position, speed, acc int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, err := f.servo(id)
	if err != nil {
		return err
	}
	if acc < 0 || acc > MaxAcceleration {
		return fmt.Errorf("servo %d: acceleration %d outside 0-%d", id, acc, MaxAcceleration)
	}
	if err := s.WriteRegister(ctx, "acceleration", []byte{byte(acc)}); err != nil {
		return fmt.Errorf("servo %d: set acceleration: %w", id, err)
	}
	if err := s.SetPositionWithSpeed(ctx, position, speed); err != nil {
		return fmt.Errorf("servo %d: set position: %w", id, err)
	}
	return nil
}

func (f *Feetech) moving(ctx context.Context, id int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, err := f.servo(id)
	if err != nil {
		return false, err
	}
	return s.Moving(ctx)
}

// ReadPosition reads the present position register.
func (f *Feetech) ReadPosition(ctx context.Context, id int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, err := f.servo(id)
	if err != nil {
		return 0, err
	}
	return s.Position(ctx)
}

// ReadSpeed reads the present velocity register. Negative values are
// motion in the reverse direction.
func (f *Feetech) ReadSpeed(ctx context.Context, id int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, err := f.servo(id)
	if err != nil {
		return 0, err
	}
	return s.Velocity(ctx)
}

// ReadAcceleration reads the acceleration register.
func (f *Feetech) ReadAcceleration(ctx context.Context, id int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, err := f.servo(id)
	if err != nil {
		return 0, err
	}
	data, err := s.ReadRegister(ctx, "acceleration")
	if err != nil {
		return 0, err
	}
	return singleByte(id, "acceleration", data)
}

// ReadStatus reads the servo status register. Each set bit is a fault
// flag (voltage, sensor, temperature, current, angle, overload).
func (f *Feetech) ReadStatus(ctx context.Context, id int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.servo(id); err != nil {
		return 0, err
	}
	data, err := f.bus.ReadRegister(ctx, id, feetech.RegServoStatus.Address, feetech.RegServoStatus.Size)
	if err != nil {
		return 0, err
	}
	return singleByte(id, "status", data)
}

func singleByte(id int, reg string, data []byte) (int, error) {
	if len(data) != 1 {
		return 0, fmt.Errorf("servo %d: %s register: got %d bytes", id, reg, len(data))
	}
	return int(data[0]), nil
}

// SetTorqueEnabled switches the servo's torque.
func (f *Feetech) SetTorqueEnabled(ctx context.Context, id int, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, err := f.servo(id)
	if err != nil {
		return err
	}
	return s.SetTorqueEnabled(ctx, enabled)
}

// Close closes the serial port.
func (f *Feetech) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bus.Close()
}
